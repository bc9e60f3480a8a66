package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Emails stores account email addresses and their secrets
type Emails interface {
	CreateTx(ctx context.Context, tx bun.IDB, email *Email, secret *EmailSecret) (*Email, error)
	FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Email, error)
	FindForResetTx(ctx context.Context, tx bun.IDB, address string) (*Email, error)
	FindVerifiedTx(ctx context.Context, tx bun.IDB, address string) (*Email, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Email, error)
	MarkVerifiedTx(ctx context.Context, tx bun.IDB, email *Email, now time.Time) error
	SecretForUpdateTx(ctx context.Context, tx bun.IDB, emailID uuid.UUID) (*EmailSecret, error)
	UpdateSecretTx(ctx context.Context, tx bun.IDB, secret *EmailSecret, columns ...string) error
}

type emails struct {
	db *bun.DB
}

func NewEmailsRepository(db *bun.DB) Emails {
	return &emails{db: db}
}

func (e *emails) CreateTx(ctx context.Context, tx bun.IDB, email *Email, secret *EmailSecret) (*Email, error) {
	if email.ID == uuid.Nil {
		email.ID = uuid.New()
	}
	email.Address = strings.TrimSpace(email.Address)

	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	if email.UpdatedAt.IsZero() {
		email.UpdatedAt = email.CreatedAt
	}

	if _, err := tx.NewInsert().Model(email).Exec(ctx); err != nil {
		return nil, err
	}

	if secret == nil {
		secret = &EmailSecret{}
	}
	secret.EmailID = email.ID

	if _, err := tx.NewInsert().Model(secret).Exec(ctx); err != nil {
		return nil, err
	}

	return email, nil
}

func (e *emails) FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Email, error) {
	record := &Email{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Apply(lockRow(tx)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

// FindForResetTx prefers a verified row, then the most recently created one
func (e *emails) FindForResetTx(ctx context.Context, tx bun.IDB, address string) (*Email, error) {
	record := &Email{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.address) = lower(?)", strings.TrimSpace(address)).
		OrderExpr("?TableAlias.is_verified DESC").
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"address": address})
	}
	return record, nil
}

func (e *emails) FindVerifiedTx(ctx context.Context, tx bun.IDB, address string) (*Email, error) {
	record := &Email{}
	err := tx.NewSelect().
		Model(record).
		Where("lower(?TableAlias.address) = lower(?)", strings.TrimSpace(address)).
		Where("?TableAlias.is_verified = ?", true).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"address": address, "verified": true})
	}
	return record, nil
}

func (e *emails) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Email, error) {
	records := []*Email{}
	err := e.db.NewSelect().
		Model(&records).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// MarkVerifiedTx flags the email as verified and drops its verification token
func (e *emails) MarkVerifiedTx(ctx context.Context, tx bun.IDB, email *Email, now time.Time) error {
	prev := email.UpdatedAt
	email.IsVerified = true
	email.UpdatedAt = NextUpdatedAt(&prev, now)

	if _, err := tx.NewUpdate().
		Model(email).
		Column("is_verified", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return err
	}

	_, err := tx.NewUpdate().
		Model((*EmailSecret)(nil)).
		Set("verification_token = NULL").
		Where("email_id = ?", email.ID).
		Exec(ctx)
	return err
}

func (e *emails) SecretForUpdateTx(ctx context.Context, tx bun.IDB, emailID uuid.UUID) (*EmailSecret, error) {
	record := &EmailSecret{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email_id = ?", emailID).
		Apply(lockRow(tx)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"email_id": emailID.String()})
	}
	return record, nil
}

func (e *emails) UpdateSecretTx(ctx context.Context, tx bun.IDB, secret *EmailSecret, columns ...string) error {
	res, err := tx.NewUpdate().
		Model(secret).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"email_id": secret.EmailID.String(),
		})
	}
	return nil
}
