package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var (
	loginAttemptColumns = []string{"password_attempts", "first_failed_password_attempt"}
	resetAttemptColumns = []string{"reset_password_attempts", "first_failed_reset_password_attempt"}
	resetTokenColumns   = []string{"reset_password_token", "reset_password_token_generated"}
)

// Credentials stores password hashes, attempt counters and reset tokens.
// Updates always name their columns so NULLs are written, partial model
// updates would skip zero values and leave stale counters behind.
type Credentials interface {
	CreateTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, passwordHash string) (*Credential, error)
	GetForUpdateTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Credential, error)
	TrackFailedLoginTx(ctx context.Context, tx bun.IDB, cred *Credential, window LockoutWindow, now time.Time) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, cred *Credential) error
	TrackFailedResetTx(ctx context.Context, tx bun.IDB, cred *Credential, window LockoutWindow, now time.Time) error
	SetResetTokenTx(ctx context.Context, tx bun.IDB, cred *Credential, token string, generatedAt time.Time) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, cred *Credential, passwordHash string) error
}

type credentials struct {
	db *bun.DB
}

func NewCredentialsRepository(db *bun.DB) Credentials {
	return &credentials{db: db}
}

func (c *credentials) CreateTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, passwordHash string) (*Credential, error) {
	record := &Credential{
		AccountID:    accountID,
		PasswordHash: passwordHash,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *credentials) GetForUpdateTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID) (*Credential, error) {
	record := &Credential{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.account_id = ?", accountID).
		Apply(lockRow(tx)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"account_id": accountID.String()})
	}
	return record, nil
}

func (c *credentials) TrackFailedLoginTx(ctx context.Context, tx bun.IDB, cred *Credential, window LockoutWindow, now time.Time) error {
	cred.PasswordAttempts, cred.FirstFailedPasswordAttempt = window.RecordFailure(
		cred.PasswordAttempts,
		cred.FirstFailedPasswordAttempt,
		now,
	)
	return c.updateColumns(ctx, tx, cred, loginAttemptColumns...)
}

func (c *credentials) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, cred *Credential) error {
	if cred.PasswordAttempts == 0 && cred.FirstFailedPasswordAttempt == nil {
		return nil
	}
	cred.PasswordAttempts = 0
	cred.FirstFailedPasswordAttempt = nil
	return c.updateColumns(ctx, tx, cred, loginAttemptColumns...)
}

func (c *credentials) TrackFailedResetTx(ctx context.Context, tx bun.IDB, cred *Credential, window LockoutWindow, now time.Time) error {
	cred.ResetPasswordAttempts, cred.FirstFailedResetPasswordAttempt = window.RecordFailure(
		cred.ResetPasswordAttempts,
		cred.FirstFailedResetPasswordAttempt,
		now,
	)
	return c.updateColumns(ctx, tx, cred, resetAttemptColumns...)
}

func (c *credentials) SetResetTokenTx(ctx context.Context, tx bun.IDB, cred *Credential, token string, generatedAt time.Time) error {
	cred.ResetPasswordToken = token
	cred.ResetPasswordTokenGenerated = &generatedAt
	return c.updateColumns(ctx, tx, cred, resetTokenColumns...)
}

// ResetPasswordTx stores the new hash and clears every tracking field
func (c *credentials) ResetPasswordTx(ctx context.Context, tx bun.IDB, cred *Credential, passwordHash string) error {
	cred.PasswordHash = passwordHash
	cred.PasswordAttempts = 0
	cred.FirstFailedPasswordAttempt = nil
	cred.ResetPasswordToken = ""
	cred.ResetPasswordTokenGenerated = nil
	cred.ResetPasswordAttempts = 0
	cred.FirstFailedResetPasswordAttempt = nil

	columns := append([]string{"password_hash"}, loginAttemptColumns...)
	columns = append(columns, resetTokenColumns...)
	columns = append(columns, resetAttemptColumns...)

	return c.updateColumns(ctx, tx, cred, columns...)
}

func (c *credentials) updateColumns(ctx context.Context, tx bun.IDB, cred *Credential, columns ...string) error {
	res, err := tx.NewUpdate().
		Model(cred).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{
			"account_id": cred.AccountID.String(),
		})
	}
	return nil
}
