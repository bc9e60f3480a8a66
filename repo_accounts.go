package auth

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Accounts interface {
	Create(ctx context.Context, record *Account) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	Find(ctx context.Context, id uuid.UUID) (*Account, error)
	FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error)
	FindByLoginTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error)
	UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Account, now time.Time) error
	DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) Create(ctx context.Context, record *Account) (*Account, error) {
	return a.CreateTx(ctx, a.db, record)
}

// CreateTx inserts the account, the very first account becomes an administrator
func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	exists, err := tx.NewSelect().Model((*Account)(nil)).Exists(ctx)
	if err != nil {
		return nil, err
	}

	prepareAccountDefaults(record)
	record.IsAdmin = record.IsAdmin || !exists

	return a.Repository.CreateTx(ctx, tx, record)
}

func (a *accounts) Find(ctx context.Context, id uuid.UUID) (*Account, error) {
	return a.FindTx(ctx, a.db, id)
}

func (a *accounts) FindTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, map[string]any{"id": id.String()})
	}
	return record, nil
}

// FindByLoginTx resolves a login identifier. Identifiers with an @ can only
// match a verified email, usernames never contain one.
func (a *accounts) FindByLoginTx(ctx context.Context, tx bun.IDB, identifier string) (*Account, error) {
	identifier = strings.TrimSpace(identifier)
	record := &Account{}

	q := tx.NewSelect().Model(record)
	if strings.Contains(identifier, "@") {
		// the subquery rebinds ?TableAlias, so the outer column is spelled out
		q = q.Where("acc.id IN (?)", tx.NewSelect().
			Model((*Email)(nil)).
			Column("account_id").
			Where("lower(address) = lower(?)", identifier).
			Where("is_verified = ?", true))
	} else {
		q = q.Where("lower(?TableAlias.username) = lower(?)", identifier)
	}

	if err := q.Limit(1).Scan(ctx); err != nil {
		return nil, notFound(err, map[string]any{"identifier": identifier})
	}
	return record, nil
}

func (a *accounts) UsernameExistsTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*Account)(nil)).
		Where("lower(username) = lower(?)", username).
		Exists(ctx)
}

// UpdateProfileTx writes name and avatar and bumps updated_at monotonically
func (a *accounts) UpdateProfileTx(ctx context.Context, tx bun.IDB, record *Account, now time.Time) error {
	prev := record.UpdatedAt
	record.UpdatedAt = NextUpdatedAt(&prev, now)

	res, err := tx.NewUpdate().
		Model(record).
		Column("name", "avatar_url", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return repository.NewRecordNotFound().WithMetadata(map[string]any{"id": record.ID.String()})
	}
	return nil
}

func (a *accounts) DeleteTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Account)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
}
