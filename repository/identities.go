package repository

import (
	"context"
	"fmt"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/goliatone/go-forum-auth/social"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// IdentityModel is the Bun model for external identities.
type IdentityModel struct {
	bun.BaseModel `bun:"table:account_identities,alias:aid"`

	ID         uuid.UUID      `bun:"id,pk,type:uuid"`
	AccountID  uuid.UUID      `bun:"account_id,notnull,type:uuid"`
	Service    string         `bun:"service,notnull"`
	Identifier string         `bun:"identifier,notnull"`
	Details    map[string]any `bun:"details,type:jsonb"`
	CreatedAt  time.Time      `bun:"created_at,notnull"`
	UpdatedAt  time.Time      `bun:"updated_at,notnull"`
}

// IdentitySecretModel holds the provider tokens for one identity.
type IdentitySecretModel struct {
	bun.BaseModel `bun:"table:account_identity_secrets,alias:asec"`

	IdentityID uuid.UUID      `bun:"identity_id,pk,type:uuid"`
	Details    map[string]any `bun:"details,type:jsonb"`
}

// IdentityRepository implements social.IdentityRepository using Bun.
type IdentityRepository struct {
	db *bun.DB
}

var _ social.IdentityRepository = (*IdentityRepository)(nil)

// NewIdentityRepository creates a new repository.
func NewIdentityRepository(db *bun.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// IdentityID derives the identity primary key from the provider pair, the
// same pair always maps to the same id. The service is length prefixed so
// separators inside either part can not make two pairs collide.
func IdentityID(service, identifier string) (uuid.UUID, error) {
	return hashid.NewUUID(fmt.Sprintf("%d:%s:%s", len(service), service, identifier))
}

// FindTx implements social.IdentityRepository.
func (r *IdentityRepository) FindTx(ctx context.Context, tx bun.IDB, service, identifier string) (*social.Identity, error) {
	var model IdentityModel
	q := tx.NewSelect().
		Model(&model).
		Where("?TableAlias.service = ? AND ?TableAlias.identifier = ?", service, identifier).
		Limit(1)

	if tx.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		if auth.IsNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"service":    service,
				"identifier": identifier,
			})
		}
		return nil, err
	}
	return toIdentity(&model), nil
}

// CreateTx implements social.IdentityRepository. The secret row is always created.
func (r *IdentityRepository) CreateTx(ctx context.Context, tx bun.IDB, identity *social.Identity, secret map[string]any) (*social.Identity, error) {
	model := fromIdentity(identity)

	if model.ID == uuid.Nil {
		id, err := IdentityID(model.Service, model.Identifier)
		if err != nil {
			return nil, err
		}
		model.ID = id
	}

	now := time.Now().UTC()
	if model.CreatedAt.IsZero() {
		model.CreatedAt = now
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = model.CreatedAt
	}

	if _, err := tx.NewInsert().Model(model).Exec(ctx); err != nil {
		return nil, err
	}

	sec := &IdentitySecretModel{
		IdentityID: model.ID,
		Details:    nonNil(secret),
	}
	if _, err := tx.NewInsert().Model(sec).Exec(ctx); err != nil {
		return nil, err
	}

	return toIdentity(model), nil
}

// UpdateDetailsTx implements social.IdentityRepository. Both profile and
// secret are overwritten, the latest provider response wins.
func (r *IdentityRepository) UpdateDetailsTx(ctx context.Context, tx bun.IDB, identity *social.Identity, details, secret map[string]any, now time.Time) error {
	prev := identity.UpdatedAt
	identity.Details = nonNil(details)
	identity.UpdatedAt = auth.NextUpdatedAt(&prev, now)

	model := fromIdentity(identity)
	if _, err := tx.NewUpdate().
		Model(model).
		Column("details", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return err
	}

	sec := &IdentitySecretModel{
		IdentityID: identity.ID,
		Details:    nonNil(secret),
	}
	_, err := tx.NewUpdate().
		Model(sec).
		Column("details").
		WherePK().
		Exec(ctx)
	return err
}

// SecretTx implements social.IdentityRepository.
func (r *IdentityRepository) SecretTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID) (map[string]any, error) {
	var model IdentitySecretModel
	err := tx.NewSelect().
		Model(&model).
		Where("?TableAlias.identity_id = ?", identityID).
		Scan(ctx)
	if err != nil {
		if auth.IsNotFound(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"identity_id": identityID.String(),
			})
		}
		return nil, err
	}
	return nonNil(model.Details), nil
}

// ListByAccount implements social.IdentityRepository.
func (r *IdentityRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*social.Identity, error) {
	var models []IdentityModel
	err := r.db.NewSelect().
		Model(&models).
		Where("?TableAlias.account_id = ?", accountID).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	identities := make([]*social.Identity, len(models))
	for i := range models {
		identities[i] = toIdentity(&models[i])
	}
	return identities, nil
}

func toIdentity(m *IdentityModel) *social.Identity {
	return &social.Identity{
		ID:         m.ID,
		AccountID:  m.AccountID,
		Service:    m.Service,
		Identifier: m.Identifier,
		Details:    nonNil(m.Details),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func fromIdentity(i *social.Identity) *IdentityModel {
	if i == nil {
		return &IdentityModel{Details: map[string]any{}}
	}

	return &IdentityModel{
		ID:         i.ID,
		AccountID:  i.AccountID,
		Service:    i.Service,
		Identifier: i.Identifier,
		Details:    nonNil(i.Details),
		CreatedAt:  i.CreatedAt,
		UpdatedAt:  i.UpdatedAt,
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
