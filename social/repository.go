package social

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identity links an account to a subject at an external login provider.
// Details holds the public profile as last reported by the provider.
type Identity struct {
	ID         uuid.UUID      `json:"id"`
	AccountID  uuid.UUID      `json:"account_id"`
	Service    string         `json:"service"`
	Identifier string         `json:"identifier"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// IdentityRepository manages identity persistence. Lookups that find
// nothing return an error matched by auth.IsNotFound.
type IdentityRepository interface {
	FindTx(ctx context.Context, tx bun.IDB, service, identifier string) (*Identity, error)
	CreateTx(ctx context.Context, tx bun.IDB, identity *Identity, secret map[string]any) (*Identity, error)
	UpdateDetailsTx(ctx context.Context, tx bun.IDB, identity *Identity, details, secret map[string]any, now time.Time) error
	SecretTx(ctx context.Context, tx bun.IDB, identityID uuid.UUID) (map[string]any, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Identity, error)
}
