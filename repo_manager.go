package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Accounts() Accounts
	Credentials() Credentials
	Emails() Emails
	Outbox() Outbox
}

type mngr struct {
	db          *bun.DB
	accounts    Accounts
	credentials Credentials
	emails      Emails
	outbox      Outbox
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:          db,
		accounts:    NewAccountsRepository(db),
		credentials: NewCredentialsRepository(db),
		emails:      NewEmailsRepository(db),
		outbox:      NewOutboxRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.db == nil {
		return errors.New("repository manager needs a database")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	if m.credentials == nil {
		return errors.New("repository credentials should be initialized")
	}

	if m.emails == nil {
		return errors.New("repository emails should be initialized")
	}

	if m.outbox == nil {
		return errors.New("repository outbox should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Accounts() Accounts {
	return m.accounts
}

func (m mngr) Credentials() Credentials {
	return m.credentials
}

func (m mngr) Emails() Emails {
	return m.emails
}

func (m mngr) Outbox() Outbox {
	return m.outbox
}

// IsNotFound matches both bun's sql.ErrNoRows and repository not found errors
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}

func notFound(err error, metadata map[string]any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.NewRecordNotFound().WithMetadata(metadata)
	}
	return err
}

// lockRow adds FOR UPDATE on dialects that support row locks. SQLite
// serializes writers at the database level so the clause is skipped.
func lockRow(db bun.IDB) func(*bun.SelectQuery) *bun.SelectQuery {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if db.Dialect().Name() == dialect.PG {
			return q.For("UPDATE")
		}
		return q
	}
}
