package auth_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) Types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, len(c.events))
	for i, evt := range c.events {
		out[i] = evt.EventType
	}
	return out
}

type fixture struct {
	db    *bun.DB
	repo  auth.RepositoryManager
	svc   *auth.Service
	clock *testClock
	sink  *capturingSink
	cfg   auth.Config
}

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, auth.Migrate(context.Background(), db))
	return db
}

func setupService(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()

	db := setupDB(t)
	clock := newTestClock()
	sink := &capturingSink{}

	cfg := auth.DefaultConfig()
	cfg.BcryptCost = bcrypt.MinCost
	cfg.ConflictRetryBackoff = time.Millisecond

	repo := auth.NewRepositoryManager(db)
	base := []auth.Option{
		auth.WithConfig(cfg),
		auth.WithHasher(auth.NewBcryptHasher(bcrypt.MinCost)),
		auth.WithClock(clock.Now),
		auth.WithActivitySink(sink),
		auth.WithLogger(testLogger{}),
	}

	return &fixture{
		db:    db,
		repo:  repo,
		svc:   auth.NewService(repo, append(base, opts...)...),
		clock: clock,
		sink:  sink,
		cfg:   cfg,
	}
}

// register creates an account with a password and an optional verified email
func (f *fixture) register(t *testing.T, username, email, password string) *auth.Account {
	t.Helper()

	hash, err := auth.NewBcryptHasher(bcrypt.MinCost).HashPassword(password)
	require.NoError(t, err)

	var account *auth.Account
	err = f.repo.RunInTx(context.Background(), nil, func(ctx context.Context, tx bun.Tx) error {
		account, _, err = f.svc.Registrar().CreateAccountTx(ctx, tx, auth.NewAccount{
			Username:      username,
			PasswordHash:  hash,
			Email:         email,
			EmailVerified: email != "",
		})
		return err
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) credential(t *testing.T, accountID uuid.UUID) *auth.Credential {
	t.Helper()

	cred := &auth.Credential{}
	err := f.db.NewSelect().Model(cred).Where("account_id = ?", accountID).Scan(context.Background())
	require.NoError(t, err)
	return cred
}

func (f *fixture) setCredential(t *testing.T, cred *auth.Credential, columns ...string) {
	t.Helper()

	_, err := f.db.NewUpdate().Model(cred).Column(columns...).WherePK().Exec(context.Background())
	require.NoError(t, err)
}

func (f *fixture) secret(t *testing.T, emailID uuid.UUID) *auth.EmailSecret {
	t.Helper()

	secret := &auth.EmailSecret{}
	err := f.db.NewSelect().Model(secret).Where("email_id = ?", emailID).Scan(context.Background())
	require.NoError(t, err)
	return secret
}

func (f *fixture) emails(t *testing.T, accountID uuid.UUID) []*auth.Email {
	t.Helper()

	emails, err := f.repo.Emails().ListByAccount(context.Background(), accountID)
	require.NoError(t, err)
	return emails
}

func (f *fixture) tasks(t *testing.T, task string) []*auth.OutboxTask {
	t.Helper()

	tasks, err := f.repo.Outbox().ListByTask(context.Background(), task)
	require.NoError(t, err)
	return tasks
}

func (f *fixture) count(t *testing.T, model any) int {
	t.Helper()

	n, err := f.db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

// sequenceTokens returns tok1, tok2 ... so tests can tell tokens apart
func sequenceTokens() auth.TokenGenerator {
	var mu sync.Mutex
	n := 0
	return func(size int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("tok%d", n), nil
	}
}
