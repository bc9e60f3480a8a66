package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Clock returns the current time. Flows take it as an option so tests
// can move time around lockout windows and throttles.
type Clock func() time.Time

func defaultClock() time.Time {
	return time.Now().UTC()
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// TokenGenerator returns a random lowercase hex token built from size random bytes
type TokenGenerator func(size int) (string, error)

// Dispatcher delivers outbox tasks to a job queue. Delivery is at-least-once,
// consumers must tolerate duplicates.
type Dispatcher interface {
	Dispatch(ctx context.Context, task *OutboxTask) error
}

// Notifier enqueues notification requests inside the caller's transaction
type Notifier interface {
	EnqueueTx(ctx context.Context, tx bun.IDB, task string, payload map[string]any) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
