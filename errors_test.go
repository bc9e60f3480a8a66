package auth_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Postgres unique violation",
			err:      &pgconn.PgError{Code: "23505"},
			expected: true,
		},
		{
			name:     "Wrapped postgres unique violation",
			err:      fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}),
			expected: true,
		},
		{
			name:     "Postgres foreign key violation",
			err:      &pgconn.PgError{Code: "23503"},
			expected: false,
		},
		{
			name:     "SQLite unique violation",
			err:      errors.New("UNIQUE constraint failed: accounts.username"),
			expected: true,
		},
		{
			name:     "SQLite extended message",
			err:      errors.New("constraint failed: UNIQUE constraint failed: account_emails.address (2067)"),
			expected: true,
		},
		{
			name:     "Other error",
			err:      errors.New("connection refused"),
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsUniqueViolation(tt.err))
		})
	}
}

func TestIsLockedError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "Login lockout",
			err:      auth.ErrAccountLocked,
			expected: true,
		},
		{
			name:     "Reset lockout",
			err:      auth.ErrResetLocked,
			expected: true,
		},
		{
			name:     "Invalid credentials",
			err:      auth.ErrInvalidCredentials,
			expected: false,
		},
		{
			name:     "Nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, auth.IsLockedError(tt.err))
		})
	}
}

func TestLockoutErrorsAreRateLimited(t *testing.T) {
	for _, err := range []*goerrors.Error{auth.ErrAccountLocked, auth.ErrResetLocked} {
		assert.Equal(t, goerrors.CategoryRateLimit, err.Category)
		assert.Equal(t, goerrors.CodeTooManyRequests, err.Code)
	}
}
