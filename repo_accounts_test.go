package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccounts_FindByLoginTx(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "pepe@example.com", "hunter22")
	f.register(t, "other", "", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "pending@example.com")
	require.NoError(t, err)

	accounts := f.repo.Accounts()

	for _, identifier := range []string{"pepe", "PEPE", " pepe ", "pepe@example.com", "Pepe@EXAMPLE.com"} {
		got, err := accounts.FindByLoginTx(context.Background(), f.db, identifier)
		require.NoError(t, err, identifier)
		assert.Equal(t, account.ID, got.ID, identifier)
	}

	for _, identifier := range []string{"pending@example.com", "nobody@example.com", "nobody"} {
		_, err := accounts.FindByLoginTx(context.Background(), f.db, identifier)
		require.Error(t, err, identifier)
		assert.True(t, auth.IsNotFound(err), "%s: %v", identifier, err)
	}
}
