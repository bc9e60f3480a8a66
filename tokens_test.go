package auth_test

import (
	"encoding/hex"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomHexToken(t *testing.T) {
	token, err := auth.RandomHexToken(auth.ResetTokenBytes)
	require.NoError(t, err)
	assert.Len(t, token, 32)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, auth.ResetTokenBytes)

	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := auth.RandomHexToken(auth.VerificationTokenBytes)
		require.NoError(t, err)
		assert.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestRandomHexToken_InvalidSize(t *testing.T) {
	_, err := auth.RandomHexToken(0)
	assert.Error(t, err)

	_, err = auth.RandomHexToken(-1)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryBadInput, richErr.Category)
}
