package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// ResetTokenBytes gives 128 bits of entropy for password reset tokens
	ResetTokenBytes = 16
	// VerificationTokenBytes gives 128 bits of entropy for email verification tokens
	VerificationTokenBytes = 16
)

// RandomHexToken reads size bytes from crypto/rand and renders them as lowercase hex
func RandomHexToken(size int) (string, error) {
	if size <= 0 {
		return "", goerrors.New(fmt.Sprintf("token size must be positive, got %d", size), goerrors.CategoryBadInput)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read random bytes")
	}

	return hex.EncodeToString(buf), nil
}
