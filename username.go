package auth

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"github.com/uptrace/bun"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// MaxGeneratedUsernameLength caps sanitized usernames before any suffix
	MaxGeneratedUsernameLength = 20
	// FallbackUsername is used when sanitizing leaves fewer than 3 characters
	FallbackUsername = "user"
)

// SanitizeUsername folds a display name or external handle into the
// username character set: ASCII letters, digits and underscores, starting
// with a letter. Accents are transliterated ("José" becomes "Jose").
func SanitizeUsername(raw string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, raw)
	if err != nil {
		folded = raw
	}

	var b strings.Builder
	underscore := false
	for _, r := range folded {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if b.Len() == 0 && !unicode.IsLetter(r) {
				continue
			}
			b.WriteRune(r)
			underscore = false
		default:
			if b.Len() > 0 && !underscore {
				b.WriteByte('_')
				underscore = true
			}
		}
	}

	out := b.String()
	if len(out) > MaxGeneratedUsernameLength {
		out = out[:MaxGeneratedUsernameLength]
	}
	out = strings.TrimRight(out, "_")

	if len(out) < 3 {
		return FallbackUsername
	}
	return out
}

// UsernameCandidates returns base followed by base0, base1 ... up to
// attempts suffixed entries
func UsernameCandidates(base string, attempts int) []string {
	out := make([]string, 0, attempts+1)
	out = append(out, base)
	for i := 0; i < attempts; i++ {
		out = append(out, base+strconv.Itoa(i))
	}
	return out
}

// AvailableUsernameTx returns the first candidate derived from raw that no
// account uses yet. The check is not a reservation, the insert that follows
// can still hit the unique index and must be retried.
func AvailableUsernameTx(ctx context.Context, tx bun.IDB, accounts Accounts, raw string, attempts int) (string, error) {
	base := SanitizeUsername(raw)
	for _, candidate := range UsernameCandidates(base, attempts) {
		exists, err := accounts.UsernameExistsTx(ctx, tx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", ErrUsernameSpaceExhausted
}
