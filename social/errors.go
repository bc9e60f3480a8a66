package social

import "github.com/goliatone/go-errors"

const (
	TextCodeIdentityLinkedElsewhere = "identity_linked_elsewhere"
	TextCodeInconsistentLinkState   = "identity_inconsistent_link_state"
	TextCodeInvalidIdentity         = "identity_invalid"
)

// ErrIdentityLinkedElsewhere is returned when the external identity already
// belongs to an account other than the caller's.
var ErrIdentityLinkedElsewhere = errors.New("identity is linked to another account", errors.CategoryConflict).
	WithTextCode(TextCodeIdentityLinkedElsewhere).
	WithCode(errors.CodeConflict)

// ErrInconsistentLinkState is returned when reconciliation ends without an
// identity. Every branch creates one, reaching this is a bug.
var ErrInconsistentLinkState = errors.New("identity reconciliation reached an inconsistent state", errors.CategoryInternal).
	WithTextCode(TextCodeInconsistentLinkState).
	WithCode(errors.CodeInternal)

// ErrInvalidIdentity is returned when service or identifier are empty.
var ErrInvalidIdentity = errors.New("identity needs a service and an identifier", errors.CategoryValidation).
	WithTextCode(TextCodeInvalidIdentity).
	WithCode(errors.CodeBadRequest)

func internalError(err error, msg string) error {
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return errors.Wrap(err, errors.CategoryInternal, msg)
}
