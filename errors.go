package auth

import (
	stderrors "errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	TextCodeInvalidCredentials     = "INVALID_CREDENTIALS"
	TextCodeAccountLocked          = "ACCOUNT_LOCKED"
	TextCodeResetLocked            = "RESET_LOCKED"
	TextCodeInvalidResetToken      = "INVALID_RESET_TOKEN"
	TextCodeInvalidVerification    = "INVALID_VERIFICATION_TOKEN"
	TextCodeEmptyPassword          = "EMPTY_PASSWORD"
	TextCodeInvalidEmail           = "INVALID_EMAIL"
	TextCodeInvalidUsername        = "INVALID_USERNAME"
	TextCodeUsernameTaken          = "USERNAME_TAKEN"
	TextCodeEmailAlreadyVerified   = "EMAIL_ALREADY_VERIFIED"
	TextCodeConflict               = "CONFLICT"
	TextCodeUsernameSpaceExhausted = "USERNAME_SPACE_EXHAUSTED"
)

// ErrInvalidCredentials is returned by Login for an unknown identifier or a wrong
// password, callers can not tell those apart.
var ErrInvalidCredentials = goerrors.New("invalid login credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountLocked is returned while the login lockout window is tripped
var ErrAccountLocked = goerrors.New("account locked, too many failed login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeAccountLocked).
	WithCode(goerrors.CodeTooManyRequests)

// ErrResetLocked is returned while the password reset lockout window is tripped
var ErrResetLocked = goerrors.New("password reset locked, too many failed attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeResetLocked).
	WithCode(goerrors.CodeTooManyRequests)

// ErrInvalidResetToken covers unknown accounts and wrong reset tokens alike
var ErrInvalidResetToken = goerrors.New("invalid or expired password reset token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidResetToken).
	WithCode(goerrors.CodeUnauthorized)

var ErrInvalidVerificationToken = goerrors.New("invalid email verification token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidVerification).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidEmail = goerrors.New("invalid email address", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidEmail).
	WithCode(goerrors.CodeBadRequest)

var ErrInvalidUsername = goerrors.New("invalid username", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidUsername).
	WithCode(goerrors.CodeBadRequest)

var ErrUsernameTaken = goerrors.New("username already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeConflict)

// ErrEmailAlreadyVerified is returned when an address is already verified by an account
var ErrEmailAlreadyVerified = goerrors.New("email address already verified by another account", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailAlreadyVerified).
	WithCode(goerrors.CodeConflict)

// ErrConflict is returned when a uniqueness race could not be resolved
// after retrying. Callers may retry the whole operation.
var ErrConflict = goerrors.New("concurrent update conflict, retry", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

var ErrUsernameSpaceExhausted = goerrors.New("could not find an available username", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameSpaceExhausted).
	WithCode(goerrors.CodeConflict)

// IsLockedError reports whether err is one of the lockout signals
func IsLockedError(err error) bool {
	return stderrors.Is(err, ErrAccountLocked) || stderrors.Is(err, ErrResetLocked)
}

// IsUniqueViolation detects unique constraint failures for postgres and sqlite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}

func internalError(err error, msg string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg)
}
