package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/uptrace/bun"
)

// NewAccount describes everything created together with an account
type NewAccount struct {
	Username      string
	Name          string
	AvatarURL     string
	PasswordHash  string
	Email         string
	EmailVerified bool
}

// Registrar creates accounts and emails with all their dependent rows.
// An account always gets an empty credential row, an email always gets a
// secret row and, while unverified, a verification token and notification.
type Registrar struct {
	repo     RepositoryManager
	notifier Notifier
	tokens   TokenGenerator
	clock    Clock
	size     int
}

// ValidateEmail returns ErrInvalidEmail for anything that is not a single
// well formed address
func ValidateEmail(address string) error {
	if err := validation.Validate(address, validation.Required, is.EmailFormat); err != nil {
		return ErrInvalidEmail
	}
	return nil
}

func NewRegistrar(repo RepositoryManager, opts ...Option) *Registrar {
	f := newFlow(repo, opts...)
	return f.registrar()
}

// CreateAccountTx inserts the account, its credential and the optional email
func (r *Registrar) CreateAccountTx(ctx context.Context, tx bun.IDB, in NewAccount) (*Account, *Email, error) {
	if in.Email != "" {
		if err := ValidateEmail(in.Email); err != nil {
			return nil, nil, err
		}
	}

	now := r.clock()

	account, err := r.repo.Accounts().CreateTx(ctx, tx, &Account{
		Username:  in.Username,
		Name:      in.Name,
		AvatarURL: in.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, nil, err
	}

	if _, err := r.repo.Credentials().CreateTx(ctx, tx, account.ID, in.PasswordHash); err != nil {
		return nil, nil, err
	}

	if in.Email == "" {
		return account, nil, nil
	}

	email, err := r.CreateEmailTx(ctx, tx, account.ID, in.Email, in.EmailVerified)
	if err != nil {
		return nil, nil, err
	}

	return account, email, nil
}

// CreateEmailTx attaches an address to an account. Unverified addresses get
// a verification token and a send verification notification.
func (r *Registrar) CreateEmailTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, address string, verified bool) (*Email, error) {
	if err := ValidateEmail(address); err != nil {
		return nil, err
	}

	now := r.clock()

	email := &Email{
		AccountID:  accountID,
		Address:    address,
		IsVerified: verified,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	secret := &EmailSecret{}

	if !verified {
		token, err := r.tokens(r.size)
		if err != nil {
			return nil, err
		}
		secret.VerificationToken = token
		secret.VerificationEmailSentAt = &now
	}

	email, err := r.repo.Emails().CreateTx(ctx, tx, email, secret)
	if err != nil {
		return nil, err
	}

	if verified {
		return email, nil
	}

	err = r.notifier.EnqueueTx(ctx, tx, TaskSendVerificationEmail, map[string]any{
		"email_id":   email.ID.String(),
		"account_id": accountID.String(),
		"email":      email.Address,
		"token":      secret.VerificationToken,
	})
	if err != nil {
		return nil, err
	}

	return email, nil
}

// RetryOnConflict runs fn again when it fails on a unique index. fn must
// run its own transaction so each attempt starts from fresh reads.
// Exhausted retries surface as ErrConflict.
func RetryOnConflict(ctx context.Context, retries uint64, backoff time.Duration, fn func(ctx context.Context) error) error {
	if backoff <= 0 {
		backoff = time.Millisecond
	}

	b := retry.WithMaxRetries(retries, retry.NewConstant(backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if IsUniqueViolation(err) {
			return retry.RetryableError(err)
		}
		return err
	})

	if IsUniqueViolation(err) {
		return ErrConflict
	}
	return err
}
