package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type AddEmailMessage struct {
	AccountID  uuid.UUID `json:"account_id"`
	Address    string    `json:"address" example:"pepe.rone@example.com" doc:"Email address to attach."`
	OnResponse func(email *Email)
}

func (m AddEmailMessage) Type() string { return "user_emails.add" }

// AddEmailHandler attaches an unverified address and queues its verification email
type AddEmailHandler struct {
	f *flow
}

func NewAddEmailHandler(repo RepositoryManager, opts ...Option) *AddEmailHandler {
	return &AddEmailHandler{f: newFlow(repo, opts...)}
}

func (h *AddEmailHandler) Execute(ctx context.Context, event AddEmailMessage) error {
	if err := cancelled(ctx, "email creation"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *AddEmailHandler) execute(ctx context.Context, event AddEmailMessage) error {
	address := strings.TrimSpace(event.Address)
	if err := ValidateEmail(address); err != nil {
		return err
	}

	ctx, cancel := h.f.withTimeout(ctx)
	defer cancel()

	var email *Email
	registrar := h.f.registrar()

	err := h.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.f.repo.Accounts().FindTx(ctx, tx, event.AccountID)
		if err != nil {
			return err
		}

		if _, err := h.f.repo.Emails().FindVerifiedTx(ctx, tx, address); err == nil {
			return ErrEmailAlreadyVerified
		} else if !IsNotFound(err) {
			return err
		}

		email, err = registrar.CreateEmailTx(ctx, tx, account.ID, address, false)
		return err
	})

	if err != nil {
		if IsNotFound(err) {
			return accountNotFound(event.AccountID)
		}
		return internalError(err, "failed to add email")
	}

	h.f.record(ctx, ActivityEventEmailAdded, email.AccountID, map[string]any{
		"email_id": email.ID.String(),
	})

	if event.OnResponse != nil {
		event.OnResponse(email)
	}
	return nil
}

type VerifyEmailMessage struct {
	EmailID    uuid.UUID `json:"email_id"`
	Token      string    `json:"token" example:"c0ffee254729296a45a3885639ac7e10" doc:"Verification token."`
	OnResponse func(email *Email)
}

func (m VerifyEmailMessage) Type() string { return "user_emails.verify" }

// VerifyEmailHandler consumes verification tokens. Verifying an already
// verified email is a no-op.
type VerifyEmailHandler struct {
	f *flow
}

func NewVerifyEmailHandler(repo RepositoryManager, opts ...Option) *VerifyEmailHandler {
	return &VerifyEmailHandler{f: newFlow(repo, opts...)}
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) error {
	if err := cancelled(ctx, "email verification"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) error {
	ctx, cancel := h.f.withTimeout(ctx)
	defer cancel()

	var email *Email
	verified := false

	err := h.f.retry(ctx, func(ctx context.Context) error {
		return h.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			found, err := h.f.repo.Emails().FindTx(ctx, tx, event.EmailID)
			if err != nil {
				if IsNotFound(err) {
					return ErrInvalidVerificationToken
				}
				return err
			}

			email = found
			if found.IsVerified {
				return nil
			}

			secret, err := h.f.repo.Emails().SecretForUpdateTx(ctx, tx, found.ID)
			if err != nil {
				return err
			}

			if secret.VerificationToken == "" ||
				subtle.ConstantTimeCompare([]byte(secret.VerificationToken), []byte(event.Token)) != 1 {
				return ErrInvalidVerificationToken
			}

			if _, err := h.f.repo.Emails().FindVerifiedTx(ctx, tx, found.Address); err == nil {
				return ErrEmailAlreadyVerified
			} else if !IsNotFound(err) {
				return err
			}

			if err := h.f.repo.Emails().MarkVerifiedTx(ctx, tx, found, h.f.clock()); err != nil {
				return err
			}

			verified = true
			return nil
		})
	})

	if err != nil {
		return internalError(err, "failed to verify email")
	}

	if verified {
		h.f.record(ctx, ActivityEventEmailVerified, email.AccountID, map[string]any{
			"email_id": email.ID.String(),
		})
	}

	if event.OnResponse != nil {
		event.OnResponse(email)
	}
	return nil
}

func accountNotFound(id uuid.UUID) error {
	return goerrors.New("account not found", goerrors.CategoryNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{"account_id": id.String()})
}
