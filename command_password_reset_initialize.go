package auth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "user.password_reset" }

// InitializePasswordResetResponse looks the same for known and unknown addresses
type InitializePasswordResetResponse struct {
	Success bool
	sent    bool
}

type InitializePasswordResetHandler struct {
	f *flow
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager, opts ...Option) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{f: newFlow(repo, opts...)}
}

func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.f.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	if err := cancelled(ctx, "password reset initialization"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{Success: true}
	address := strings.TrimSpace(event.Email)

	if err := validation.Validate(address, validation.Required, is.EmailFormat); err != nil {
		h.f.logger.Debug("password reset requested for malformed address")
		h.respond(event, resp)
		return nil
	}

	ctx, cancel := h.f.withTimeout(ctx)
	defer cancel()

	var accountID uuid.UUID

	err := h.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		email, err := h.f.repo.Emails().FindForResetTx(ctx, tx, address)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}

		secret, err := h.f.repo.Emails().SecretForUpdateTx(ctx, tx, email.ID)
		if err != nil {
			return err
		}

		now := h.f.clock()

		// anti spam, an email went out recently
		if sent := secret.PasswordResetEmailSentAt; sent != nil && now.Sub(*sent) < h.f.cfg.ResetEmailThrottle {
			return nil
		}

		cred, err := h.f.repo.Credentials().GetForUpdateTx(ctx, tx, email.AccountID)
		if err != nil {
			return err
		}

		token := cred.ResetPasswordToken
		if !resetTokenReusable(cred, now, h.f.cfg.ResetTokenTTL) {
			size := h.f.cfg.ResetTokenBytes
			if size <= 0 {
				size = ResetTokenBytes
			}

			if token, err = h.f.tokens(size); err != nil {
				return err
			}

			if err := h.f.repo.Credentials().SetResetTokenTx(ctx, tx, cred, token, now); err != nil {
				return err
			}
		}

		secret.PasswordResetEmailSentAt = &now
		if err := h.f.repo.Emails().UpdateSecretTx(ctx, tx, secret, "password_reset_email_sent_at"); err != nil {
			return err
		}

		err = h.f.notifier.EnqueueTx(ctx, tx, TaskSendPasswordResetEmail, map[string]any{
			"account_id": email.AccountID.String(),
			"email":      email.Address,
			"token":      token,
		})
		if err != nil {
			return err
		}

		accountID = email.AccountID
		resp.sent = true
		return nil
	})

	if err != nil {
		return internalError(err, "failed to initialize password reset")
	}

	if resp.sent {
		h.f.record(ctx, ActivityEventPasswordResetRequest, accountID, nil)
	}

	h.respond(event, resp)
	return nil
}

func (h *InitializePasswordResetHandler) respond(event InitializePasswordResetMessage, resp *InitializePasswordResetResponse) {
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}
}

// resetTokenReusable reports whether the stored token is younger than ttl
func resetTokenReusable(cred *Credential, now time.Time, ttl time.Duration) bool {
	if cred.ResetPasswordToken == "" || cred.ResetPasswordTokenGenerated == nil {
		return false
	}
	return now.Sub(*cred.ResetPasswordTokenGenerated) < ttl
}
