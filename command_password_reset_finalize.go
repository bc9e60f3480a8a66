package auth

import (
	"context"
	"crypto/subtle"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type FinalizePasswordResetMessage struct {
	AccountID  uuid.UUID `json:"account_id" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Account requesting the reset"`
	Token      string    `json:"token" example:"9f86d081884c7d659a2feaa0c55ad015" doc:"Reset password token"`
	Password   string    `json:"password" example:"some_secret_word" doc:"Password"`
	OnResponse func(resp *FinalizePasswordResetResponse)
}

func (p FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetResponse struct {
	Account *Account
}

type FinalizePasswordResetHandler struct {
	f *flow
}

// NewFinalizePasswordResetHandler creates a handler with sane defaults.
func NewFinalizePasswordResetHandler(repo RepositoryManager, opts ...Option) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{f: newFlow(repo, opts...)}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.f.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.f.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if err := cancelled(ctx, "password reset finalization"); err != nil {
		return err
	}
	return h.execute(ctx, event)
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	if event.Password == "" {
		return ErrNoEmptyString
	}

	ctx, cancel := h.f.withTimeout(ctx)
	defer cancel()

	var account *Account
	var failure error
	window := h.f.cfg.ResetWindow()

	err := h.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := h.f.repo.Accounts().FindTx(ctx, tx, event.AccountID)
		if err != nil {
			if IsNotFound(err) {
				failure = ErrInvalidResetToken
				return nil
			}
			return err
		}

		cred, err := h.f.repo.Credentials().GetForUpdateTx(ctx, tx, found.ID)
		if err != nil {
			if IsNotFound(err) {
				failure = ErrInvalidResetToken
				return nil
			}
			return err
		}

		now := h.f.clock()
		account = found

		if window.Locked(cred.ResetPasswordAttempts, cred.FirstFailedResetPasswordAttempt, now) {
			failure = ErrResetLocked
			return nil
		}

		if !resetTokenMatches(cred.ResetPasswordToken, event.Token) {
			if err := h.f.repo.Credentials().TrackFailedResetTx(ctx, tx, cred, window, now); err != nil {
				return err
			}
			failure = ErrInvalidResetToken
			return nil
		}

		passwordHash, err := h.f.hasher.HashPassword(event.Password)
		if err != nil {
			return err
		}

		return h.f.repo.Credentials().ResetPasswordTx(ctx, tx, cred, passwordHash)
	})

	if err != nil {
		return internalError(err, "failed to finalize password reset")
	}

	switch failure {
	case nil:
		h.f.record(ctx, ActivityEventPasswordResetSuccess, account.ID, nil)
	case ErrResetLocked:
		h.f.logger.Warn("password reset rejected, account %s is locked", account.ID)
		h.f.record(ctx, ActivityEventPasswordResetLocked, account.ID, nil)
		return failure
	default:
		if account != nil {
			h.f.record(ctx, ActivityEventPasswordResetFailure, account.ID, nil)
		}
		return failure
	}

	if event.OnResponse != nil {
		event.OnResponse(&FinalizePasswordResetResponse{Account: account})
	}

	return nil
}

// resetTokenMatches never matches an empty stored token
func resetTokenMatches(stored, presented string) bool {
	if stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
