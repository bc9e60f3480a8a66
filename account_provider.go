package auth

import (
	"context"

	"github.com/uptrace/bun"
)

// AccountProvider verifies password logins against the credential store
type AccountProvider struct {
	f *flow
}

// NewAccountProvider will create a new AccountProvider
func NewAccountProvider(repo RepositoryManager, opts ...Option) *AccountProvider {
	return &AccountProvider{f: newFlow(repo, opts...)}
}

func (u *AccountProvider) WithLogger(l Logger) *AccountProvider {
	if l != nil {
		u.f.logger = l
	}
	return u
}

func (u *AccountProvider) WithActivitySink(sink ActivitySink) *AccountProvider {
	u.f.activity = normalizeActivitySink(sink)
	return u
}

// VerifyIdentity will find the account, check the lockout window and compare
// the password. A failed comparison is committed even though the call fails.
func (u *AccountProvider) VerifyIdentity(ctx context.Context, identifier, password string) (*Account, error) {
	if err := cancelled(ctx, "login"); err != nil {
		return nil, err
	}

	ctx, cancel := u.f.withTimeout(ctx)
	defer cancel()

	var account *Account
	var failure error
	window := u.f.cfg.LoginWindow()

	err := u.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		found, err := u.f.repo.Accounts().FindByLoginTx(ctx, tx, identifier)
		if err != nil {
			if IsNotFound(err) {
				failure = ErrInvalidCredentials
				return nil
			}
			return err
		}

		cred, err := u.f.repo.Credentials().GetForUpdateTx(ctx, tx, found.ID)
		if err != nil {
			if IsNotFound(err) {
				failure = ErrInvalidCredentials
				return nil
			}
			return err
		}

		now := u.f.clock()

		//if we have too many attempts in the given window, cool off!
		if window.Locked(cred.PasswordAttempts, cred.FirstFailedPasswordAttempt, now) {
			account = found
			failure = ErrAccountLocked
			return nil
		}

		if err := u.f.hasher.ComparePasswordAndHash(password, cred.PasswordHash); err != nil {
			if err := u.f.repo.Credentials().TrackFailedLoginTx(ctx, tx, cred, window, now); err != nil {
				return err
			}
			account = found
			failure = ErrInvalidCredentials
			return nil
		}

		if err := u.f.repo.Credentials().TrackSuccessfulLoginTx(ctx, tx, cred); err != nil {
			return err
		}

		account = found
		return nil
	})

	if err != nil {
		return nil, internalError(err, "failed to verify login")
	}

	switch failure {
	case nil:
		u.f.record(ctx, ActivityEventLoginSuccess, account.ID, nil)
		return account, nil
	case ErrAccountLocked:
		u.f.logger.Warn("login rejected, account %s is locked", account.ID)
		u.f.record(ctx, ActivityEventLoginLocked, account.ID, nil)
	default:
		if account != nil {
			u.f.record(ctx, ActivityEventLoginFailure, account.ID, nil)
		}
	}

	return nil, failure
}
