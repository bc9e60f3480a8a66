package social

import (
	"context"
	"strings"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LinkingResult contains the resolved account and metadata.
type LinkingResult struct {
	Account   *auth.Account
	Identity  *Identity
	IsNewUser bool
	Linked    bool
}

// Reconciler binds external identities to local accounts. It either finds
// the identity, links it to the caller or to a verified email owner, or
// registers a new account for it.
type Reconciler struct {
	svc        *auth.Service
	identities IdentityRepository
}

func NewReconciler(svc *auth.Service, identities IdentityRepository) *Reconciler {
	return &Reconciler{
		svc:        svc,
		identities: identities,
	}
}

// LinkOrRegisterFromContext uses the actor stored with auth.WithActor as caller
func (r *Reconciler) LinkOrRegisterFromContext(ctx context.Context, service, identifier string, details, secret map[string]any) (*LinkingResult, error) {
	callerID, _ := auth.ActorFromContext(ctx)
	return r.LinkOrRegister(ctx, callerID, service, identifier, details, secret)
}

// LinkOrRegister resolves (service, identifier) to an account. callerID is
// uuid.Nil for anonymous logins. Calling it again with the same input
// returns the same account and refreshes the stored details.
func (r *Reconciler) LinkOrRegister(ctx context.Context, callerID uuid.UUID, service, identifier string, details, secret map[string]any) (*LinkingResult, error) {
	service, identifier = strings.TrimSpace(service), strings.TrimSpace(identifier)
	if service == "" || identifier == "" {
		return nil, ErrInvalidIdentity
	}
	if err := validateProfile(details); err != nil {
		return nil, err
	}

	ctx, cancel := r.svc.WithTimeout(ctx)
	defer cancel()

	repo := r.svc.Repository()
	var result *LinkingResult

	err := r.svc.RetryOnConflict(ctx, func(ctx context.Context) error {
		return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			result = &LinkingResult{}
			created := false

			identity, err := r.findTx(ctx, tx, service, identifier)
			if err != nil {
				return err
			}

			if identity != nil && callerID != uuid.Nil && identity.AccountID != callerID {
				return ErrIdentityLinkedElsewhere
			}

			profile := ProfileFromDetails(details)

			if identity == nil && callerID != uuid.Nil {
				if _, err := repo.Accounts().FindTx(ctx, tx, callerID); err != nil {
					return err
				}
				if identity, err = r.createTx(ctx, tx, callerID, service, identifier, details, secret); err != nil {
					return err
				}
				result.Linked, created = true, true
			}

			if identity == nil && callerID == uuid.Nil && profile.Email != "" {
				email, err := repo.Emails().FindVerifiedTx(ctx, tx, profile.Email)
				if err != nil && !auth.IsNotFound(err) {
					return err
				}
				if email != nil {
					if identity, err = r.createTx(ctx, tx, email.AccountID, service, identifier, details, secret); err != nil {
						return err
					}
					result.Linked, created = true, true
				}
			}

			if identity == nil && callerID == uuid.Nil {
				account, registered, err := r.registerTx(ctx, tx, service, identifier, details, secret, true)
				if err != nil {
					return err
				}
				result.Account, result.Identity, result.IsNewUser = account, registered, true
				return nil
			}

			if identity == nil {
				return ErrInconsistentLinkState
			}

			if !created {
				if err := r.identities.UpdateDetailsTx(ctx, tx, identity, details, secret, r.svc.Now()); err != nil {
					return err
				}
			}

			account, err := r.fillProfileTx(ctx, tx, identity.AccountID, profile)
			if err != nil {
				return err
			}

			result.Account, result.Identity = account, identity
			return nil
		})
	})

	if err != nil {
		return nil, internalError(err, "failed to reconcile identity")
	}

	r.recordResult(ctx, service, result)
	return result, nil
}

// RegisterIdentity creates a new account for an identity that is not known
// yet. emailPreVerified marks the profile email as verified, which is only
// safe for providers that verify addresses themselves.
func (r *Reconciler) RegisterIdentity(ctx context.Context, service, identifier string, details, secret map[string]any, emailPreVerified bool) (*auth.Account, error) {
	service, identifier = strings.TrimSpace(service), strings.TrimSpace(identifier)
	if service == "" || identifier == "" {
		return nil, ErrInvalidIdentity
	}
	if err := validateProfile(details); err != nil {
		return nil, err
	}

	ctx, cancel := r.svc.WithTimeout(ctx)
	defer cancel()

	repo := r.svc.Repository()
	var account *auth.Account

	err := r.svc.RetryOnConflict(ctx, func(ctx context.Context) error {
		return repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			existing, err := r.findTx(ctx, tx, service, identifier)
			if err != nil {
				return err
			}
			if existing != nil {
				return ErrIdentityLinkedElsewhere
			}

			account, _, err = r.registerTx(ctx, tx, service, identifier, details, secret, emailPreVerified)
			return err
		})
	})

	if err != nil {
		return nil, internalError(err, "failed to register identity")
	}

	r.svc.RecordActivity(ctx, auth.ActivityEventIdentityRegistered, account.ID, map[string]any{
		"service": service,
	})
	return account, nil
}

// validateProfile rejects a malformed provider email before anything is written
func validateProfile(details map[string]any) error {
	if email := ProfileFromDetails(details).Email; email != "" {
		return auth.ValidateEmail(email)
	}
	return nil
}

func (r *Reconciler) findTx(ctx context.Context, tx bun.IDB, service, identifier string) (*Identity, error) {
	identity, err := r.identities.FindTx(ctx, tx, service, identifier)
	if err != nil {
		if auth.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

func (r *Reconciler) createTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, service, identifier string, details, secret map[string]any) (*Identity, error) {
	now := r.svc.Now()
	return r.identities.CreateTx(ctx, tx, &Identity{
		AccountID:  accountID,
		Service:    service,
		Identifier: identifier,
		Details:    details,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, secret)
}

func (r *Reconciler) registerTx(ctx context.Context, tx bun.IDB, service, identifier string, details, secret map[string]any, emailPreVerified bool) (*auth.Account, *Identity, error) {
	repo := r.svc.Repository()
	profile := ProfileFromDetails(details)

	if profile.Email != "" && emailPreVerified {
		if _, err := repo.Emails().FindVerifiedTx(ctx, tx, profile.Email); err == nil {
			return nil, nil, auth.ErrEmailAlreadyVerified
		} else if !auth.IsNotFound(err) {
			return nil, nil, err
		}
	}

	username, err := auth.AvailableUsernameTx(ctx, tx, repo.Accounts(), profile.UsernameSource(), r.svc.Config().UsernameSuffixAttempts)
	if err != nil {
		return nil, nil, err
	}

	account, _, err := r.svc.Registrar().CreateAccountTx(ctx, tx, auth.NewAccount{
		Username:      username,
		Name:          profile.Name,
		AvatarURL:     profile.AvatarURL,
		Email:         profile.Email,
		EmailVerified: emailPreVerified,
	})
	if err != nil {
		return nil, nil, err
	}

	identity, err := r.createTx(ctx, tx, account.ID, service, identifier, details, secret)
	if err != nil {
		return nil, nil, err
	}

	return account, identity, nil
}

// fillProfileTx copies provider name and avatar only into empty account fields
func (r *Reconciler) fillProfileTx(ctx context.Context, tx bun.IDB, accountID uuid.UUID, profile Profile) (*auth.Account, error) {
	repo := r.svc.Repository()

	account, err := repo.Accounts().FindTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	changed := false
	if account.Name == "" && profile.Name != "" {
		account.Name = profile.Name
		changed = true
	}
	if account.AvatarURL == "" && profile.AvatarURL != "" {
		account.AvatarURL = profile.AvatarURL
		changed = true
	}

	if !changed {
		return account, nil
	}

	if err := repo.Accounts().UpdateProfileTx(ctx, tx, account, r.svc.Now()); err != nil {
		return nil, err
	}
	return account, nil
}

func (r *Reconciler) recordResult(ctx context.Context, service string, result *LinkingResult) {
	if result == nil || result.Account == nil {
		return
	}

	event := auth.ActivityEventIdentityLogin
	switch {
	case result.IsNewUser:
		event = auth.ActivityEventIdentityRegistered
	case result.Linked:
		event = auth.ActivityEventIdentityLinked
	}

	r.svc.RecordActivity(ctx, event, result.Account.ID, map[string]any{
		"service": service,
	})
}
