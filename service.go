package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Option configures a Service or any of its handlers
type Option func(*flow)

func WithConfig(cfg Config) Option {
	return func(f *flow) {
		f.cfg = cfg
	}
}

func WithHasher(hasher PasswordHasher) Option {
	return func(f *flow) {
		if hasher != nil {
			f.hasher = hasher
		}
	}
}

func WithTokenGenerator(tokens TokenGenerator) Option {
	return func(f *flow) {
		if tokens != nil {
			f.tokens = tokens
		}
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(clock Clock) Option {
	return func(f *flow) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// WithNotifier replaces the outbox as notification target
func WithNotifier(notifier Notifier) Option {
	return func(f *flow) {
		if notifier != nil {
			f.notifier = notifier
		}
	}
}

func WithActivitySink(sink ActivitySink) Option {
	return func(f *flow) {
		f.activity = normalizeActivitySink(sink)
	}
}

func WithLogger(logger Logger) Option {
	return func(f *flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// flow holds the collaborators shared by every entry point
type flow struct {
	repo     RepositoryManager
	cfg      Config
	hasher   PasswordHasher
	tokens   TokenGenerator
	clock    Clock
	notifier Notifier
	activity ActivitySink
	logger   Logger
}

func newFlow(repo RepositoryManager, opts ...Option) *flow {
	f := &flow{
		repo:     repo,
		cfg:      DefaultConfig(),
		tokens:   RandomHexToken,
		clock:    defaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}

	if f.hasher == nil {
		f.hasher = NewBcryptHasher(f.cfg.BcryptCost)
	}

	if f.notifier == nil && repo != nil {
		f.notifier = repo.Outbox()
	}

	return f
}

func (f *flow) registrar() *Registrar {
	size := f.cfg.VerificationTokenBytes
	if size <= 0 {
		size = VerificationTokenBytes
	}
	return &Registrar{
		repo:     f.repo,
		notifier: f.notifier,
		tokens:   f.tokens,
		clock:    f.clock,
		size:     size,
	}
}

func (f *flow) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := f.cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (f *flow) retry(ctx context.Context, fn func(ctx context.Context) error) error {
	return RetryOnConflict(ctx, f.cfg.ConflictRetries, f.cfg.ConflictRetryBackoff, fn)
}

func (f *flow) record(ctx context.Context, eventType ActivityEventType, accountID uuid.UUID, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actorRef(ctx, accountID),
		Metadata:   metadata,
		OccurredAt: f.clock(),
	}
	if accountID != uuid.Nil {
		event.AccountID = accountID.String()
	}

	if err := normalizeActivitySink(f.activity).Record(ctx, event); err != nil {
		f.logger.Warn("activity sink error during %s: %v", eventType, err)
	}
}

func cancelled(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// Service is the entry point to the credential core
type Service struct {
	f *flow

	accounts      *AccountProvider
	initReset     *InitializePasswordResetHandler
	finalizeReset *FinalizePasswordResetHandler
	register      *RegisterUserHandler
	addEmail      *AddEmailHandler
	verifyEmail   *VerifyEmailHandler
}

func NewService(repo RepositoryManager, opts ...Option) *Service {
	f := newFlow(repo, opts...)
	return &Service{
		f:             f,
		accounts:      &AccountProvider{f: f},
		initReset:     &InitializePasswordResetHandler{f: f},
		finalizeReset: &FinalizePasswordResetHandler{f: f},
		register:      &RegisterUserHandler{f: f},
		addEmail:      &AddEmailHandler{f: f},
		verifyEmail:   &VerifyEmailHandler{f: f},
	}
}

// Login returns the account for identifier and password. Unknown accounts
// and wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identifier, password string) (*Account, error) {
	return s.accounts.VerifyIdentity(ctx, identifier, password)
}

// InitiatePasswordReset always reports true unless storage fails, the
// result never reveals whether the address exists.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) (bool, error) {
	accepted := false
	err := s.initReset.Execute(ctx, InitializePasswordResetMessage{
		Email: email,
		OnResponse: func(resp *InitializePasswordResetResponse) {
			accepted = resp.Success
		},
	})
	if err != nil {
		return false, err
	}
	return accepted, nil
}

// ConsumePasswordReset sets a new password when token matches the stored
// reset token for accountID
func (s *Service) ConsumePasswordReset(ctx context.Context, accountID uuid.UUID, token, newPassword string) (*Account, error) {
	var account *Account
	err := s.finalizeReset.Execute(ctx, FinalizePasswordResetMessage{
		AccountID: accountID,
		Token:     token,
		Password:  newPassword,
		OnResponse: func(resp *FinalizePasswordResetResponse) {
			account = resp.Account
		},
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Register creates a password account with an unverified email
func (s *Service) Register(ctx context.Context, msg RegisterUserMessage) (*Account, error) {
	var account *Account
	onResponse := msg.OnResponse
	msg.OnResponse = func(resp *RegisterUserResponse) {
		account = resp.Account
		if onResponse != nil {
			onResponse(resp)
		}
	}

	if err := s.register.Execute(ctx, msg); err != nil {
		return nil, err
	}
	return account, nil
}

// AddEmail attaches an unverified address to an account and queues its
// verification email
func (s *Service) AddEmail(ctx context.Context, accountID uuid.UUID, address string) (*Email, error) {
	var email *Email
	err := s.addEmail.Execute(ctx, AddEmailMessage{
		AccountID: accountID,
		Address:   address,
		OnResponse: func(e *Email) {
			email = e
		},
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// VerifyEmail marks the email verified when token matches
func (s *Service) VerifyEmail(ctx context.Context, emailID uuid.UUID, token string) (*Email, error) {
	var email *Email
	err := s.verifyEmail.Execute(ctx, VerifyEmailMessage{
		EmailID: emailID,
		Token:   token,
		OnResponse: func(e *Email) {
			email = e
		},
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

// DeleteAccount removes the account, every dependent row goes with it
func (s *Service) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	if err := cancelled(ctx, "account deletion"); err != nil {
		return err
	}

	ctx, cancel := s.f.withTimeout(ctx)
	defer cancel()

	err := s.f.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.f.repo.Accounts().FindTx(ctx, tx, accountID); err != nil {
			return err
		}
		return s.f.repo.Accounts().DeleteTx(ctx, tx, accountID)
	})
	if err != nil {
		if IsNotFound(err) {
			return accountNotFound(accountID)
		}
		return internalError(err, "failed to delete account")
	}

	s.f.record(ctx, ActivityEventAccountDeleted, accountID, nil)
	return nil
}

// Registrar exposes the account constructor used by the service
func (s *Service) Registrar() *Registrar {
	return s.f.registrar()
}

func (s *Service) Repository() RepositoryManager {
	return s.f.repo
}

func (s *Service) Config() Config {
	return s.f.cfg
}

func (s *Service) Now() time.Time {
	return s.f.clock()
}

func (s *Service) Logger() Logger {
	return s.f.logger
}

// RecordActivity forwards an event to the configured sink
func (s *Service) RecordActivity(ctx context.Context, eventType ActivityEventType, accountID uuid.UUID, metadata map[string]any) {
	s.f.record(ctx, eventType, accountID, metadata)
}

// RetryOnConflict reruns fn on unique index violations using the service settings
func (s *Service) RetryOnConflict(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.f.retry(ctx, fn)
}

// WithTimeout bounds ctx by the configured operation timeout
func (s *Service) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return s.f.withTimeout(ctx)
}
