package auth

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the credential core settings. Every field can be set from
// the environment, defaults match the production policy.
type Config struct {
	LoginLockoutWindow     time.Duration `env:"AUTH_LOGIN_LOCKOUT_WINDOW" envDefault:"6h"`
	LoginMaxAttempts       int           `env:"AUTH_LOGIN_MAX_ATTEMPTS" envDefault:"20"`
	ResetLockoutWindow     time.Duration `env:"AUTH_RESET_LOCKOUT_WINDOW" envDefault:"72h"`
	ResetMaxAttempts       int           `env:"AUTH_RESET_MAX_ATTEMPTS" envDefault:"20"`
	ResetTokenTTL          time.Duration `env:"AUTH_RESET_TOKEN_TTL" envDefault:"72h"`
	ResetEmailThrottle     time.Duration `env:"AUTH_RESET_EMAIL_THROTTLE" envDefault:"30m"`
	ResetTokenBytes        int           `env:"AUTH_RESET_TOKEN_BYTES" envDefault:"16"`
	VerificationTokenBytes int           `env:"AUTH_VERIFICATION_TOKEN_BYTES" envDefault:"16"`
	BcryptCost             int           `env:"AUTH_BCRYPT_COST" envDefault:"12"`
	UsernameSuffixAttempts int           `env:"AUTH_USERNAME_SUFFIX_ATTEMPTS" envDefault:"1000"`
	ConflictRetries        uint64        `env:"AUTH_CONFLICT_RETRIES" envDefault:"5"`
	ConflictRetryBackoff   time.Duration `env:"AUTH_CONFLICT_RETRY_BACKOFF" envDefault:"10ms"`
	OperationTimeout       time.Duration `env:"AUTH_OPERATION_TIMEOUT" envDefault:"10s"`
	OutboxPollInterval     time.Duration `env:"AUTH_OUTBOX_POLL_INTERVAL" envDefault:"1s"`
	OutboxBatchSize        int           `env:"AUTH_OUTBOX_BATCH_SIZE" envDefault:"50"`
	OutboxRetryBackoff     time.Duration `env:"AUTH_OUTBOX_RETRY_BACKOFF" envDefault:"30s"`
	OutboxMaxAttempts      int           `env:"AUTH_OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
}

// DefaultConfig returns the production policy without reading the environment
func DefaultConfig() Config {
	return Config{
		LoginLockoutWindow:     6 * time.Hour,
		LoginMaxAttempts:       20,
		ResetLockoutWindow:     72 * time.Hour,
		ResetMaxAttempts:       20,
		ResetTokenTTL:          72 * time.Hour,
		ResetEmailThrottle:     30 * time.Minute,
		ResetTokenBytes:        ResetTokenBytes,
		VerificationTokenBytes: VerificationTokenBytes,
		BcryptCost:             12,
		UsernameSuffixAttempts: 1000,
		ConflictRetries:        5,
		ConflictRetryBackoff:   10 * time.Millisecond,
		OperationTimeout:       10 * time.Second,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        50,
		OutboxRetryBackoff:     30 * time.Second,
		OutboxMaxAttempts:      10,
	}
}

// LoadConfig reads a .env file when present and parses the environment
func LoadConfig() (Config, error) {
	// missing .env files are fine
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoginWindow is the lockout policy applied to password logins
func (c Config) LoginWindow() LockoutWindow {
	return LockoutWindow{Duration: c.LoginLockoutWindow, MaxAttempts: c.LoginMaxAttempts}
}

// ResetWindow is the lockout policy applied to reset token consumption
func (c Config) ResetWindow() LockoutWindow {
	return LockoutWindow{Duration: c.ResetLockoutWindow, MaxAttempts: c.ResetMaxAttempts}
}
