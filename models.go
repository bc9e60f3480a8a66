package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the central user entity
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Username      string    `bun:"username,notnull" json:"username"`
	Name          string    `bun:"name,nullzero" json:"name,omitempty"`
	AvatarURL     string    `bun:"avatar_url,nullzero" json:"avatar_url,omitempty"`
	IsAdmin       bool      `bun:"is_admin,notnull" json:"is_admin"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// Credential is the private authentication state of one account. Each
// attempt counter is always written together with its first failure time.
type Credential struct {
	bun.BaseModel                   `bun:"table:account_credentials,alias:cred"`
	AccountID                       uuid.UUID  `bun:"account_id,pk,type:uuid" json:"-"`
	PasswordHash                    string     `bun:"password_hash,nullzero" json:"-"`
	PasswordAttempts                int        `bun:"password_attempts,notnull" json:"-"`
	FirstFailedPasswordAttempt      *time.Time `bun:"first_failed_password_attempt" json:"-"`
	ResetPasswordToken              string     `bun:"reset_password_token,nullzero" json:"-"`
	ResetPasswordTokenGenerated     *time.Time `bun:"reset_password_token_generated" json:"-"`
	ResetPasswordAttempts           int        `bun:"reset_password_attempts,notnull" json:"-"`
	FirstFailedResetPasswordAttempt *time.Time `bun:"first_failed_reset_password_attempt" json:"-"`
}

// HasPassword reports whether a password was ever set
func (c *Credential) HasPassword() bool {
	return c != nil && c.PasswordHash != ""
}

// Email belongs to exactly one account. Only one verified row may exist per
// address across all accounts.
type Email struct {
	bun.BaseModel `bun:"table:account_emails,alias:eml"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id"`
	Address       string    `bun:"address,notnull" json:"address"`
	IsVerified    bool      `bun:"is_verified,notnull" json:"is_verified"`
	CreatedAt     time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt     time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

// EmailSecret holds the verification token and the reset email throttle
type EmailSecret struct {
	bun.BaseModel            `bun:"table:account_email_secrets,alias:esec"`
	EmailID                  uuid.UUID  `bun:"email_id,pk,type:uuid" json:"-"`
	VerificationToken        string     `bun:"verification_token,nullzero" json:"-"`
	VerificationEmailSentAt  *time.Time `bun:"verification_email_sent_at" json:"-"`
	PasswordResetEmailSentAt *time.Time `bun:"password_reset_email_sent_at" json:"-"`
}

// OutboxTask is a notification request written in the same transaction
// as the change that caused it
type OutboxTask struct {
	bun.BaseModel `bun:"table:outbox_tasks,alias:obx"`
	ID            uuid.UUID      `bun:"id,pk,type:uuid" json:"id"`
	Task          string         `bun:"task,notnull" json:"task"`
	Payload       map[string]any `bun:"payload,type:jsonb" json:"payload"`
	Attempts      int            `bun:"attempts,notnull" json:"attempts"`
	LastError     string         `bun:"last_error,nullzero" json:"last_error,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at"`
	AvailableAt   time.Time      `bun:"available_at,notnull" json:"available_at"`
	DispatchedAt  *time.Time     `bun:"dispatched_at" json:"dispatched_at,omitempty"`
}

const (
	// TaskSendVerificationEmail asks the mailer to deliver an email verification link
	TaskSendVerificationEmail = "user_emails__send_verification"
	// TaskSendPasswordResetEmail asks the mailer to deliver a password reset link
	TaskSendPasswordResetEmail = "user__forgot_password"
)
