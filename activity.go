package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventLoginLocked          ActivityEventType = "auth.login.locked"
	ActivityEventPasswordResetRequest ActivityEventType = "auth.password.reset_requested"
	ActivityEventPasswordResetSuccess ActivityEventType = "auth.password.reset"
	ActivityEventPasswordResetFailure ActivityEventType = "auth.password.reset_failure"
	ActivityEventPasswordResetLocked  ActivityEventType = "auth.password.reset_locked"
	ActivityEventAccountRegistered    ActivityEventType = "auth.account.registered"
	ActivityEventAccountDeleted       ActivityEventType = "auth.account.deleted"
	ActivityEventEmailAdded           ActivityEventType = "auth.email.added"
	ActivityEventEmailVerified        ActivityEventType = "auth.email.verified"
	ActivityEventIdentityLinked       ActivityEventType = "auth.identity.linked"
	ActivityEventIdentityLogin        ActivityEventType = "auth.identity.login"
	ActivityEventIdentityRegistered   ActivityEventType = "auth.identity.registered"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
// Sinks are best effort, errors are logged and never fail a flow.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
