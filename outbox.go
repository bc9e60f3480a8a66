package auth

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Outbox stores notification requests next to the data change that caused
// them. Rows are delivered later by OutboxRelay.
type Outbox interface {
	Notifier
	PendingTx(ctx context.Context, tx bun.IDB, now time.Time, maxAttempts, limit int) ([]*OutboxTask, error)
	MarkDispatchedTx(ctx context.Context, tx bun.IDB, task *OutboxTask, now time.Time) error
	MarkFailedTx(ctx context.Context, tx bun.IDB, task *OutboxTask, cause error, availableAt time.Time) error
	ListByTask(ctx context.Context, task string) ([]*OutboxTask, error)
}

type outbox struct {
	db    *bun.DB
	clock Clock
}

func NewOutboxRepository(db *bun.DB) Outbox {
	return &outbox{db: db, clock: defaultClock}
}

// EnqueueTx inserts a task using the caller's transaction
func (o *outbox) EnqueueTx(ctx context.Context, tx bun.IDB, task string, payload map[string]any) error {
	now := o.clock()
	record := &OutboxTask{
		ID:          uuid.New(),
		Task:        task,
		Payload:     payload,
		CreatedAt:   now,
		AvailableAt: now,
	}

	if record.Payload == nil {
		record.Payload = map[string]any{}
	}

	_, err := tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (o *outbox) PendingTx(ctx context.Context, tx bun.IDB, now time.Time, maxAttempts, limit int) ([]*OutboxTask, error) {
	records := []*OutboxTask{}

	q := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.dispatched_at IS NULL").
		Where("?TableAlias.available_at <= ?", now).
		OrderExpr("?TableAlias.available_at ASC").
		Limit(limit)

	if maxAttempts > 0 {
		q = q.Where("?TableAlias.attempts < ?", maxAttempts)
	}

	if tx.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE SKIP LOCKED")
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return records, nil
}

func (o *outbox) MarkDispatchedTx(ctx context.Context, tx bun.IDB, task *OutboxTask, now time.Time) error {
	task.DispatchedAt = &now
	task.Attempts++
	task.LastError = ""

	_, err := tx.NewUpdate().
		Model(task).
		Column("dispatched_at", "attempts", "last_error").
		WherePK().
		Exec(ctx)
	return err
}

func (o *outbox) MarkFailedTx(ctx context.Context, tx bun.IDB, task *OutboxTask, cause error, availableAt time.Time) error {
	task.Attempts++
	task.AvailableAt = availableAt
	if cause != nil {
		task.LastError = cause.Error()
	}

	_, err := tx.NewUpdate().
		Model(task).
		Column("attempts", "available_at", "last_error").
		WherePK().
		Exec(ctx)
	return err
}

func (o *outbox) ListByTask(ctx context.Context, task string) ([]*OutboxTask, error) {
	records := []*OutboxTask{}
	err := o.db.NewSelect().
		Model(&records).
		Where("?TableAlias.task = ?", task).
		OrderExpr("?TableAlias.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// LogDispatcher writes tasks to a Logger instead of a queue. Useful in
// development where no mailer is running.
type LogDispatcher struct {
	Logger Logger
}

func (d LogDispatcher) Dispatch(_ context.Context, task *OutboxTask) error {
	logger := d.Logger
	if logger == nil {
		logger = defLogger{}
	}

	payload, err := json.Marshal(task.Payload)
	if err != nil {
		return err
	}

	logger.Info("outbox task %s (%s): %s", task.Task, task.ID, payload)
	return nil
}
