package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// OutboxRelay moves pending outbox rows to a Dispatcher. Each batch runs in
// its own transaction, a failed dispatch only defers that row.
type OutboxRelay struct {
	repo       RepositoryManager
	dispatcher Dispatcher
	logger     Logger
	clock      Clock

	interval    time.Duration
	batchSize   int
	backoff     time.Duration
	maxAttempts int
}

// NewOutboxRelay creates a relay using the outbox settings in cfg
func NewOutboxRelay(repo RepositoryManager, dispatcher Dispatcher, cfg Config) *OutboxRelay {
	return &OutboxRelay{
		repo:        repo,
		dispatcher:  dispatcher,
		logger:      defLogger{},
		clock:       defaultClock,
		interval:    cfg.OutboxPollInterval,
		batchSize:   cfg.OutboxBatchSize,
		backoff:     cfg.OutboxRetryBackoff,
		maxAttempts: cfg.OutboxMaxAttempts,
	}
}

func (r *OutboxRelay) WithLogger(logger Logger) *OutboxRelay {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *OutboxRelay) WithClock(clock Clock) *OutboxRelay {
	if clock != nil {
		r.clock = clock
	}
	return r
}

// Run polls until ctx is cancelled
func (r *OutboxRelay) Run(ctx context.Context) error {
	interval := r.interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started, polling every %s", interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.Error("outbox relay batch failed: %v", err)
			}
		}
	}
}

// ProcessBatch dispatches one batch and returns how many rows were delivered
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	if r.dispatcher == nil {
		return 0, goerrors.New("outbox relay needs a dispatcher", goerrors.CategoryInternal)
	}

	limit := r.batchSize
	if limit <= 0 {
		limit = 50
	}

	delivered := 0
	err := r.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := r.clock()
		tasks, err := r.repo.Outbox().PendingTx(ctx, tx, now, r.maxAttempts, limit)
		if err != nil {
			return err
		}

		for _, task := range tasks {
			if err := r.dispatcher.Dispatch(ctx, task); err != nil {
				r.logger.Warn("outbox task %s (%s) attempt %d failed: %v", task.Task, task.ID, task.Attempts+1, err)
				if err := r.repo.Outbox().MarkFailedTx(ctx, tx, task, err, now.Add(r.backoff)); err != nil {
					return err
				}
				continue
			}

			if err := r.repo.Outbox().MarkDispatchedTx(ctx, tx, task, now); err != nil {
				return err
			}
			delivered++
		}
		return nil
	})

	if err != nil {
		return 0, internalError(err, "failed to process outbox batch")
	}

	if delivered > 0 {
		r.logger.Debug("outbox relay delivered %d task(s)", delivered)
	}
	return delivered, nil
}
