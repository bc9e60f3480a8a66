package queue

import (
	"context"
	"encoding/json"
	"time"

	goerrors "github.com/goliatone/go-errors"
	auth "github.com/goliatone/go-forum-auth"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the job lists, one list per task name
const DefaultKeyPrefix = "forum:jobs:"

// Job is the JSON document pushed for every outbox task
type Job struct {
	ID        string         `json:"id"`
	Task      string         `json:"task"`
	Payload   map[string]any `json:"payload"`
	Attempt   int            `json:"attempt"`
	CreatedAt time.Time      `json:"created_at"`
}

// RedisDispatcher implements auth.Dispatcher with LPUSH onto a redis list.
// Workers BRPOP from the same key.
type RedisDispatcher struct {
	redis  *redis.Client
	prefix string
}

var _ auth.Dispatcher = (*RedisDispatcher)(nil)

func NewRedisDispatcher(redisClient *redis.Client, prefix string) *RedisDispatcher {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisDispatcher{
		redis:  redisClient,
		prefix: prefix,
	}
}

// Key returns the list a task is pushed to
func (d *RedisDispatcher) Key(task string) string {
	return d.prefix + task
}

func (d *RedisDispatcher) Dispatch(ctx context.Context, task *auth.OutboxTask) error {
	if task == nil {
		return goerrors.New("dispatch: nil task", goerrors.CategoryBadInput)
	}

	encoded, err := json.Marshal(Job{
		ID:        task.ID.String(),
		Task:      task.Task,
		Payload:   task.Payload,
		Attempt:   task.Attempts + 1,
		CreatedAt: task.CreatedAt,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode job").
			WithMetadata(map[string]any{"task_id": task.ID.String(), "task": task.Task})
	}

	if err := d.redis.LPush(ctx, d.Key(task.Task), encoded).Err(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to push job").
			WithMetadata(map[string]any{"task_id": task.ID.String(), "task": task.Task, "key": d.Key(task.Task)})
	}
	return nil
}
