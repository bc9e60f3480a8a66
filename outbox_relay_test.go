package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-forum-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, task *auth.OutboxTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func taskNamed(name string) any {
	return mock.MatchedBy(func(task *auth.OutboxTask) bool {
		return task.Task == name
	})
}

// relayClock runs ahead of the wall clock used to stamp new outbox rows
func relayClock() *testClock {
	return &testClock{now: time.Now().UTC().Add(time.Minute)}
}

func TestOutboxRelay_DispatchesPendingTasks(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "pepe@example.com")
	require.NoError(t, err)

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, taskNamed(auth.TaskSendVerificationEmail)).Return(nil).Once()

	clock := relayClock()
	relay := auth.NewOutboxRelay(f.repo, dispatcher, f.cfg).
		WithLogger(testLogger{}).
		WithClock(clock.Now)

	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tasks := f.tasks(t, auth.TaskSendVerificationEmail)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].DispatchedAt)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Empty(t, tasks[0].LastError)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "dispatched tasks are not sent again")

	dispatcher.AssertExpectations(t)
}

func TestOutboxRelay_FailedDispatchIsDeferred(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "pepe@example.com")
	require.NoError(t, err)

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("queue down")).Once()

	clock := relayClock()
	relay := auth.NewOutboxRelay(f.repo, dispatcher, f.cfg).
		WithLogger(testLogger{}).
		WithClock(clock.Now)

	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	tasks := f.tasks(t, auth.TaskSendVerificationEmail)
	require.Len(t, tasks, 1)
	assert.Nil(t, tasks[0].DispatchedAt)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Equal(t, "queue down", tasks[0].LastError)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "task waits for its backoff")

	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(nil).Once()
	clock.Advance(f.cfg.OutboxRetryBackoff + time.Second)

	n, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	tasks = f.tasks(t, auth.TaskSendVerificationEmail)
	require.NotNil(t, tasks[0].DispatchedAt)
	assert.Equal(t, 2, tasks[0].Attempts)

	dispatcher.AssertExpectations(t)
}

func TestOutboxRelay_StopsAfterMaxAttempts(t *testing.T) {
	f := setupService(t)
	account := f.register(t, "pepe", "", "hunter22")

	_, err := f.svc.AddEmail(context.Background(), account.ID, "pepe@example.com")
	require.NoError(t, err)

	cfg := f.cfg
	cfg.OutboxMaxAttempts = 1

	dispatcher := new(MockDispatcher)
	dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return(errors.New("queue down")).Once()

	clock := relayClock()
	relay := auth.NewOutboxRelay(f.repo, dispatcher, cfg).
		WithLogger(testLogger{}).
		WithClock(clock.Now)

	_, err = relay.ProcessBatch(context.Background())
	require.NoError(t, err)

	clock.Advance(time.Hour)
	n, err := relay.ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	dispatcher.AssertNumberOfCalls(t, "Dispatch", 1)
}

func TestOutboxRelay_RequiresDispatcher(t *testing.T) {
	f := setupService(t)

	_, err := auth.NewOutboxRelay(f.repo, nil, f.cfg).ProcessBatch(context.Background())
	assert.Error(t, err)
}

func TestOutboxRelay_RunStopsOnCancel(t *testing.T) {
	f := setupService(t)

	cfg := f.cfg
	cfg.OutboxPollInterval = 5 * time.Millisecond

	dispatcher := new(MockDispatcher)
	relay := auth.NewOutboxRelay(f.repo, dispatcher, cfg).WithLogger(testLogger{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.NoError(t, relay.Run(ctx))
	dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}
