// Package taskstore_test tests the NATS task store implementation.
package taskstore_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/taskstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer starts an in-memory NATS server for testing purposes.
func startTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func newTestStore(t *testing.T) *taskstore.NatsTaskStore {
	t.Helper()

	natsServer, natsConnection := startTestServer(t)
	t.Cleanup(natsServer.Shutdown)
	t.Cleanup(natsConnection.Close)

	jetstreamContext, err := natsConnection.JetStream()
	require.NoError(t, err)

	store, err := taskstore.New(jetstreamContext, "test-tasks")
	require.NoError(t, err)

	return store
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	task := core.Task{
		ID:          uuid.NewString(),
		Status:      core.StatusPending,
		Message:     "task accepted",
		MaxDuration: 3.0,
		BucketName:  "audio",
	}

	require.NoError(t, store.Create(ctx, task))

	got, err := store.Get(ctx, task.ID)
	require.NoError(t, err)

	assert.Equal(t, task.ID, got.ID)
	assert.Equal(t, core.StatusPending, got.Status)
	assert.Equal(t, "task accepted", got.Message)
	assert.InEpsilon(t, 3.0, got.MaxDuration, 0.0001)
	assert.Equal(t, "audio", got.BucketName)
	assert.Empty(t, got.VoiceRate)
	assert.Empty(t, got.ObjectName)
}

func TestGet_UnknownTask(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Get(context.Background(), "no-such-task")
	require.ErrorIs(t, err, core.ErrTaskNotFound)
}

func TestAdvance_FullLifecycle(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	task := core.Task{ID: uuid.NewString(), Status: core.StatusPending, BucketName: "audio"}
	require.NoError(t, store.Create(ctx, task))

	inProgress, err := store.Advance(ctx, task.ID, core.Transition{
		To:      core.StatusInProgress,
		Message: "synthesis started",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProgress, inProgress.Status)

	completed, err := store.Advance(ctx, task.ID, core.Transition{
		To:         core.StatusCompleted,
		Message:    "task completed",
		VoiceRate:  "2.00",
		Duration:   2.98,
		ObjectName: task.ID + ".mp3",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusCompleted, completed.Status)
	assert.Equal(t, "2.00", completed.VoiceRate)
	assert.InEpsilon(t, 2.98, completed.Duration, 0.0001)
	assert.Equal(t, task.ID+".mp3", completed.ObjectName)

	// Polling a completed task returns stable results.
	for i := 0; i < 3; i++ {
		got, getErr := store.Get(ctx, task.ID)
		require.NoError(t, getErr)
		assert.Equal(t, completed.ObjectName, got.ObjectName)
		assert.InEpsilon(t, completed.Duration, got.Duration, 0.0001)
	}
}

func TestAdvance_RejectsIllegalTransitions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	task := core.Task{ID: uuid.NewString(), Status: core.StatusPending}
	require.NoError(t, store.Create(ctx, task))

	// pending -> completed skips execution entirely.
	_, err := store.Advance(ctx, task.ID, core.Transition{To: core.StatusCompleted})
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = store.Advance(ctx, task.ID, core.Transition{To: core.StatusInProgress})
	require.NoError(t, err)

	_, err = store.Advance(ctx, task.ID, core.Transition{To: core.StatusFailed, Error: "boom"})
	require.NoError(t, err)

	// Terminal states admit no further transitions.
	_, err = store.Advance(ctx, task.ID, core.Transition{To: core.StatusCompleted})
	require.ErrorIs(t, err, core.ErrInvalidTransition)

	_, err = store.Advance(ctx, task.ID, core.Transition{To: core.StatusInProgress})
	require.ErrorIs(t, err, core.ErrInvalidTransition)
}

func TestAdvance_UnknownTask(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)

	_, err := store.Advance(context.Background(), "no-such-task", core.Transition{
		To: core.StatusInProgress,
	})
	require.ErrorIs(t, err, core.ErrTaskNotFound)
}
