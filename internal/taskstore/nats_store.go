// Package taskstore provides a NATS JetStream key-value implementation of the
// task store.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsTaskStore implements core.TaskStore on a JetStream KeyValue bucket. The
// whole task record is one JSON value, so every update is a single Put and a
// poller always reads a complete record — never a half-written one.
//
// The store relies on the single-writer invariant: only the orchestrator that
// created a task mutates it, so Advance's read-modify-write needs no
// cross-writer coordination.
type NatsTaskStore struct {
	bucket string
	kv     nats.KeyValue
}

// New creates and initializes a NatsTaskStore on the given bucket.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*NatsTaskStore, error) {
	// Use a "create-first" approach.
	kv, err := jetstreamContext.CreateKeyValue(&nats.KeyValueConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Task records for the %s bucket.", bucketName),
		History:     1,
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
	})

	// If the bucket already exists, bind to it.
	if err != nil {
		if errors.Is(err, jetstream.ErrBucketExists) {
			kv, err = jetstreamContext.KeyValue(bucketName)
			if err != nil {
				return nil, fmt.Errorf("failed to bind to existing task bucket '%s': %w", bucketName, err)
			}
		} else {
			return nil, fmt.Errorf("failed to create task bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsTaskStore{
		bucket: bucketName,
		kv:     kv,
	}, nil
}

// Create writes the initial record for a new task.
func (s *NatsTaskStore) Create(_ context.Context, task core.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task '%s': %w", task.ID, err)
	}

	_, err = s.kv.Put(task.ID, data)
	if err != nil {
		return fmt.Errorf("failed to store task '%s' in bucket '%s': %w", task.ID, s.bucket, err)
	}

	return nil
}

// Get returns the current record for the given task identifier.
func (s *NatsTaskStore) Get(_ context.Context, id string) (core.Task, error) {
	entry, err := s.kv.Get(id)
	if err != nil {
		if errors.Is(err, nats.ErrKeyNotFound) {
			return core.Task{}, fmt.Errorf("%w: '%s'", core.ErrTaskNotFound, id)
		}

		return core.Task{}, fmt.Errorf("failed to read task '%s' from bucket '%s': %w", id, s.bucket, err)
	}

	var task core.Task

	err = json.Unmarshal(entry.Value(), &task)
	if err != nil {
		return core.Task{}, fmt.Errorf("failed to unmarshal task '%s': %w", id, err)
	}

	return task, nil
}

// Advance applies a typed state transition to a task. Illegal transitions
// (backward moves, leaving a terminal state) are rejected with
// ErrInvalidTransition before anything is written. The transition's result
// fields land in the same Put as the status change, so a poller never sees a
// terminal status without its result.
func (s *NatsTaskStore) Advance(ctx context.Context, id string, transition core.Transition) (core.Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return core.Task{}, err
	}

	if !core.CanTransition(task.Status, transition.To) {
		return core.Task{}, fmt.Errorf(
			"%w: task '%s' cannot move from %s to %s",
			core.ErrInvalidTransition, id, task.Status, transition.To,
		)
	}

	task.Status = transition.To

	if transition.Message != "" {
		task.Message = transition.Message
	}

	if transition.Error != "" {
		task.Error = transition.Error
	}

	if transition.VoiceRate != "" {
		task.VoiceRate = transition.VoiceRate
	}

	if transition.Duration != 0 {
		task.Duration = transition.Duration
	}

	if transition.ObjectName != "" {
		task.ObjectName = transition.ObjectName
	}

	data, err := json.Marshal(task)
	if err != nil {
		return core.Task{}, fmt.Errorf("failed to marshal task '%s': %w", id, err)
	}

	_, err = s.kv.Put(id, data)
	if err != nil {
		return core.Task{}, fmt.Errorf("failed to update task '%s' in bucket '%s': %w", id, s.bucket, err)
	}

	return task, nil
}
