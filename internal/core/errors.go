package core

import "errors"

// Sentinel errors for the service. Callers branch on these with errors.Is;
// every layer wraps them with context via fmt.Errorf("...: %w", err).
var (
	// ErrSynthesis indicates the speech engine was unreachable, rejected the
	// input, or returned malformed output.
	ErrSynthesis = errors.New("synthesis failed")
	// ErrNoAudio indicates the engine finished a turn without producing audio.
	ErrNoAudio = errors.New("no audio data received")
	// ErrRateSearchExhausted indicates no rate met the duration target within
	// the iteration budget.
	ErrRateSearchExhausted = errors.New("rate search exhausted iteration budget")
	// ErrRateOutOfRange indicates the resolved rate lies outside the range the
	// engine supports.
	ErrRateOutOfRange = errors.New("resolved rate outside supported range")
	// ErrProxyPoolExhausted indicates every proxy candidate and the final
	// direct attempt failed.
	ErrProxyPoolExhausted = errors.New("proxy pool exhausted")
	// ErrNormalization indicates the loudness normalization tool exited
	// non-zero.
	ErrNormalization = errors.New("loudness normalization failed")
	// ErrUpload indicates the artifact could not be stored.
	ErrUpload = errors.New("artifact upload failed")
	// ErrObjectNotFound indicates the requested object does not exist in the
	// store.
	ErrObjectNotFound = errors.New("object not found")
	// ErrTaskNotFound indicates the task identifier is unknown to the store.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition indicates an attempt to move a task backward or out
	// of a terminal state.
	ErrInvalidTransition = errors.New("invalid task state transition")
	// ErrQueueFull indicates the task queue rejected a submission.
	ErrQueueFull = errors.New("task queue is full")
)
