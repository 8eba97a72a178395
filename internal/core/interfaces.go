// Package core defines the domain types, interfaces and error taxonomy for
// the edge-tts-service.
package core

import (
	"context"
	"time"
)

// WordBoundary is a timing marker emitted by the speech engine for one spoken
// word. Offset and Duration are in 100-nanosecond ticks from the start of the
// audio stream.
type WordBoundary struct {
	Offset   int64
	Duration int64
	Text     string
}

// SynthesisRequest holds the per-call parameters for one synthesis. Rate and
// Volume are signed percent strings as the engine expects them ("+0%",
// "-15%").
type SynthesisRequest struct {
	Text   string
	Voice  string
	Rate   string
	Volume string
}

// SynthesisResult is the ephemeral output of one synthesis: the raw audio
// bytes plus the ordered word boundary events. It is consumed immediately and
// never persisted.
type SynthesisResult struct {
	Audio      []byte
	Boundaries []WordBoundary
}

// Synthesizer produces complete, fully buffered synthesis results.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisResult, error)
}

// TaskStore maps task identifiers to task records. Implementations must make
// each update visible atomically so a concurrent poller never observes a
// half-written record.
type TaskStore interface {
	Create(ctx context.Context, task Task) error
	Get(ctx context.Context, id string) (Task, error)
	Advance(ctx context.Context, id string, tr Transition) (Task, error)
}

// ObjectStore is a durable key-value blob store partitioned into buckets.
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
	PresignedGetURL(bucket, key string, ttl time.Duration) (string, error)
}

// Normalizer applies loudness normalization to a finished audio file in
// place.
type Normalizer interface {
	Normalize(ctx context.Context, path, params string) error
}
