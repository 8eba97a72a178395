package proxy

import (
	"context"
	"net/http"

	"github.com/linyqh/edge-tts-service/internal/core"
)

// TransportSynthesizer runs one buffered synthesis attempt over a
// caller-supplied transport.
type TransportSynthesizer interface {
	SynthesizeWith(ctx context.Context, client *http.Client, req core.SynthesisRequest) (*core.SynthesisResult, error)
}

// Synthesizer adapts a TransportSynthesizer into a core.Synthesizer whose
// every call retries through the pool's failover sequence. Transient engine
// failures are absorbed here and never surface individually.
type Synthesizer struct {
	pool   *Pool
	client TransportSynthesizer
}

// NewSynthesizer wraps the given synthesis client with pool failover.
func NewSynthesizer(pool *Pool, client TransportSynthesizer) *Synthesizer {
	return &Synthesizer{
		pool:   pool,
		client: client,
	}
}

// Synthesize runs one synthesis, rotating proxies on failure.
func (s *Synthesizer) Synthesize(ctx context.Context, req core.SynthesisRequest) (*core.SynthesisResult, error) {
	var result *core.SynthesisResult

	err := s.pool.WithFailover(ctx, func(ctx context.Context, client *http.Client) error {
		res, synthErr := s.client.SynthesizeWith(ctx, client, req)
		if synthErr != nil {
			return synthErr
		}

		result = res

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
