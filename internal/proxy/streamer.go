package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/tts"
)

// TransportStreamer opens one live synthesis stream over a caller-supplied
// transport.
type TransportStreamer interface {
	StreamWith(ctx context.Context, client *http.Client, req core.SynthesisRequest) (<-chan tts.Chunk, error)
}

// Streamer relays a live synthesis stream to a writer, rotating proxies while
// no audio has been delivered yet. Once the first audio byte is written the
// stream is committed: a later failure aborts it instead of retrying, so the
// listener never hears duplicated audio.
type Streamer struct {
	pool   *Pool
	client TransportStreamer
}

// NewStreamer wraps the given streaming client with pool failover.
func NewStreamer(pool *Pool, client TransportStreamer) *Streamer {
	return &Streamer{
		pool:   pool,
		client: client,
	}
}

// StreamTo synthesizes req and writes audio bytes to w as they arrive.
func (s *Streamer) StreamTo(ctx context.Context, req core.SynthesisRequest, w io.Writer) error {
	var committedErr error

	wrote := false

	err := s.pool.WithFailover(ctx, func(ctx context.Context, client *http.Client) error {
		chunks, dialErr := s.client.StreamWith(ctx, client, req)
		if dialErr != nil {
			return dialErr
		}

		for chunk := range chunks {
			if chunk.Err != nil {
				if !wrote {
					return chunk.Err
				}

				// Audio already sent: stop the failover loop.
				committedErr = chunk.Err

				return nil
			}

			if len(chunk.Audio) == 0 {
				continue
			}

			_, writeErr := w.Write(chunk.Audio)
			if writeErr != nil {
				committedErr = fmt.Errorf("failed to write audio stream: %w", writeErr)

				return nil
			}

			wrote = true
		}

		if !wrote {
			return core.ErrNoAudio
		}

		return nil
	})
	if err != nil {
		return err
	}

	return committedErr
}
