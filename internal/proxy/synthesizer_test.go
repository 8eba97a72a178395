package proxy_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/proxy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakySynthesizer fails a fixed number of attempts before succeeding.
type flakySynthesizer struct {
	failures int
	calls    int
}

func (f *flakySynthesizer) SynthesizeWith(
	_ context.Context,
	_ *http.Client,
	_ core.SynthesisRequest,
) (*core.SynthesisResult, error) {
	f.calls++

	if f.calls <= f.failures {
		return nil, errMockAttempt
	}

	return &core.SynthesisResult{Audio: []byte("audio")}, nil
}

func TestSynthesizer_RetriesThroughPool(t *testing.T) {
	t.Parallel()

	pool := newLoadedPool(t, "10.0.0.1:8080", "10.0.0.2:8080")
	synth := proxy.NewSynthesizer(pool, &flakySynthesizer{failures: 2})

	result, err := synth.Synthesize(context.Background(), core.SynthesisRequest{
		Text:  "hello",
		Voice: "zh-TW-HsiaoYuNeural",
	})
	require.NoError(t, err)

	assert.Equal(t, []byte("audio"), result.Audio)
}

func TestSynthesizer_Exhaustion(t *testing.T) {
	t.Parallel()

	pool := newLoadedPool(t, "10.0.0.1:8080")
	synth := proxy.NewSynthesizer(pool, &flakySynthesizer{failures: 100})

	_, err := synth.Synthesize(context.Background(), core.SynthesisRequest{
		Text:  "hello",
		Voice: "zh-TW-HsiaoYuNeural",
	})
	require.ErrorIs(t, err, core.ErrProxyPoolExhausted)
}
