package tts_test

import (
	"testing"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/tts"
	"github.com/stretchr/testify/assert"
)

func TestEstimateDuration_NoEvents(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, tts.EstimateDuration(nil, 1.0), 0.0001)
	assert.InDelta(t, 0.0, tts.EstimateDuration([]core.WordBoundary{}, 1.0), 0.0001)
}

func TestEstimateDuration_LastBoundaryEndEdge(t *testing.T) {
	t.Parallel()

	events := []core.WordBoundary{
		{Offset: 0, Duration: 10_000_000, Text: "first"},
		{Offset: 50_000_000, Duration: 10_000_000, Text: "last"},
	}

	// (50_000_000 + 10_000_000) ticks = 6.0 seconds.
	assert.InEpsilon(t, 6.0, tts.EstimateDuration(events, 1.0), 0.0001)
}

func TestEstimateDuration_WeightScalesLinearly(t *testing.T) {
	t.Parallel()

	events := []core.WordBoundary{
		{Offset: 50_000_000, Duration: 10_000_000, Text: "last"},
	}

	assert.InEpsilon(t, 6.6, tts.EstimateDuration(events, 1.1), 0.0001)
	assert.InEpsilon(t, 3.0, tts.EstimateDuration(events, 0.5), 0.0001)
}
