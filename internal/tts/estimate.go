package tts

import "github.com/linyqh/edge-tts-service/internal/core"

// Word boundary offsets are reported in 100-nanosecond ticks.
const ticksPerSecond = 10_000_000

// EstimateDuration derives the effective audio duration in seconds from the
// engine's word boundary events. The utterance ends at the end edge of the
// last boundary (its offset plus its own span); weight is a linear fudge
// factor the caller supplies to compensate for the systematic offset between
// reported word timing and actual file duration. Returns 0.0 when no events
// exist.
func EstimateDuration(events []core.WordBoundary, weight float64) float64 {
	if len(events) == 0 {
		return 0.0
	}

	last := events[len(events)-1]

	return float64(last.Offset+last.Duration) / ticksPerSecond * weight
}
