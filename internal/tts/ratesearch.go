package tts

import (
	"context"
	"fmt"
	"math"

	"github.com/linyqh/edge-tts-service/internal/core"
)

// Engine-supported rate range, and the iteration budget for the search.
const (
	MinSupportedRate     = 0.1
	MaxSupportedRate     = 2.0
	DefaultMaxIterations = 5
)

// RateSearchRequest describes one duration-targeted synthesis.
type RateSearchRequest struct {
	Text           string
	Voice          string
	Volume         string
	TargetDuration float64
	Weight         float64
}

// RateSearchResult is the accepted outcome of a rate search.
type RateSearchResult struct {
	Audio    []byte
	Rate     float64
	Duration float64
}

// RateSearch finds a speech rate whose resulting audio fits a target
// duration. The synthesizer is injected so the search is testable without the
// real engine.
type RateSearch struct {
	Synth         core.Synthesizer
	MaxIterations int
}

// FindRate iteratively searches for a rate producing audio at or under the
// target duration. Iteration 0 synthesizes at rate 1.0; each failed iteration
// scales the candidate proportionally (required rate = current rate * measured
// duration / target), assuming duration compresses with the inverse of rate.
// The first measurement at or under the target is accepted, then validated
// against the engine's supported rate range. The proportional approximation
// typically converges within 1-3 iterations; the budget bounds the cost of
// unattainable targets.
func (s *RateSearch) FindRate(ctx context.Context, req RateSearchRequest) (*RateSearchResult, error) {
	iterations := s.MaxIterations
	if iterations <= 0 {
		iterations = DefaultMaxIterations
	}

	rate := 1.0

	for i := 0; i < iterations; i++ {
		result, err := s.Synth.Synthesize(ctx, core.SynthesisRequest{
			Text:   req.Text,
			Voice:  req.Voice,
			Rate:   ConvertRateToPercent(rate),
			Volume: req.Volume,
		})
		if err != nil {
			return nil, err
		}

		duration := EstimateDuration(result.Boundaries, req.Weight)
		if duration <= req.TargetDuration {
			if rate < MinSupportedRate || rate > MaxSupportedRate {
				return nil, fmt.Errorf(
					"%w: %.2f not within [%.1f, %.1f]",
					core.ErrRateOutOfRange, rate, MinSupportedRate, MaxSupportedRate,
				)
			}

			return &RateSearchResult{
				Audio:    result.Audio,
				Rate:     rate,
				Duration: duration,
			}, nil
		}

		rate = roundRate(rate * duration / req.TargetDuration)
	}

	return nil, fmt.Errorf(
		"%w: no rate met target %.2fs within %d iterations",
		core.ErrRateSearchExhausted, req.TargetDuration, iterations,
	)
}

// roundRate rounds a candidate rate to two decimal places.
func roundRate(rate float64) float64 {
	return math.Round(rate*100) / 100
}
