// Package core_test tests the task state machine rules.
package core_test

import (
	"testing"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition_Forward(t *testing.T) {
	t.Parallel()

	assert.True(t, core.CanTransition(core.StatusPending, core.StatusInProgress))
	assert.True(t, core.CanTransition(core.StatusPending, core.StatusFailed))
	assert.True(t, core.CanTransition(core.StatusInProgress, core.StatusCompleted))
	assert.True(t, core.CanTransition(core.StatusInProgress, core.StatusFailed))
}

func TestCanTransition_Backward(t *testing.T) {
	t.Parallel()

	assert.False(t, core.CanTransition(core.StatusInProgress, core.StatusPending))
	assert.False(t, core.CanTransition(core.StatusCompleted, core.StatusPending))
	assert.False(t, core.CanTransition(core.StatusFailed, core.StatusInProgress))
}

func TestCanTransition_Terminal(t *testing.T) {
	t.Parallel()

	// No transition may leave a terminal state, including into the other
	// terminal state.
	assert.False(t, core.CanTransition(core.StatusCompleted, core.StatusFailed))
	assert.False(t, core.CanTransition(core.StatusFailed, core.StatusCompleted))
	assert.False(t, core.CanTransition(core.StatusCompleted, core.StatusCompleted))
}

func TestCanTransition_SkippingInProgress(t *testing.T) {
	t.Parallel()

	// pending -> completed without running is never legal.
	assert.False(t, core.CanTransition(core.StatusPending, core.StatusCompleted))
}
