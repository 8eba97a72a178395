package core

import "time"

// TaskStatus is the lifecycle state of an audio task.
type TaskStatus string

const (
	// StatusPending is the initial state, set synchronously at submission.
	StatusPending TaskStatus = "pending"
	// StatusInProgress is set when background execution begins.
	StatusInProgress TaskStatus = "in_progress"
	// StatusCompleted is the terminal success state.
	StatusCompleted TaskStatus = "completed"
	// StatusFailed is the terminal failure state.
	StatusFailed TaskStatus = "failed"
)

// legalTransitions encodes the forward-only state machine. A task never
// re-enters pending or in_progress once it has left them.
var legalTransitions = map[TaskStatus]map[TaskStatus]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusFailed:     true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// CanTransition reports whether moving a task from one status to another is
// legal. Terminal states have no outgoing transitions.
func CanTransition(from, to TaskStatus) bool {
	return legalTransitions[from][to]
}

// Task is the durable record of one asynchronous synthesis request. The
// orchestrator that created a task is its sole writer; every other actor only
// reads it.
type Task struct {
	ID          string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	VoiceRate   string     `json:"voice_rate"`
	Duration    float64    `json:"duration"`
	Message     string     `json:"message"`
	Error       string     `json:"error,omitempty"`
	MaxDuration float64    `json:"max_duration,omitempty"`
	BucketName  string     `json:"bucket_name"`
	ObjectName  string     `json:"object_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Transition describes one step of a task's lifecycle. Fields other than To
// are merged into the record when set, so a terminal transition carries its
// whole result as one atomic update.
type Transition struct {
	To         TaskStatus
	Message    string
	Error      string
	VoiceRate  string
	Duration   float64
	ObjectName string
}
