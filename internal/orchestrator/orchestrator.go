// Package orchestrator owns the task lifecycle: it accepts submissions,
// schedules background execution on a bounded worker pool, and drives each
// task through the synthesis, normalization and upload pipeline to a terminal
// state.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/tts"
)

const (
	filePermissions = 0o600
	dirPermissions  = 0o750

	defaultWorkers     = 8
	defaultQueueSize   = 64
	defaultTaskTimeout = 5 * time.Minute
)

// Validation errors for submissions.
var (
	ErrTextEmpty   = errors.New("text cannot be empty")
	ErrVoiceEmpty  = errors.New("voice name cannot be empty")
	ErrBucketEmpty = errors.New("bucket name cannot be empty")
)

// SubmitRequest describes one audio task submission.
type SubmitRequest struct {
	Text          string
	VoiceName     string
	VoiceRate     float64
	VoiceVolume   string
	MP3GainParams string
	MaxDuration   float64
	Weight        float64
	BucketName    string
	DirectoryName string
}

// Options bounds the background execution resources.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	TempDir     string
}

type job struct {
	taskID string
	req    SubmitRequest
}

// Orchestrator is the sole writer of task records. Submissions are admitted
// onto a bounded queue rather than spawned fire-and-forget, so concurrent
// synthesis and upload load is capped by the worker count.
type Orchestrator struct {
	store      core.TaskStore
	objects    core.ObjectStore
	synth      core.Synthesizer
	normalizer core.Normalizer
	log        *logger.Logger

	queue       chan job
	workers     int
	taskTimeout time.Duration
	tempDir     string
}

// New creates an orchestrator. Zero option fields fall back to defaults; the
// temp directory is created if missing.
func New(
	store core.TaskStore,
	objects core.ObjectStore,
	synth core.Synthesizer,
	normalizer core.Normalizer,
	opts Options,
	log *logger.Logger,
) (*Orchestrator, error) {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	if opts.TaskTimeout <= 0 {
		opts.TaskTimeout = defaultTaskTimeout
	}

	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}

	err := os.MkdirAll(opts.TempDir, dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory '%s': %w", opts.TempDir, err)
	}

	return &Orchestrator{
		store:       store,
		objects:     objects,
		synth:       synth,
		normalizer:  normalizer,
		log:         log,
		queue:       make(chan job, opts.QueueSize),
		workers:     opts.Workers,
		taskTimeout: opts.TaskTimeout,
		tempDir:     opts.TempDir,
	}, nil
}

// Run starts the worker pool and blocks until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	for i := 0; i < o.workers; i++ {
		group.Go(func() error {
			o.workerLoop(groupCtx)

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("worker pool stopped with error: %w", err)
	}

	return nil
}

// Submit validates the request, writes the initial pending record
// synchronously and enqueues background execution. A full queue fails the
// submission with ErrQueueFull; the caller never blocks.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	err := validate(req)
	if err != nil {
		return "", err
	}

	if req.VoiceRate == 0 {
		req.VoiceRate = 1.0
	}

	if req.Weight <= 0 {
		req.Weight = 1.0
	}

	taskID := uuid.NewString()

	task := core.Task{
		ID:          taskID,
		Status:      core.StatusPending,
		Message:     "task accepted, waiting for execution",
		MaxDuration: req.MaxDuration,
		BucketName:  req.BucketName,
		CreatedAt:   time.Now().UTC(),
	}

	err = o.store.Create(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to create task record: %w", err)
	}

	select {
	case o.queue <- job{taskID: taskID, req: req}:
		return taskID, nil
	default:
		_, failErr := o.store.Advance(ctx, taskID, core.Transition{
			To:      core.StatusFailed,
			Message: "task queue is full",
			Error:   core.ErrQueueFull.Error(),
		})
		if failErr != nil {
			o.log.Error("Failed to mark rejected task %s as failed: %v", taskID, failErr)
		}

		return taskID, core.ErrQueueFull
	}
}

// Status returns the current record for a task.
func (o *Orchestrator) Status(ctx context.Context, taskID string) (core.Task, error) {
	return o.store.Get(ctx, taskID)
}

func validate(req SubmitRequest) error {
	if req.Text == "" {
		return ErrTextEmpty
	}

	if req.VoiceName == "" {
		return ErrVoiceEmpty
	}

	if req.BucketName == "" {
		return ErrBucketEmpty
	}

	return nil
}

func (o *Orchestrator) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-o.queue:
			o.execute(j)
		}
	}
}

// execute drives one task to a terminal state. The pipeline runs under the
// configured wall-clock timeout; state bookkeeping uses an independent
// context so a timed-out task can still be recorded as failed.
func (o *Orchestrator) execute(j job) {
	runCtx, cancel := context.WithTimeout(context.Background(), o.taskTimeout)
	defer cancel()

	bookCtx := context.Background()

	_, err := o.store.Advance(bookCtx, j.taskID, core.Transition{
		To:      core.StatusInProgress,
		Message: "synthesis in progress",
	})
	if err != nil {
		o.log.Error("Failed to advance task %s to in_progress: %v", j.taskID, err)

		return
	}

	tempPath := filepath.Join(o.tempDir, j.taskID+".mp3")

	// Cleanup runs on success and failure alike.
	defer func() {
		removeErr := os.Remove(tempPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			o.log.Warn("Failed to remove temp file '%s': %v", tempPath, removeErr)
		}
	}()

	outcome, err := o.runPipeline(runCtx, j, tempPath)
	if err != nil {
		o.log.Error("Task %s failed: %v", j.taskID, err)

		_, failErr := o.store.Advance(bookCtx, j.taskID, core.Transition{
			To:      core.StatusFailed,
			Message: failureMessage(err),
			Error:   err.Error(),
		})
		if failErr != nil {
			o.log.Error("Failed to record failure for task %s: %v", j.taskID, failErr)
		}

		return
	}

	_, err = o.store.Advance(bookCtx, j.taskID, core.Transition{
		To:         core.StatusCompleted,
		Message:    "task completed",
		VoiceRate:  outcome.voiceRate,
		Duration:   outcome.duration,
		ObjectName: outcome.objectName,
	})
	if err != nil {
		o.log.Error("Failed to record completion for task %s: %v", j.taskID, err)

		return
	}

	o.log.Info("Task %s completed: %s (%.2fs)", j.taskID, outcome.objectName, outcome.duration)
}

type pipelineOutcome struct {
	voiceRate  string
	duration   float64
	objectName string
}

func (o *Orchestrator) runPipeline(ctx context.Context, j job, tempPath string) (*pipelineOutcome, error) {
	outcome := &pipelineOutcome{}

	var audioData []byte

	if j.req.MaxDuration > 0 {
		search := &tts.RateSearch{Synth: o.synth, MaxIterations: tts.DefaultMaxIterations}

		result, err := search.FindRate(ctx, tts.RateSearchRequest{
			Text:           j.req.Text,
			Voice:          j.req.VoiceName,
			Volume:         j.req.VoiceVolume,
			TargetDuration: j.req.MaxDuration,
			Weight:         j.req.Weight,
		})
		if err != nil {
			return nil, err
		}

		audioData = result.Audio
		outcome.voiceRate = fmt.Sprintf("%.2f", result.Rate)
		outcome.duration = result.Duration
	} else {
		result, err := o.synth.Synthesize(ctx, core.SynthesisRequest{
			Text:   j.req.Text,
			Voice:  j.req.VoiceName,
			Rate:   tts.ConvertRateToPercent(j.req.VoiceRate),
			Volume: j.req.VoiceVolume,
		})
		if err != nil {
			return nil, err
		}

		// voice_rate stays blank: no duration target was requested.
		audioData = result.Audio
		outcome.duration = tts.EstimateDuration(result.Boundaries, j.req.Weight)
	}

	err := os.WriteFile(tempPath, audioData, filePermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to write temp audio file '%s': %w", tempPath, err)
	}

	err = o.normalizer.Normalize(ctx, tempPath, j.req.MP3GainParams)
	if err != nil {
		return nil, err
	}

	normalized, err := os.ReadFile(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read normalized audio file '%s': %w", tempPath, err)
	}

	objectName := j.taskID + ".mp3"
	if j.req.DirectoryName != "" {
		objectName = j.req.DirectoryName + "/" + objectName
	}

	err = o.objects.Upload(ctx, j.req.BucketName, objectName, normalized)
	if err != nil {
		return nil, err
	}

	outcome.objectName = objectName

	return outcome, nil
}

// failureMessage maps an error to the human-readable status message stored on
// the task; the machine detail is recorded separately.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, core.ErrRateSearchExhausted):
		return "duration target could not be met"
	case errors.Is(err, core.ErrRateOutOfRange):
		return "duration target requires an unsupported speech rate"
	case errors.Is(err, core.ErrProxyPoolExhausted):
		return "synthesis failed on every network path"
	case errors.Is(err, core.ErrNormalization):
		return "loudness normalization failed"
	case errors.Is(err, core.ErrUpload):
		return "artifact upload failed"
	case errors.Is(err, context.DeadlineExceeded):
		return "task execution timed out"
	default:
		return "synthesis failed"
	}
}
