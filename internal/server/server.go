// Package server exposes the HTTP API: live synthesis, asynchronous audio
// tasks, and signed artifact downloads.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/book-expert/logger"
	"github.com/gin-gonic/gin"

	"github.com/linyqh/edge-tts-service/internal/core"
	"github.com/linyqh/edge-tts-service/internal/orchestrator"
)

const shutdownGracePeriod = 10 * time.Second

// TaskService accepts audio task submissions and reports their status.
type TaskService interface {
	Submit(ctx context.Context, req orchestrator.SubmitRequest) (string, error)
	Status(ctx context.Context, taskID string) (core.Task, error)
}

// SpeechStreamer relays a live synthesis stream to a writer.
type SpeechStreamer interface {
	StreamTo(ctx context.Context, req core.SynthesisRequest, w io.Writer) error
}

// LinkVerifier checks the signature on a presigned download link.
type LinkVerifier interface {
	Verify(bucket, key string, expires int64, signature string) bool
}

// Options carries the request defaults and download link lifetime.
// NATSConnected, when set, is polled by the health endpoint.
type Options struct {
	DefaultVoice  string
	DownloadTTL   time.Duration
	NATSConnected func() bool
}

// Server wires the HTTP routes to the task, synthesis and storage layers.
type Server struct {
	tasks    TaskService
	objects  core.ObjectStore
	verifier LinkVerifier
	streamer SpeechStreamer
	synth    core.Synthesizer
	opts     Options
	log      *logger.Logger
	engine   *gin.Engine
}

// New builds the server and registers its routes.
func New(
	tasks TaskService,
	objects core.ObjectStore,
	verifier LinkVerifier,
	streamer SpeechStreamer,
	synth core.Synthesizer,
	opts Options,
	log *logger.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		tasks:    tasks,
		objects:  objects,
		verifier: verifier,
		streamer: streamer,
		synth:    synth,
		opts:     opts,
		log:      log,
		engine:   gin.New(),
	}

	server.engine.Use(gin.Recovery())
	server.registerRoutes()

	return server
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/tts", s.handleTTS)
	s.engine.POST("/create-audio-task", s.handleCreateTask)
	s.engine.GET("/audio-task/:task_id", s.handleTaskStatus)
	s.engine.GET("/download/:bucket/*object", s.handleDownload)
}

// Handler returns the routing handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves HTTP on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		err := httpServer.Shutdown(shutdownCtx)
		if err != nil {
			return fmt.Errorf("failed to shut down HTTP server: %w", err)
		}

		return nil
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server stopped: %w", err)
		}

		return nil
	}
}
