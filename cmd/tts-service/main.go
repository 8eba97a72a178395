// main package for the edge-tts-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/linyqh/edge-tts-service/internal/audio"
	"github.com/linyqh/edge-tts-service/internal/config"
	"github.com/linyqh/edge-tts-service/internal/objectstore"
	"github.com/linyqh/edge-tts-service/internal/orchestrator"
	"github.com/linyqh/edge-tts-service/internal/proxy"
	"github.com/linyqh/edge-tts-service/internal/server"
	"github.com/linyqh/edge-tts-service/internal/taskstore"
	"github.com/linyqh/edge-tts-service/internal/tts"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "edge-tts-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at '%s': %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	tasks, err := taskstore.New(jetstreamContext, cfg.NATS.TaskBucket)
	if err != nil {
		return fmt.Errorf("failed to initialize task store: %w", err)
	}

	signer, err := objectstore.NewSigner(cfg.Server.BaseURL, cfg.Server.SigningSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize link signer: %w", err)
	}

	objects := objectstore.New(jetstreamContext, signer)

	engine := tts.New(
		cfg.TTS.Endpoint,
		cfg.TTS.TrustedClientToken,
		tts.WithOutputFormat(cfg.TTS.OutputFormat),
	)

	pool, err := buildProxyPool(ctx, cfg, log)
	if err != nil {
		return err
	}

	synth := proxy.NewSynthesizer(pool, engine)
	streamer := proxy.NewStreamer(pool, engine)
	normalizer := audio.NewMP3GainNormalizer(cfg.Tasks.MP3GainBinary)

	orch, err := orchestrator.New(tasks, objects, synth, normalizer, orchestrator.Options{
		Workers:     cfg.Tasks.Workers,
		QueueSize:   cfg.Tasks.QueueSize,
		TaskTimeout: time.Duration(cfg.Tasks.TimeoutSeconds) * time.Second,
		TempDir:     cfg.Tasks.TempDir,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize orchestrator: %w", err)
	}

	httpServer := server.New(orch, objects, signer, streamer, synth, server.Options{
		DefaultVoice:  cfg.TTS.DefaultVoice,
		DownloadTTL:   time.Duration(cfg.Server.DownloadTTLSeconds) * time.Second,
		NATSConnected: natsConnection.IsConnected,
	}, log)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.System("edge-tts-service listening on %s", addr)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return orch.Run(groupCtx)
	})

	group.Go(func() error {
		return httpServer.Run(groupCtx, addr)
	})

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("service stopped with error: %w", err)
	}

	return nil
}

// buildProxyPool loads the proxy list once at startup when a provider is
// configured; an empty pool still serves direct connections.
func buildProxyPool(ctx context.Context, cfg *config.Config, log *logger.Logger) (*proxy.Pool, error) {
	if !cfg.Proxy.Enabled {
		return proxy.NewPool(nil, log), nil
	}

	pool := proxy.NewPool(proxy.NewProvider(cfg.Proxy.ProviderURL), log)

	err := pool.Reload(ctx)
	if err != nil {
		log.Warn("Failed to load proxy list, continuing with direct connections: %v", err)
	}

	return pool, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
