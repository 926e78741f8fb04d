package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/AmalSKumar0/voicebot/internal/audio"
	"github.com/AmalSKumar0/voicebot/internal/batch"
	"github.com/AmalSKumar0/voicebot/internal/config"
	"github.com/AmalSKumar0/voicebot/internal/conversation"
	"github.com/AmalSKumar0/voicebot/internal/metrics"
	"github.com/AmalSKumar0/voicebot/internal/reply"
	"github.com/AmalSKumar0/voicebot/internal/server"
	"github.com/AmalSKumar0/voicebot/internal/stream"
	"github.com/AmalSKumar0/voicebot/internal/transcription"
	"github.com/AmalSKumar0/voicebot/internal/vad"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "voicebot"
	serviceVersion    = "1.0.0"

	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 5 * time.Second
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		slog.Int("max_concurrent_sessions", cfg.Server.MaxConcurrentSessions),
		slog.Int("receive_timeout", cfg.Session.ReceiveTimeout),
		slog.String("ffmpeg_path", cfg.Transcoder.FFmpegPath),
		slog.String("transcription_endpoint", cfg.Transcription.Endpoint),
		slog.String("reply_model", cfg.Reply.Model),
		slog.String("conversation_backend", cfg.Conversation.Backend),
		slog.Bool("vad_enabled", cfg.VAD.Enabled),
		slog.String("log_level", cfg.Logging.Level),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Service stopped")
}

// run wires the components and serves until SIGINT/SIGTERM
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	workspace, err := audio.NewWorkspace(cfg.Server.TempDir, logger)
	if err != nil {
		return fmt.Errorf("failed to prepare temp directory: %w", err)
	}

	transcoder := audio.NewFFmpegTranscoder(audio.FFmpegConfig{
		Path:          cfg.Transcoder.FFmpegPath,
		SampleRate:    cfg.Transcoder.SampleRate,
		Channels:      cfg.Transcoder.Channels,
		Timeout:       cfg.Transcoder.GetTimeoutDuration(),
		MaxConcurrent: cfg.Transcoder.MaxConcurrent,
	}, logger)

	transcriptionClient, err := transcription.NewClient(transcription.Config{
		Endpoint:      cfg.Transcription.Endpoint,
		APIKey:        cfg.Transcription.APIKey,
		Model:         cfg.Transcription.Model,
		Language:      cfg.Transcription.Language,
		Timeout:       cfg.Transcription.GetTimeoutDuration(),
		MaxRetries:    cfg.Transcription.MaxRetries,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}
	defer transcriptionClient.Close()

	store, closeStore, err := newStore(ctx, cfg.Conversation, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	engine, err := reply.NewOpenAIClient(reply.OpenAIConfig{
		BaseURL:     cfg.Reply.BaseURL,
		APIKey:      cfg.Reply.APIKey,
		Model:       cfg.Reply.Model,
		Temperature: float32(cfg.Reply.Temperature),
		Timeout:     cfg.Reply.GetTimeoutDuration(),
	})
	if err != nil {
		return fmt.Errorf("failed to create reply engine: %w", err)
	}
	replier := reply.NewService(engine, store, cfg.Reply.SystemPrompt, logger)

	var gate *vad.Processor
	if cfg.VAD.Enabled {
		gate, err = vad.NewProcessor(cfg.VAD.Threshold, cfg.VAD.WindowSize)
		if err != nil {
			return fmt.Errorf("failed to create silence gate: %w", err)
		}
		logger.Info("Silence gate enabled",
			slog.Float64("threshold", float64(cfg.VAD.Threshold)),
			slog.Int("window_size", cfg.VAD.WindowSize),
		)
	}

	// Initialize session manager
	streamMgr := stream.NewManager(stream.Dependencies{
		Workspace:   workspace,
		Transcoder:  transcoder,
		Transcriber: transcriptionClient,
		Store:       store,
		Replier:     replier,
		Gate:        gate,
		Metrics:     appMetrics,
	}, stream.ManagerConfig{
		MaxSessions:  cfg.Server.MaxConcurrentSessions,
		EvictOnClose: cfg.Conversation.EvictOnClose,
		Session: stream.SessionConfig{
			ReceiveTimeout:     cfg.Session.GetReceiveTimeoutDuration(),
			MaxFragmentBytes:   int(cfg.Session.MaxFragmentBytes),
			FragmentsPerSecond: cfg.Session.MaxFragmentsPerSecond,
			FragmentBurst:      cfg.Session.FragmentBurst,
		},
	}, logger)
	logger.Info("Session manager initialized",
		slog.Duration("receive_timeout", cfg.Session.GetReceiveTimeoutDuration()),
		slog.Int("history_window", cfg.Conversation.HistoryWindow),
	)

	httpServer := server.NewHTTPServer(cfg, server.Components{
		Sessions:      streamMgr,
		Batch:         batch.NewHandler(workspace, transcoder, transcriptionClient, appMetrics, logger),
		Transcription: transcriptionClient,
		Gate:          gate,
		Metrics:       appMetrics,
		Gatherer:      registry,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Service started successfully, waiting for signals...",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
		)
		return httpServer.ListenAndServe()
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown...")

		// Stop HTTP server first (stop accepting new connections)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := httpServer.Stop(shutdownCtx)
		if err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}

		// End the upgraded WebSocket sessions and wait for their cleanup
		streamMgr.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}

	// Get final statistics
	stats := transcriptionClient.GetStats()
	logger.Info("Final transcription statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	return nil
}

// newStore builds the configured conversation store. The returned func
// releases its resources.
func newStore(ctx context.Context, cfg config.ConversationConfig, logger *slog.Logger) (conversation.Store, func() error, error) {
	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := conversation.NewRedisStore(client,
			conversation.WithPrefix(cfg.RedisPrefix),
			conversation.WithTTL(cfg.GetRedisTTLDuration()),
			conversation.WithWindow(cfg.HistoryWindow),
		)

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}

		logger.Info("Conversation store initialized",
			slog.String("backend", "redis"),
			slog.String("addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.GetRedisTTLDuration()),
		)
		return store, client.Close, nil

	default:
		logger.Info("Conversation store initialized",
			slog.String("backend", "memory"),
			slog.Int("history_window", cfg.HistoryWindow),
		)
		return conversation.NewMemoryStore(cfg.HistoryWindow), func() error { return nil }, nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
