package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	apihttp "magnetcast/internal/api/http"
	"magnetcast/internal/app"
	"magnetcast/internal/domain"
	"magnetcast/internal/domain/ports"
	"magnetcast/internal/metrics"
	"magnetcast/internal/power"
	"magnetcast/internal/registry"
	mongorepo "magnetcast/internal/repository/mongo"
	"magnetcast/internal/selector"
	"magnetcast/internal/services/torrent/engine/anacrolix"
	"magnetcast/internal/stream"
	"magnetcast/internal/subtitles"
	"magnetcast/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "magnetcast")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "magnetcast"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("streamAddr", cfg.StreamAddr),
		slog.String("downloadRoot", cfg.DownloadRoot),
		slog.String("logLevel", cfg.LogLevel),
		slog.Bool("historyEnabled", cfg.MongoURI != ""),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var history ports.HistoryStore
	var disconnectMongo func()
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI,
			options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			cancel()
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			cancel()
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		repo := mongorepo.NewRepository(mongoClient, cfg.MongoDatabase, cfg.MongoCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("error", err.Error()))
		}
		cancel()
		history = repo
		disconnectMongo = func() {
			if err := mongoClient.Disconnect(context.Background()); err != nil {
				logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
			}
		}
	}

	engine, err := anacrolix.New(anacrolix.Config{
		DataDir:         cfg.DownloadRoot,
		MetadataTimeout: cfg.MetadataTimeout,
	})
	if err != nil {
		logger.Error("torrent engine init failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var fileArbiter selector.Arbiter
	var subtitleArbiter subtitles.Arbiter
	if cfg.LLMAPIKey != "" {
		fileArbiter = selector.NewLLMArbiter(selector.LLMConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		})
		subtitleArbiter = subtitles.NewLLMArbiter(subtitles.LLMConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
		})
	} else {
		logger.Warn("LLM_API_KEY not set, file selection uses deterministic fallback only")
	}

	var fetcher ports.SubtitleFetcher
	if cfg.SubtitleIndexURL != "" {
		fetcher = subtitles.NewFetcher(subtitles.Config{
			IndexURL: cfg.SubtitleIndexURL,
			APIKey:   cfg.SubtitleAPIKey,
			Language: cfg.SubtitleLanguage,
		}, subtitleArbiter, logger)
	} else {
		logger.Info("SUBTITLE_INDEX_URL not set, subtitle fetching disabled")
	}

	reg := registry.New()
	supervisor := stream.NewSupervisor(
		engine,
		selector.New(fileArbiter, logger),
		reg,
		history,
		fetcher,
		power.New(logger),
		stream.Config{
			StreamAddr:   cfg.StreamAddr,
			PublicHost:   cfg.PublicHost,
			DownloadRoot: cfg.DownloadRoot,
			GraceWindow:  cfg.GraceWindow,
			PollInterval: cfg.PollInterval,
			IdleInterval: cfg.IdleInterval,
		},
		logger,
	)

	handler := apihttp.NewServer(supervisor,
		apihttp.WithDirectory(reg),
		apihttp.WithHistory(history),
		apihttp.WithLogger(logger),
	)

	// Change hook pushes updates as they happen; the ticker below covers
	// clients that connect between changes.
	reg.OnChange(func(_ domain.Snapshot) {
		handler.BroadcastStreams(reg.List())
	})
	go broadcastStreamStates(rootCtx, reg, handler)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("server started", slog.String("addr", cfg.HTTPAddr))

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", slog.String("error", err.Error()))
	}
	supervisor.Shutdown()
	if disconnectMongo != nil {
		disconnectMongo()
	}

	logger.Info("server stopped")
}

// broadcastStreamStates pushes registry snapshots to websocket clients on a
// fixed cadence so a tray or status UI stays live without polling.
func broadcastStreamStates(ctx context.Context, reg *registry.Registry, handler *apihttp.Server) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			handler.BroadcastStreams(reg.List())
		}
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	level := parseLogLevel(levelRaw)
	options := &slog.HandlerOptions{Level: level}
	format := strings.ToLower(strings.TrimSpace(formatRaw))
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, options))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, options))
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
