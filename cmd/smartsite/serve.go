package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextmonth/smartsite/internal/agent"
	"github.com/nextmonth/smartsite/internal/auth"
	"github.com/nextmonth/smartsite/internal/config"
	"github.com/nextmonth/smartsite/internal/events"
	"github.com/nextmonth/smartsite/internal/health"
	"github.com/nextmonth/smartsite/internal/metrics"
	"github.com/nextmonth/smartsite/internal/server"
	"github.com/nextmonth/smartsite/internal/sotsync"
	"github.com/nextmonth/smartsite/internal/store"
	"github.com/nextmonth/smartsite/internal/store/memory"
	"github.com/nextmonth/smartsite/internal/store/postgres"
)

// memoryDatabaseURL selects the in-process store, for demos and local
// development. Nothing survives a restart.
const memoryDatabaseURL = "memory://"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the SmartSite API server",
	GroupID: "system",
	// No API client is needed to serve.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, os.Stderr)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger)
	},
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("SMARTSITE_LOG_LEVEL: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openStore returns the store for url and a check for the status report.
func openStore(url string) (store.Store, health.Check, error) {
	if url == memoryDatabaseURL {
		return memory.New(), func(context.Context) error { return nil }, nil
	}
	pg, err := postgres.New(url)
	if err != nil {
		return nil, nil, err
	}
	return pg, pg.Ping, nil
}

// serve runs the API until ctx is done, then shuts everything down in
// reverse order of startup.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, dbCheck, err := openStore(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}
	}()
	checks := map[string]health.Check{"database": dbCheck}

	var publisher events.Publisher = &events.NoopPublisher{}
	var subscriber *events.NATSSubscriber
	if cfg.NATSURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NATSURL)
		if err != nil {
			return err
		}
		publisher = pub
		checks["nats"] = pub.Ping
		if subscriber, err = events.NewNATSSubscriber(cfg.NATSURL); err != nil {
			pub.Close()
			return err
		}
		logger.Info("events enabled", "nats_url", cfg.NATSURL)
	} else {
		logger.Info("events disabled (SMARTSITE_NATS_URL not set)")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
	}()

	syncOpts := sotsync.Options{
		Schedule:   cfg.SOTSchedule,
		RetryDelay: cfg.SOTRetryDelay,
		APIKey:     cfg.SOTAPIKey,
	}
	if cfg.SOTS3Bucket != "" {
		archive, err := sotsync.NewS3Archive(ctx, cfg.SOTS3Bucket, cfg.SOTS3KeyPrefix, cfg.SOTS3Region, cfg.SOTS3Endpoint)
		if err != nil {
			logger.Error("failed to create S3 profile archive", "err", err)
		} else {
			syncOpts.Archive = archive
			logger.Info("sot profile archive enabled", "bucket", cfg.SOTS3Bucket, "prefix", cfg.SOTS3KeyPrefix)
		}
	}

	var llm agent.Completer
	if cfg.OpenAIKey != "" {
		llm = agent.NewClient(agent.ClientOptions{
			APIKey:  cfg.OpenAIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			RPS:     cfg.OpenAIRPS,
		})
	} else {
		logger.Info("agent disabled (OPENAI_API_KEY not set)")
	}

	srv, err := server.New(st, server.Options{
		Publisher:     publisher,
		Metrics:       metrics.New(),
		Logger:        logger,
		PublicURL:     cfg.PublicURL,
		Sessions:      auth.Options{Secure: cfg.SecureCookies, APIToken: cfg.APIToken},
		Sync:          syncOpts,
		SyncEnabled:   cfg.SOTEnabled,
		LocalTriggers: subscriber == nil,
		Health:        health.Options{Interval: cfg.HealthInterval},
		Batch:         health.BatchOptions{Size: cfg.HealthBatchSize, FlushInterval: cfg.HealthFlushInterval},
		LLM:           llm,
		Agent:         agent.Options{BusinessName: cfg.BusinessName},
		Checks:        checks,
	})
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	defer srv.Stop()

	bg, cancelBG := context.WithCancel(ctx)
	defer cancelBG()

	if subscriber != nil {
		go func() {
			defer subscriber.Close()
			if err := srv.Sync().StartSubscriber(bg, subscriber); err != nil {
				logger.Error("sot trigger subscriber error", "err", err)
			}
		}()
		logger.Info("sot trigger subscriber started")
	}

	grpcServer, healthServer := server.NewGRPCServer(cfg.APIToken)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go srv.WatchHealth(bg, healthServer)
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", "err", err)
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.NewHTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	logger.Info("smartsite server started",
		"http_addr", cfg.HTTPAddr,
		"grpc_addr", cfg.GRPCAddr,
		"store", storeKind(cfg.DatabaseURL),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-httpErr:
		logger.Error("HTTP server error", "err", runErr)
	}

	cancelBG()
	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "err", err)
	}
	logger.Info("HTTP server stopped")
	return runErr
}

func storeKind(url string) string {
	if url == memoryDatabaseURL {
		return "memory"
	}
	if i := strings.Index(url, "://"); i > 0 {
		return url[:i]
	}
	return "postgres"
}
