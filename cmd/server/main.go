package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nopenet/nopenet/internal/audit"
	"github.com/nopenet/nopenet/internal/backend"
	"github.com/nopenet/nopenet/internal/chat"
	"github.com/nopenet/nopenet/internal/config"
	"github.com/nopenet/nopenet/internal/handlers"
	"github.com/nopenet/nopenet/internal/llm"
	"github.com/nopenet/nopenet/internal/ratelimit"
	"github.com/nopenet/nopenet/internal/server"
	nopetls "github.com/nopenet/nopenet/internal/tls"
	"github.com/nopenet/nopenet/internal/ws"
)

func main() {
	cfg, err := config.Load(config.Path())
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logger := server.SetupLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit log (optional; metadata only)
	var recorder audit.Recorder = audit.Nop{}
	if cfg.Audit.DatabaseURL != "" {
		store, err := audit.Connect(ctx, cfg.Audit.DatabaseURL, cfg.Audit.RetentionDays, logger)
		if err != nil {
			logger.Error("failed to connect to audit database", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		recorder = store
		go server.RunWithRecovery(ctx, logger, "audit-retention", store.RetentionLoop)
	} else {
		logger.Info("audit log disabled, DATABASE_URL not set")
	}

	// Upstreams
	detectionClient := backend.NewClient(cfg.Detection.BaseURL, cfg.Detection.Timeout, logger)
	provider, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to create LLM provider", "err", err)
		os.Exit(1)
	}
	proxy := chat.NewProxy(provider, cfg.LLM.Model, logger)

	limiter := ratelimit.New(cfg.RateLimit.PerMinute)
	go server.RunWithRecovery(ctx, logger, "ratelimit-cleanup", limiter.CleanupLoop)

	router := server.NewRouter(server.Routes{
		Chat:          handlers.NewChatHandler(proxy, limiter, recorder, logger),
		Detection:     handlers.NewDetectionHandler(detectionClient, limiter, recorder, logger),
		Health:        handlers.NewHealthHandler(detectionClient),
		Socket:        ws.NewChatSocket(proxy, limiter, recorder, cfg.Server.AllowedOrigin, logger),
		AllowedOrigin: cfg.Server.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // streamed replies have no upper bound
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "err", err)
		}
	}()

	logger.Info("server starting",
		"port", cfg.Server.Port,
		"llm_provider", provider.Name(),
		"llm_model", cfg.LLM.Model,
		"detection_api", cfg.Detection.BaseURL,
	)

	if len(cfg.TLS.Domains) > 0 {
		cm, err := nopetls.NewCertManager(cfg.TLS, cfg.Server.Production, logger)
		if err != nil {
			logger.Error("failed to configure TLS", "err", err)
			os.Exit(1)
		}
		exitOnServeError(logger, cm.Serve(ctx, srv))
	} else {
		exitOnServeError(logger, srv.ListenAndServe())
	}
	logger.Info("server stopped")
}

func exitOnServeError(logger *slog.Logger, err error) {
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
