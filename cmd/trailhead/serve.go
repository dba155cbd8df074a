// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trailhead Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/trailhead/trailhead/internal/api"
	"github.com/trailhead/trailhead/internal/auth"
	authpg "github.com/trailhead/trailhead/internal/auth/postgres"
	"github.com/trailhead/trailhead/internal/config"
	"github.com/trailhead/trailhead/internal/logging"
	"github.com/trailhead/trailhead/internal/mail"
	"github.com/trailhead/trailhead/internal/observability"
	"github.com/trailhead/trailhead/internal/store"
	"github.com/trailhead/trailhead/internal/trails"
	trailpg "github.com/trailhead/trailhead/internal/trails/postgres"
	"github.com/trailhead/trailhead/internal/users"
)

const serviceName = "trailhead"

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long: `Start the HTTP API server. Configuration is layered: built-in
defaults, then the config file, then flags. Secrets (DATABASE_URL,
JWT_SECRET, ADMIN_CODE) come from the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}

	flags := cmd.Flags()
	flags.String("server.addr", ":8080", "HTTP listen address")
	flags.String("server.metrics_addr", "127.0.0.1:9100", "metrics/health HTTP address (empty = disabled)")
	flags.String("database.url", "", "PostgreSQL connection URL")
	flags.String("log.format", "json", "log format (json or text)")
	flags.String("log.level", "info", "log level (debug, info, warn, error)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.SetDefault(serviceName, version, logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := store.Connect(ctx, cfg.Database.URL, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher := auth.NewBcryptHasher()
	issuer, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return err
	}

	userRepo := authpg.NewUserRepository(pool)
	trailRepo := trailpg.NewTrailRepository(pool)
	sender := mail.NewSender(cfg.SMTP, logger)

	authSvc, err := auth.NewService(userRepo, hasher, issuer, sender, logger)
	if err != nil {
		return err
	}
	usersSvc, err := users.NewService(userRepo, hasher, cfg.Auth.AdminCode, logger)
	if err != nil {
		return err
	}
	trailsSvc, err := trails.NewService(trailRepo, logger)
	if err != nil {
		return err
	}

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Server.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.Server.MetricsAddr, func() bool {
			return pool.Ping(ctx) == nil
		})
		metrics = obsServer.Metrics()
	} else {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	router, err := api.NewRouter(api.Deps{
		Auth:    authSvc,
		Users:   usersSvc,
		Trails:  trailsSvc,
		Issuer:  issuer,
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	if obsServer != nil {
		obsErrCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("SERVER_START_FAILED").
				With("operation", "start observability server").
				Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		logger.Info("observability server started", "addr", obsServer.Addr())
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err, ok := <-errCh:
		if ok && err != nil {
			return oops.Code("SERVER_FAILED").
				With("operation", "serve http").
				Wrap(err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			logger.Warn("observability server shutdown incomplete", "error", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// monitorServerErrors watches a server's error channel and cancels the
// context on error so a failing sidecar server takes the process down
// gracefully instead of silently dying.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
