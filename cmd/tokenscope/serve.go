// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/opentrusty/tokenscope/internal/config"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/opentrusty/tokenscope/internal/observability/tracing"
	transportHTTP "github.com/opentrusty/tokenscope/internal/transport/http"
)

func init() {
	var seedFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if seedFile != "" {
				cfg.Seed.File = seedFile
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed applied at startup (overrides SEED_FILE)")
	rootCmd.AddCommand(cmd)
}

func runServe(parent context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.InfoContext(ctx, "starting tokenscope", slog.String("version", cfg.Observability.ServiceVersion))

	tracer, err := tracing.New(ctx, tracing.Config{
		Enabled:        cfg.Observability.OTELEnabled,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		SamplingRate:   1.0,
		Endpoint:       cfg.Observability.OTLPEndpoint,
		Insecure:       cfg.Observability.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Error("tracer shutdown failed", logger.Error(err))
		}
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Seed.File != "" {
		res, err := a.applySeed(ctx, cfg.Seed.File)
		if err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
		slog.InfoContext(ctx, "seed file applied", slog.String("file", cfg.Seed.File), slog.Int("clients", res.Clients))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	httpMetrics, err := transportHTTP.NewHTTPMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	rateLimiter := transportHTTP.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	defer rateLimiter.Close()

	sameSite := http.SameSiteLaxMode
	switch cfg.Session.CookieSameSite {
	case "Strict":
		sameSite = http.SameSiteStrictMode
	case "None":
		sameSite = http.SameSiteNoneMode
	}

	handler := transportHTTP.NewHandler(transportHTTP.Services{
		Identity: a.identity,
		Sessions: a.sessions,
		OAuth2:   a.oauth2,
		Consents: a.consents,
		Catalog:  a.catalog,
		OIDC:     a.oidc,
		Audit:    a.audit,
		Tracer:   tracer,
	}, transportHTTP.SessionConfig{
		CookieName:     cfg.Session.CookieName,
		CookieDomain:   cfg.Session.CookieDomain,
		CookiePath:     cfg.Session.CookiePath,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieHTTPOnly: cfg.Session.CookieHTTPOnly,
		CookieSameSite: sameSite,
		MaxAge:         cfg.Session.Lifetime,
	})
	for name, check := range a.readiness {
		handler.AddReadinessCheck(name, check)
	}

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      transportHTTP.NewRouter(handler, rateLimiter, httpMetrics),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go a.cleanupLoop(ctx, cfg.OAuth.CleanupInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting http server", logger.Component("server"), logger.Operation("listen"), slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("server stopped")
	return nil
}

// cleanupLoop purges expired sessions, codes and refresh tokens until ctx ends.
func (a *app) cleanupLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.sessions.CleanupExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired sessions", logger.Error(err))
			}
			if err := a.oauth2.CleanupExpired(ctx); err != nil {
				slog.ErrorContext(ctx, "failed to cleanup expired tokens", logger.Error(err))
			}
		}
	}
}
