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
	"crypto/rsa"
	"fmt"
	"log/slog"

	"github.com/opentrusty/tokenscope/internal/audit"
	"github.com/opentrusty/tokenscope/internal/authz"
	"github.com/opentrusty/tokenscope/internal/bootstrap"
	"github.com/opentrusty/tokenscope/internal/clientscope"
	"github.com/opentrusty/tokenscope/internal/config"
	"github.com/opentrusty/tokenscope/internal/consent"
	"github.com/opentrusty/tokenscope/internal/identity"
	"github.com/opentrusty/tokenscope/internal/oauth2"
	"github.com/opentrusty/tokenscope/internal/observability/logger"
	"github.com/opentrusty/tokenscope/internal/observability/metrics"
	"github.com/opentrusty/tokenscope/internal/oidc"
	"github.com/opentrusty/tokenscope/internal/session"
	"github.com/opentrusty/tokenscope/internal/store/cache"
	"github.com/opentrusty/tokenscope/internal/store/memory"
	"github.com/opentrusty/tokenscope/internal/store/postgres"
	"github.com/opentrusty/tokenscope/internal/store/redis"
)

// repositories is the persistence surface shared by both store drivers.
type repositories struct {
	users         identity.UserRepository
	sessions      session.Repository
	roles         authz.RoleRepository
	assignments   authz.AssignmentRepository
	scopes        clientscope.Repository
	clients       oauth2.ClientRepository
	codes         oauth2.AuthorizationSessionRepository
	refreshTokens interface {
		oauth2.RefreshTokenRepository
		consent.TokenInvalidator
	}
	consents consent.Repository
}

// app holds the wired services.
type app struct {
	cfg       *config.Config
	catalog   *clientscope.Catalog
	identity  *identity.Service
	sessions  *session.Service
	roles     *authz.Service
	consents  *consent.Manager
	oauth2    *oauth2.Service
	oidc      *oidc.Service
	bootstrap *bootstrap.Service
	audit     audit.Logger
	readiness map[string]func(context.Context) error
	closers   []func()
}

func dbConfig(cfg *config.Config) postgres.Config {
	return postgres.Config{
		Host:         cfg.Database.Host,
		Port:         cfg.Database.Port,
		User:         cfg.Database.User,
		Password:     cfg.Database.Password,
		Database:     cfg.Database.Database,
		SSLMode:      cfg.Database.SSLMode,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	}
}

// newApp connects the configured stores and builds every service.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:       cfg,
		audit:     audit.NewSlogLogger(),
		readiness: map[string]func(context.Context) error{},
	}

	repos, err := a.openStores(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.catalog = clientscope.NewCatalog(repos.scopes, a.audit)
	if err := a.catalog.EnsureBuiltins(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to register built-in scopes: %w", err)
	}

	hasher := identity.NewPasswordHasher(
		cfg.Security.Argon2Memory,
		cfg.Security.Argon2Iterations,
		cfg.Security.Argon2Parallelism,
		cfg.Security.Argon2SaltLength,
		cfg.Security.Argon2KeyLength,
	)
	a.identity = identity.NewService(repos.users, hasher, a.audit, cfg.Security.LockoutMaxAttempts, cfg.Security.LockoutDuration)
	a.sessions = session.NewService(repos.sessions, cfg.Session.Lifetime, cfg.Session.IdleTimeout)
	a.roles = authz.NewService(repos.roles, repos.assignments, a.audit)
	a.consents = consent.NewManager(repos.consents, repos.refreshTokens, a.audit)

	signingKey, err := loadSigningKey(cfg.OAuth.SigningKeyFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.oidc, err = oidc.NewService(oidc.Config{
		Issuer:              cfg.OAuth.Issuer,
		SigningKey:          signingKey,
		AccessTokenLifetime: cfg.OAuth.AccessTokenLifetime,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize OIDC service: %w", err)
	}

	meter := metrics.New(metrics.Config{Enabled: cfg.Observability.OTELEnabled, ServiceName: cfg.Observability.ServiceName})
	instruments, err := metrics.NewTokenInstruments(meter)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create token instruments: %w", err)
	}

	a.oauth2 = oauth2.NewService(oauth2.Dependencies{
		Clients:       repos.clients,
		Codes:         repos.codes,
		RefreshTokens: repos.refreshTokens,
		Scopes:        a.catalog,
		Consents:      a.consents,
		Users:         a.identity,
		Roles:         a.roles,
		Sessions:      a.sessions,
		Signer:        a.oidc,
		Audit:         a.audit,
		Metrics:       instruments,
	}, oauth2.Options{
		AuthCodeLifetime:     cfg.OAuth.AuthCodeLifetime,
		RefreshTokenLifetime: cfg.OAuth.RefreshTokenLifetime,
		RotateRefreshTokens:  cfg.OAuth.RotateRefreshTokens,
		UnknownScopePolicy:   oauth2.UnknownScopePolicy(cfg.OAuth.UnknownScopePolicy),
	})

	a.bootstrap = bootstrap.NewService(a.catalog, a.oauth2, a.identity, a.roles)
	return a, nil
}

func (a *app) openStores(ctx context.Context) (*repositories, error) {
	var repos *repositories
	switch a.cfg.Store.Driver {
	case config.DriverMemory:
		store := memory.New()
		repos = &repositories{
			users:         store.Users(),
			sessions:      store.Sessions(),
			roles:         store.Roles(),
			assignments:   store.Assignments(),
			scopes:        store.Scopes(),
			clients:       store.Clients(),
			codes:         memory.NewCodeStore(a.cfg.OAuth.CleanupInterval),
			refreshTokens: store.RefreshTokens(),
			consents:      store.Consents(),
		}
		slog.WarnContext(ctx, "using in-memory store; state is lost on restart", logger.Driver(config.DriverMemory))
	default:
		db, err := postgres.New(ctx, dbConfig(a.cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.readiness["database"] = db.Ping
		slog.InfoContext(ctx, "connected to database", logger.Driver(a.cfg.Store.Driver))

		repos = &repositories{
			users:         postgres.NewUserRepository(db),
			sessions:      postgres.NewSessionRepository(db),
			roles:         postgres.NewRoleRepository(db),
			assignments:   postgres.NewAssignmentRepository(db),
			scopes:        postgres.NewScopeRepository(db),
			clients:       postgres.NewClientRepository(db),
			codes:         postgres.NewAuthorizationSessionRepository(db),
			refreshTokens: postgres.NewRefreshTokenRepository(db),
			consents:      postgres.NewConsentRepository(db),
		}
	}

	if a.cfg.Store.CodeStore == config.CodeStoreRedis {
		codes, err := redis.New(ctx, redis.Config{
			Addr:      a.cfg.Redis.Addr,
			Password:  a.cfg.Redis.Password,
			DB:        a.cfg.Redis.DB,
			KeyPrefix: a.cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.closers = append(a.closers, func() { _ = codes.Close() })
		a.readiness["redis"] = codes.Ping
		repos.codes = codes
		slog.InfoContext(ctx, "authorization codes stored in redis", logger.Component("redis"))
	}

	if a.cfg.Cache.ClientTTL > 0 {
		repos.clients = cache.NewClientRepository(repos.clients, a.cfg.Cache.ClientTTL)
	}
	return repos, nil
}

// applySeed loads the YAML seed at path and applies it.
func (a *app) applySeed(ctx context.Context, path string) (*bootstrap.Result, error) {
	seed, err := bootstrap.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return a.bootstrap.Apply(ctx, seed)
}

// Close releases store connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadSigningKey returns nil when no key file is configured so that an
// ephemeral key is generated.
func loadSigningKey(path string) (*rsa.PrivateKey, error) {
	if path == "" {
		slog.Warn("OIDC_SIGNING_KEY_FILE not set; generating an ephemeral signing key")
		return nil, nil
	}
	return oidc.LoadSigningKey(path)
}
