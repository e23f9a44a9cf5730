// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vault assembles and runs the vault service: configuration,
// persistence, ledgers, the HTTP surface, and observability.
//
// The package wires together what the subpackages implement. State is
// restored from BadgerDB (or seeded from genesis on first boot), the
// service layer is built over the ledgers, and the Gin router is
// mounted with the production route table. Run blocks until the
// context is cancelled, then drains in-flight requests.
package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianVault/pkg/extensions"
	"github.com/AleutianAI/AleutianVault/pkg/logging"
	"github.com/AleutianAI/AleutianVault/services/vault/events"
	"github.com/AleutianAI/AleutianVault/services/vault/handlers"
	"github.com/AleutianAI/AleutianVault/services/vault/ledger"
	"github.com/AleutianAI/AleutianVault/services/vault/middleware"
	"github.com/AleutianAI/AleutianVault/services/vault/observability"
	"github.com/AleutianAI/AleutianVault/services/vault/routes"
	"github.com/AleutianAI/AleutianVault/services/vault/services"
	"github.com/AleutianAI/AleutianVault/services/vault/storage/badger"
	"github.com/AleutianAI/AleutianVault/services/vault/token"
)

// shutdownTimeout bounds how long in-flight requests get to finish
// after the run context is cancelled.
const shutdownTimeout = 10 * time.Second

// Server is one assembled vault service instance.
type Server struct {
	cfg    Config
	router *gin.Engine
	svc    *services.VaultService
	db     *badger.DB
	hub    *events.Hub
	gate   *middleware.OperatorGate
	rates  *observability.RateRecorder
	logger *logging.Logger

	traceCleanup func(context.Context)
}

// NewServer assembles a server from the configuration: logging, trace
// export, metrics, the state database with restore-or-genesis, the
// service layer, and the HTTP router. The caller owns the returned
// server and must Run it (which tears everything down on exit).
func NewServer(ctx context.Context, cfg Config, opts extensions.ServiceOptions) (*Server, error) {
	s := &Server{cfg: cfg, logger: setupLogging(cfg.Log)}

	if cfg.Otel.Enabled {
		cleanup, err := initTracer(ctx, cfg.Otel.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("setting up the OTLP tracer: %w", err)
		}
		s.traceCleanup = cleanup
	}

	// Tests and restarts within one process share the registry, so only
	// the first server registers.
	if observability.DefaultMetrics == nil {
		observability.InitMetrics()
	}

	dbCfg := badger.DefaultConfig()
	dbCfg.Path = cfg.DataDir
	dbCfg.Logger = slog.Default()
	if cfg.DataDir == "" {
		slog.Warn("No data_dir configured - running in-memory, state dies with the process")
		dbCfg = badger.InMemoryConfig()
	}
	db, err := badger.OpenDB(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	s.db = db

	store, err := badger.NewStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	assets := token.NewLedger(cfg.AssetDenom)
	vlt, err := ledger.NewVault(cfg.VaultAddress, assets)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing vault ledger: %w", err)
	}

	if err := restoreState(ctx, store, vlt, assets, cfg); err != nil {
		db.Close()
		return nil, err
	}

	s.hub = events.NewHub(slog.Default())

	if cfg.Influx.Enabled {
		s.rates = newRateRecorder(cfg.Influx)
	}

	s.svc = services.NewVaultService(vlt, assets, store, s.hub, s.rates, opts)
	h := handlers.NewHandlers(s.svc).WithOptions(opts)

	if cfg.OperatorTokenFile != "" {
		gate, err := middleware.NewOperatorGate(cfg.OperatorTokenFile)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("loading operator token: %w", err)
		}
		s.gate = gate
	} else {
		slog.Warn("No operator_token_file configured - operator endpoints answer 503")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.RPS > 0 {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Otel.Enabled {
		router.Use(otelgin.Middleware("vault-service"))
	}
	routes.SetupRoutes(router, h, opts, s.gate, limiter)
	s.router = router

	if m := observability.DefaultMetrics; m != nil {
		totalShares, totalAssets := vlt.Totals()
		m.SetPoolState(totalShares, totalAssets, vlt.HolderCount())
	}

	return s, nil
}

// Handler exposes the assembled router, mainly for tests that drive the
// server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Service exposes the service layer for in-process callers.
func (s *Server) Service() *services.VaultService {
	return s.svc
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests and releases every resource the server holds. It returns the
// first fatal error, or nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	httpSrv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.gate != nil {
		g.Go(func() error {
			s.gate.Watch(gctx)
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Vault service listening",
			"addr", s.cfg.ListenAddr,
			"denom", s.cfg.AssetDenom,
			"data_dir", s.cfg.DataDir)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down vault service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// close releases server resources in dependency order: stop admitting
// operator rotations, stop broadcasting, flush the rate series, close
// the database, flush traces, and sync the log file last so teardown
// itself stays logged.
func (s *Server) close() {
	if s.gate != nil {
		s.gate.Close()
	}
	if s.hub != nil {
		s.hub.Close()
	}
	if s.rates != nil {
		s.rates.Close()
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Error("Closing state database", "error", err)
		}
	}
	if s.traceCleanup != nil {
		s.traceCleanup(context.Background())
	}
	if s.logger != nil {
		if err := s.logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing logger: %v\n", err)
		}
	}
}

// restoreState loads persisted ledger snapshots into the in-memory
// ledgers. A store with no state at all falls through to genesis.
func restoreState(ctx context.Context, store *badger.Store, vlt *ledger.Vault, assets *token.Ledger, cfg Config) error {
	tokenSnap, tokenFound, err := store.LoadToken(ctx)
	if err != nil {
		return fmt.Errorf("loading token state: %w", err)
	}
	vaultSnap, vaultFound, err := store.LoadVault(ctx)
	if err != nil {
		return fmt.Errorf("loading vault state: %w", err)
	}

	// The token ledger must be live before the vault restores, since
	// the vault reconciles its totals against its asset account.
	if tokenFound {
		if err := assets.Restore(tokenSnap); err != nil {
			return fmt.Errorf("restoring token ledger: %w", err)
		}
	}
	if vaultFound {
		if err := vlt.Restore(vaultSnap); err != nil {
			return fmt.Errorf("restoring vault ledger: %w", err)
		}
	}
	if tokenFound || vaultFound {
		totalShares, totalAssets := vlt.Totals()
		slog.Info("Restored ledger state",
			"last_seq", store.LastSeq(),
			"supply", assets.TotalSupply().String(),
			"total_shares", totalShares.String(),
			"total_assets", totalAssets.String())
		return nil
	}

	return applyGenesis(ctx, store, assets, cfg.Genesis)
}

// applyGenesis seeds the asset ledger on first boot and persists the
// result so a restart does not mint twice.
func applyGenesis(ctx context.Context, store *badger.Store, assets *token.Ledger, genesis GenesisConfig) error {
	if len(genesis.Balances) == 0 {
		return nil
	}

	var mut badger.Mutation
	for addr, amount := range genesis.Balances {
		n, ok := sdkmath.NewIntFromString(amount)
		if !ok {
			return fmt.Errorf("genesis balance for %s: unparseable amount %q", addr, amount)
		}
		if err := assets.Mint(addr, n); err != nil {
			return fmt.Errorf("genesis balance for %s: %w", addr, err)
		}
		mut.Balances = append(mut.Balances, token.Balance{Address: addr, Amount: assets.BalanceOf(addr)})
	}
	supply := assets.TotalSupply()
	mut.Supply = &supply

	if err := store.Apply(ctx, mut); err != nil {
		return fmt.Errorf("persisting genesis state: %w", err)
	}
	slog.Info("Applied genesis balances",
		"accounts", len(genesis.Balances),
		"supply", supply.String())
	return nil
}

// newRateRecorder builds the InfluxDB recorder, or nil when the token
// is missing so a misconfigured deployment degrades to logs instead of
// failing to boot.
func newRateRecorder(cfg InfluxConfig) *observability.RateRecorder {
	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "VAULT_INFLUX_TOKEN"
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		slog.Warn("InfluxDB recording enabled but token variable is empty - rate series disabled",
			"env", tokenEnv)
		return nil
	}
	slog.Info("Recording exchange-rate series to InfluxDB",
		"url", cfg.URL,
		"org", cfg.Org,
		"bucket", cfg.Bucket)
	return observability.NewRateRecorder(cfg.URL, token, cfg.Org, cfg.Bucket, slog.Default())
}

// setupLogging builds the logger stack from configuration and installs
// it as the slog default, so every package logs through the same
// destinations. The returned logger is closed during server teardown to
// sync the optional file copy.
func setupLogging(cfg LogConfig) *logging.Logger {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Level),
		LogDir:  cfg.Dir,
		Service: "vault",
		JSON:    cfg.JSON,
	})
	slog.SetDefault(logger.Slog())
	return logger
}

// initTracer configures the OTLP gRPC exporter. The returned cleanup
// flushes buffered spans and must be called before exit.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		endpoint = "aleutian-otel-collector:4317"
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("vault-service")))
	if err != nil {
		return nil, err
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
