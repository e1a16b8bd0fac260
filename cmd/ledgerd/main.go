// Command ledgerd serves a memory ledger over HTTP, with a gRPC health
// endpoint for orchestrators.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/memoryledger/internal/api"
	"github.com/jmerrifield20/memoryledger/internal/applier"
	"github.com/jmerrifield20/memoryledger/internal/config"
	"github.com/jmerrifield20/memoryledger/internal/eventlog"
	"github.com/jmerrifield20/memoryledger/internal/health"
	"github.com/jmerrifield20/memoryledger/internal/ledger"
	"github.com/jmerrifield20/memoryledger/internal/plugin"
	"github.com/jmerrifield20/memoryledger/internal/proofchain"
	"github.com/jmerrifield20/memoryledger/internal/signature"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, err := config.Load(viper.New(), "ledgerd")
	if err != nil {
		return err
	}
	if err := cfg.Mina.Validate(); err != nil {
		return err
	}
	if missing := cfg.Missing(); len(missing) > 0 {
		logger.Warn("incomplete plugin configuration", zap.Strings("missing", missing))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ── Owner and proof verification ─────────────────────────────────────────
	owner, err := signature.ParsePublicKey(cfg.Mina.PublicKey)
	if err != nil {
		return fmt.Errorf("mina.public_key: %w", err)
	}
	var prover *proofchain.Prover
	if cfg.Prover.Key != "" {
		key, err := signature.ParsePrivateKey(cfg.Prover.Key)
		if err != nil {
			return fmt.Errorf("prover.key: %w", err)
		}
		prover = proofchain.NewProver(key)
	}
	vk, err := verificationKey(cfg, prover)
	if err != nil {
		return err
	}

	// ── Event log ────────────────────────────────────────────────────────────
	var (
		log    eventlog.Log
		probes []health.Probe
	)
	if cfg.Database.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		pg := eventlog.NewPostgres(pool, logger)
		log = pg
		probes = append(probes, health.PingProbe("postgres", pg))
		logger.Info("connected to postgres")
	} else {
		log = eventlog.NewMemory()
		logger.Warn("database.url not set: events are kept in memory only")
	}

	if err := log.Verify(ctx); err != nil {
		return fmt.Errorf("event log integrity: %w", err)
	}
	state := ledger.New(owner)
	n, err := applier.Restore(ctx, state, log)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	logger.Info("ledger restored",
		zap.Int("events", n),
		zap.Uint64("characters", state.CharacterCount()),
		zap.String("owner", state.Owner().String()),
	)

	app := applier.New(state, log, proofchain.NewVerifier(vk),
		applier.WithTimeout(cfg.Server.VerificationTimeout),
		applier.WithObserver(api.ObserveTransaction),
		applier.WithAddresses(applier.Addresses{
			Contract:  cfg.Mina.ContractAddress,
			Character: cfg.Mina.CharacterContractAddress,
			Memory:    cfg.Mina.MemoryContractAddress,
		}),
	)

	// ── Plugin ───────────────────────────────────────────────────────────────
	var popts []plugin.Option
	if prover != nil {
		popts = append(popts, plugin.WithProofSource(plugin.LocalProver{Prover: prover}))
	} else if cfg.Mina.ProverURL != "" {
		probes = append(probes, health.HTTPProbe("prover", strings.TrimRight(cfg.Mina.ProverURL, "/")+"/healthz", &http.Client{Timeout: 5 * time.Second}))
	}
	plug, err := plugin.New(cfg, app, logger, popts...)
	if err != nil {
		return fmt.Errorf("plugin: %w", err)
	}

	// ── HTTP Router ───────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	origins := cfg.Server.CORSOrigins
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))
	router.Use(api.SecurityHeaders())
	router.Use(api.BodyLimit(1 << 20))
	if rps := cfg.Server.RateLimitRPS; rps > 0 {
		router.Use(api.RateLimiter(ctx, rps, rps*2))
	}
	router.Use(api.PrometheusMiddleware())
	router.Use(api.RequestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", api.MetricsHandler())

	v1 := router.Group("/api/v1")
	api.NewLedgerHandler(app, logger).Register(v1)
	api.NewEventHandler(log, logger).Register(v1)
	if prover != nil {
		api.NewProverHandler(prover, nil, logger).Register(v1)
		logger.Info("prover endpoints enabled", zap.String("verification_key", prover.VerificationKey().String()))
	}
	if plug != nil {
		api.NewPluginHandler(plug, logger).Register(v1)
	}

	// ── gRPC health ───────────────────────────────────────────────────────────
	grpcLis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("gRPC listen on :%d: %w", cfg.Server.GRPCPort, err)
	}
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger)))
	healthSvc := grpchealth.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSvc)
	reflection.Register(grpcServer)

	checker := health.New(probes, healthSvc, health.Config{CheckInterval: cfg.Health.Interval}, logger)
	checker.SetMetricsRecord(api.RecordHealthCheck)
	go checker.Start(ctx)

	// ── Serve ────────────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("ledgerd gRPC health listening", zap.Int("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC serve error", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		logger.Info("ledgerd HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP listen error", zap.Error(err))
			cancel()
		}
	}()

	// ── Graceful shutdown ──────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutting down ledgerd...")
	healthSvc.Shutdown()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("ledgerd stopped")
	return nil
}

// verificationKey returns mina.verification_key, or the local prover's key
// when that is unset. Both must agree when set.
func verificationKey(cfg *config.Config, prover *proofchain.Prover) (signature.PublicKey, error) {
	if cfg.Mina.VerificationKey == "" {
		if prover == nil {
			return signature.PublicKey{}, errors.New("mina.verification_key or prover.key must be set")
		}
		return prover.VerificationKey(), nil
	}
	vk, err := signature.ParsePublicKey(cfg.Mina.VerificationKey)
	if err != nil {
		return signature.PublicKey{}, fmt.Errorf("mina.verification_key: %w", err)
	}
	if prover != nil && prover.VerificationKey() != vk {
		return signature.PublicKey{}, errors.New("mina.verification_key does not match prover.key")
	}
	return vk, nil
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		logger.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.Bool("ok", err == nil),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
