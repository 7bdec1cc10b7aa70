package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"policy-management-service/internal/cache"
	"policy-management-service/internal/events"
	"policy-management-service/internal/httpapi"
	"policy-management-service/internal/repos"
	"policy-management-service/internal/service"
	"policy-management-service/shared/cachex"
	"policy-management-service/shared/config"
	"policy-management-service/shared/dbx"
	"policy-management-service/shared/httpx"
	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
	"policy-management-service/shared/mqx"
	"policy-management-service/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("policy-api", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(cfg.KafkaBrokers) == 0 {
		readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if cfg.RedisAddr == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "REDIS_ADDR is required"})
	}

	metricsx.Register()

	shutdownTracer, err := observability.InitTracer(context.Background(), observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Error(context.Background(), "otel_init_failed", "tracing init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		shutdownTracer = func(context.Context) error { return nil }
	}

	var dbPool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		dbPool, err = dbx.NewPool(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "failed to connect to database"})
			logger.Error(context.Background(), "db_init_failed", "database init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
		}
	}

	var redisClient *cachex.Client
	if cfg.RedisAddr != "" {
		redisClient, err = cachex.New(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "REDIS_ADDR", Message: "failed to initialize redis client"})
		}
	}

	var producer *mqx.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer, err = mqx.NewProducer(cfg)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "KAFKA_BROKERS", Message: "failed to initialize kafka producer"})
		}
	}

	publisher := events.NewPublisher(producer, logger, cfg.ServiceName)
	policyCache := cache.New(redisClient, cfg.CacheTTL(), logger)
	policySvc := service.NewPolicyService(repos.NewPoliciesRepo(dbPool), policyCache, publisher, logger)
	claimSvc := service.NewClaimService(repos.NewClaimsRepo(dbPool), repos.NewPoliciesRepo(dbPool), publisher, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if len(readyProblems) > 0 {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems})
			return
		}
		if err := dbx.Ping(r.Context(), dbPool); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION",
				"service not ready: database unavailable",
				map[string]any{"problem": "db_ping_failed"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	httpapi.NewPolicyHandler(policySvc, logger).Register(mux)
	httpapi.NewClaimHandler(claimSvc, logger).Register(mux)

	var handler http.Handler = mux
	handler = metricsx.Instrument(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{
		SkipPaths: map[string]bool{"/healthz": true, "/metrics": true},
	}, handler)
	if cfg.OtelEnabled {
		handler = otelhttp.NewHandler(handler, "http.server")
	}

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.String("log_level", cfg.LogLevel),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(context.Background(), "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}

	// Drain in-flight event publishes before tearing down the producer.
	publisher.Flush()
	if producer != nil {
		_ = producer.Close()
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if dbPool != nil {
		dbPool.Close()
	}
	_ = shutdownTracer(shutdownCtx)
	logger.Info(context.Background(), "service_stop", "service stopped")
}
