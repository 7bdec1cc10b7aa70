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
	"sync"
	"syscall"
	"time"

	"policy-management-service/internal/consumer"
	"policy-management-service/internal/events"
	"policy-management-service/internal/notify"
	"policy-management-service/shared/config"
	"policy-management-service/shared/httpx"
	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
	"policy-management-service/shared/mqx"
	"policy-management-service/shared/observability"
)

func main() {
	cfg, problems := config.Load("policy-consumer", 8081)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	if len(cfg.KafkaBrokers) == 0 {
		problems = append(problems, config.Problem{Field: "KAFKA_BROKERS", Message: "KAFKA_BROKERS is required"})
	}
	if len(problems) > 0 {
		for _, p := range problems {
			logger.Error(context.Background(), "config_invalid", "invalid configuration",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("field", p.Field),
				slog.String("problem", p.Message),
			)
		}
		os.Exit(1)
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

	producer, err := mqx.NewProducer(cfg)
	if err != nil {
		logger.Error(context.Background(), "producer_init_failed", "kafka producer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	var sender notify.Sender
	if cfg.NotifyEnabled {
		sesSender, err := notify.NewSESSender(context.Background(), cfg.SESRegion, cfg.SESFromEmail)
		if err != nil {
			logger.Error(context.Background(), "ses_init_failed", "ses client init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		sender = sesSender
	} else {
		sender = notify.NoopSender{Logger: logger}
	}
	notifier := notify.NewNotifier(sender, logger)

	retry := consumer.RetryPolicyFromConfig(cfg)
	dlq := consumer.NewDeadLetterRouter(producer)

	policySource, err := mqx.NewConsumer(cfg, events.TopicPolicyEvents, cfg.PolicyConsumerGroup)
	if err != nil {
		logger.Error(context.Background(), "consumer_init_failed", "kafka consumer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("topic", events.TopicPolicyEvents),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	claimSource, err := mqx.NewConsumer(cfg, events.TopicClaimEvents, cfg.ClaimConsumerGroup)
	if err != nil {
		logger.Error(context.Background(), "consumer_init_failed", "kafka consumer init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("topic", events.TopicClaimEvents),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	dispatchers := []*consumer.Dispatcher{
		consumer.NewDispatcher(events.TopicPolicyEvents, cfg.PolicyConsumerGroup, policySource,
			notify.PolicyEventHandler(notifier), retry, dlq, logger),
		consumer.NewDispatcher(events.TopicClaimEvents, cfg.ClaimConsumerGroup, claimSource,
			notify.ClaimEventHandler(notifier), retry, dlq, logger),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, d := range dispatchers {
		wg.Add(1)
		go func(d *consumer.Dispatcher) {
			defer wg.Done()
			if err := d.Run(ctx); err != nil {
				logger.Error(ctx, "dispatcher_failed", "dispatcher exited with error",
					slog.String("error_code", "INTERNAL_ERROR"),
					slog.String("error", err.Error()),
				)
			}
		}(d)
	}

	// Consumer lag gauges, refreshed in the background.
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metricsx.SetKafkaLag(events.TopicPolicyEvents, cfg.PolicyConsumerGroup, policySource.Lag())
				metricsx.SetKafkaLag(events.TopicClaimEvents, cfg.ClaimConsumerGroup, claimSource.Lag())
			}
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": cfg.ServiceName,
			"env":     cfg.Env,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "service_start", "starting consumer service",
			slog.String("addr", server.Addr),
			slog.String("policy_group", cfg.PolicyConsumerGroup),
			slog.String("claim_group", cfg.ClaimConsumerGroup),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server_failed", "metrics server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
	}

	cancel()
	_ = policySource.Close()
	_ = claimSource.Close()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	_ = producer.Close()
	_ = shutdownTracer(shutdownCtx)
	logger.Info(context.Background(), "service_stop", "consumer service stopped")
}
