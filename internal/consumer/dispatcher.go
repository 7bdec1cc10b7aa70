// Package consumer runs the per-topic dispatch loop: fetch, decode, invoke
// the registered handler under manual-acknowledgment semantics, and govern
// re-delivery through the retry/dead-letter state machine.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"policy-management-service/internal/events"
	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
	"policy-management-service/shared/mqx"
)

// Source is the consumer side of the broker: fetch without committing,
// commit explicitly. Satisfied by mqx.ReaderSource.
type Source interface {
	Fetch(ctx context.Context) (mqx.Message, error)
	Commit(ctx context.Context, msg mqx.Message) error
}

// Handler processes one decoded envelope. Offsets are committed only after
// the handler returns nil, so delivery is at-least-once and handlers must
// tolerate duplicates.
type Handler func(ctx context.Context, eventType events.EventType, envelope events.Envelope) error

type Dispatcher struct {
	topic   string
	group   string
	source  Source
	handler Handler
	retry   RetryPolicy
	dlq     *DeadLetterRouter
	logger  logx.Logger

	// sleep is swapped out by tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(topic string, group string, source Source, handler Handler, retry RetryPolicy, dlq *DeadLetterRouter, logger logx.Logger) *Dispatcher {
	return &Dispatcher{
		topic:   topic,
		group:   group,
		source:  source,
		handler: handler,
		retry:   retry,
		dlq:     dlq,
		logger:  logger,
		sleep:   sleepCtx,
	}
}

// Run pulls messages until ctx is cancelled. Fetch failures are transient:
// logged, then retried after a short pause.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info(ctx, "dispatcher_start", "consumer dispatcher started",
		slog.String("topic", d.topic),
		slog.String("group", d.group),
	)
	for {
		msg, err := d.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				d.logger.Info(context.Background(), "dispatcher_stop", "consumer dispatcher stopped",
					slog.String("topic", d.topic),
				)
				return nil
			}
			d.logger.Error(ctx, "fetch_failed", "failed to fetch message",
				slog.String("error_code", "UNAVAILABLE"),
				slog.String("topic", d.topic),
				slog.String("error", err.Error()),
			)
			if err := d.sleep(ctx, 500*time.Millisecond); err != nil {
				return nil
			}
			continue
		}
		if err := d.dispatch(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			d.logger.Error(ctx, "dispatch_failed", "message left uncommitted for redelivery",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("topic", d.topic),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
		}
	}
}

// dispatch runs the retry state machine for one message. The offset is
// committed exactly once: after handler success, or after the poison
// message has been parked on the dead-letter topic.
func (d *Dispatcher) dispatch(ctx context.Context, msg mqx.Message) error {
	ctx, span := otel.Tracer("consumer").Start(ctx, "kafka.consume")
	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("messaging.destination", d.topic),
		attribute.Int("messaging.kafka.partition", msg.Partition),
	)
	defer span.End()

	attempts := d.retry.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metricsx.IncConsumeRetry(d.topic)
			if err := d.sleep(ctx, d.retry.Delay(attempt-1)); err != nil {
				return err
			}
		}
		lastErr = d.process(ctx, msg)
		if lastErr == nil {
			if err := d.source.Commit(ctx, msg); err != nil {
				// Redelivery after a commit failure is the at-least-once
				// contract working as intended.
				return fmt.Errorf("commit after success: %w", err)
			}
			metricsx.IncEventConsumed(d.topic, "ok")
			return nil
		}
		d.logger.Warn(ctx, "handler_failed", "event handler failed",
			slog.String("topic", d.topic),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Int64("offset", msg.Offset),
			slog.String("error", lastErr.Error()),
		)
	}

	if err := d.dlq.Route(ctx, msg, lastErr); err != nil {
		metricsx.IncEventConsumed(d.topic, "dlq_route_failed")
		return fmt.Errorf("dead-letter route: %w", err)
	}
	d.logger.Warn(ctx, "event_dead_lettered", "message parked on dead-letter topic",
		slog.String("topic", d.topic),
		slog.String("dlq_topic", events.DLQTopic(d.topic)),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	// Parked counts as handled; the source offset moves past the poison
	// message.
	if err := d.source.Commit(ctx, msg); err != nil {
		return fmt.Errorf("commit after dead-letter: %w", err)
	}
	metricsx.IncEventConsumed(d.topic, "dead_lettered")
	return nil
}

func (d *Dispatcher) process(ctx context.Context, msg mqx.Message) error {
	var envelope events.Envelope
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	eventType, err := events.ParseEventType(d.topic, envelope.EventType)
	if err != nil {
		return err
	}
	return d.handler(ctx, eventType, envelope)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
