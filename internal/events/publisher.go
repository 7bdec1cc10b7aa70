package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
)

// Broker is the minimal producer surface the publisher needs; satisfied by
// mqx.Producer.
type Broker interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte, headers map[string]string) error
}

// Publisher builds envelopes and hands them to the broker keyed by entity
// id. Publishing is fire-and-forget: the outcome is logged, never retried,
// and never fails the mutating call. A broker outage at publish time loses
// the event; there is no durable outbox.
type Publisher struct {
	broker Broker
	logger logx.Logger
	app    string

	wg sync.WaitGroup
}

func NewPublisher(broker Broker, logger logx.Logger, producerApp string) *Publisher {
	return &Publisher{broker: broker, logger: logger, app: producerApp}
}

// Publish serializes payload into an envelope and submits it
// asynchronously. It must be called only after the aggregate's mutation has
// been durably persisted.
func (p *Publisher) Publish(topic string, eventType EventType, entityID string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error(context.Background(), "event_encode_failed", "failed to encode event payload",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("topic", topic),
			slog.String("event_type", string(eventType)),
			slog.String("entity_id", entityID),
			slog.String("error", err.Error()),
		)
		metricsx.IncEventPublished(topic, string(eventType), "encode_error")
		return
	}

	envelope := Envelope{
		EventType:     string(eventType),
		EntityID:      entityID,
		OccurredAt:    time.Now().UTC(),
		TraceID:       uuid.NewString(),
		CorrelationID: uuid.NewString(),
		ProducerApp:   p.app,
		Version:       SchemaVersion,
		Payload:       raw,
	}
	value, err := json.Marshal(envelope)
	if err != nil {
		metricsx.IncEventPublished(topic, string(eventType), "encode_error")
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := p.broker.Publish(ctx, topic, []byte(entityID), value, map[string]string{
			"trace_id":       envelope.TraceID,
			"correlation_id": envelope.CorrelationID,
		}); err != nil {
			p.logger.Error(ctx, "event_publish_failed", "failed to publish event",
				slog.String("error_code", "UNAVAILABLE"),
				slog.String("topic", topic),
				slog.String("event_type", string(eventType)),
				slog.String("entity_id", entityID),
				slog.String("error", err.Error()),
			)
			metricsx.IncEventPublished(topic, string(eventType), "error")
			return
		}
		p.logger.Info(ctx, "event_published", "published event",
			slog.String("topic", topic),
			slog.String("event_type", string(eventType)),
			slog.String("entity_id", entityID),
			slog.String("trace_id", envelope.TraceID),
		)
		metricsx.IncEventPublished(topic, string(eventType), "ok")
	}()
}

// Flush blocks until every in-flight publish has completed. Used on
// shutdown and by tests.
func (p *Publisher) Flush() {
	p.wg.Wait()
}
