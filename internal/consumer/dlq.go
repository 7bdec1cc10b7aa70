package consumer

import (
	"context"
	"strconv"
	"time"

	"policy-management-service/internal/events"
	"policy-management-service/shared/metricsx"
	"policy-management-service/shared/mqx"
)

// DeadLetterBroker is the producer surface the router needs; satisfied by
// mqx.Producer.
type DeadLetterBroker interface {
	PublishToPartition(ctx context.Context, topic string, partition int, key []byte, value []byte, headers map[string]string) error
}

// DeadLetterRouter parks poison messages on `<topic>.dlq`. The message
// body is republished byte-identical and on the original partition number,
// so the failure stays correlated to its entity-id partitioning scheme.
type DeadLetterRouter struct {
	broker DeadLetterBroker
}

func NewDeadLetterRouter(broker DeadLetterBroker) *DeadLetterRouter {
	return &DeadLetterRouter{broker: broker}
}

func (r *DeadLetterRouter) Route(ctx context.Context, msg mqx.Message, lastErr error) error {
	headers := map[string]string{
		"original_topic":     msg.Topic,
		"original_partition": strconv.Itoa(msg.Partition),
		"original_offset":    strconv.FormatInt(msg.Offset, 10),
		"failed_at":          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if lastErr != nil {
		headers["last_error"] = lastErr.Error()
	}
	if err := r.broker.PublishToPartition(ctx, events.DLQTopic(msg.Topic), msg.Partition, msg.Key, msg.Value, headers); err != nil {
		return err
	}
	metricsx.IncDeadLetter(events.DLQTopic(msg.Topic))
	return nil
}
