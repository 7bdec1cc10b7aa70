package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"policy-management-service/internal/consumer"
	"policy-management-service/internal/events"
)

// PolicyEventHandler adapts the notifier to the dispatcher. A payload that
// does not decode is a handler failure and goes through the retry machine;
// a failed send is not.
func PolicyEventHandler(n *Notifier) consumer.Handler {
	return func(ctx context.Context, eventType events.EventType, envelope events.Envelope) error {
		var payload events.PolicyEventPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("decode policy payload: %w", err)
		}
		n.NotifyPolicyEvent(ctx, eventType, payload)
		return nil
	}
}

func ClaimEventHandler(n *Notifier) consumer.Handler {
	return func(ctx context.Context, eventType events.EventType, envelope events.Envelope) error {
		var payload events.ClaimEventPayload
		if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
			return fmt.Errorf("decode claim payload: %w", err)
		}
		n.NotifyClaimEvent(ctx, eventType, payload)
		return nil
	}
}
