// Package events defines the wire envelope for domain events, the closed
// event-type enums per aggregate, and the topics they travel on.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"policy-management-service/internal/domain"
)

const (
	TopicPolicyEvents = "policy.events"
	TopicClaimEvents  = "claim.events"

	// SchemaVersion tags every envelope; bumped only on breaking payload
	// changes.
	SchemaVersion = "v1"
)

// DLQTopic names the dead-letter topic paired with a source topic.
func DLQTopic(topic string) string {
	return topic + ".dlq"
}

type EventType string

const (
	PolicyCreated   EventType = "POLICY_CREATED"
	PolicyRenewed   EventType = "POLICY_RENEWED"
	PolicyCancelled EventType = "POLICY_CANCELLED"

	ClaimSubmitted EventType = "CLAIM_SUBMITTED"
	ClaimApproved  EventType = "CLAIM_APPROVED"
	ClaimRejected  EventType = "CLAIM_REJECTED"
)

// ParseEventType resolves a wire value against the closed enum of the given
// topic. An unknown value is a decode failure, not a business failure.
func ParseEventType(topic string, raw string) (EventType, error) {
	switch topic {
	case TopicPolicyEvents:
		switch EventType(raw) {
		case PolicyCreated, PolicyRenewed, PolicyCancelled:
			return EventType(raw), nil
		}
	case TopicClaimEvents:
		switch EventType(raw) {
		case ClaimSubmitted, ClaimApproved, ClaimRejected:
			return EventType(raw), nil
		}
	}
	return "", fmt.Errorf("unknown event type %q for topic %s", raw, topic)
}

// Envelope wraps a typed payload with delivery metadata. EntityID doubles
// as the broker partition key, so all events for one aggregate are observed
// in publish order by any single consumer.
type Envelope struct {
	EventType     string          `json:"event_type"`
	EntityID      string          `json:"entity_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	TraceID       string          `json:"trace_id"`
	CorrelationID string          `json:"correlation_id"`
	ProducerApp   string          `json:"producer_app"`
	Version       string          `json:"version"`
	Payload       json.RawMessage `json:"payload"`
}

// PolicyEventPayload is the projection of a policy carried to downstream
// notifiers.
type PolicyEventPayload struct {
	PolicyID       int64     `json:"policy_id"`
	PolicyNumber   string    `json:"policy_number"`
	CustomerName   string    `json:"customer_name"`
	CustomerEmail  string    `json:"customer_email"`
	Status         string    `json:"status"`
	PolicyType     string    `json:"policy_type"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	CoverageAmount float64   `json:"coverage_amount"`
	PremiumAmount  float64   `json:"premium_amount"`
}

func BuildPolicyPayload(p domain.Policy) PolicyEventPayload {
	return PolicyEventPayload{
		PolicyID:       p.ID,
		PolicyNumber:   p.PolicyNumber,
		CustomerName:   p.CustomerName,
		CustomerEmail:  p.CustomerEmail,
		Status:         string(p.Status),
		PolicyType:     string(p.PolicyType),
		StartDate:      p.StartDate,
		EndDate:        p.EndDate,
		CoverageAmount: p.CoverageAmount,
		PremiumAmount:  p.PremiumAmount,
	}
}

// ClaimEventPayload is the projection of a claim carried to downstream
// notifiers. CustomerEmail is denormalized from the owning policy so the
// notifier never needs a store round-trip.
type ClaimEventPayload struct {
	ClaimID         int64     `json:"claim_id"`
	ClaimNumber     string    `json:"claim_number"`
	PolicyID        int64     `json:"policy_id"`
	CustomerEmail   string    `json:"customer_email"`
	Status          string    `json:"status"`
	ClaimAmount     float64   `json:"claim_amount"`
	IncidentDate    time.Time `json:"incident_date"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
}

func BuildClaimPayload(c domain.Claim, customerEmail string) ClaimEventPayload {
	return ClaimEventPayload{
		ClaimID:         c.ID,
		ClaimNumber:     c.ClaimNumber,
		PolicyID:        c.PolicyID,
		CustomerEmail:   customerEmail,
		Status:          string(c.Status),
		ClaimAmount:     c.ClaimAmount,
		IncidentDate:    c.IncidentDate,
		RejectionReason: c.RejectionReason,
	}
}
