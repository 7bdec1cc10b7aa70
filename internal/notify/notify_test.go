package notify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"policy-management-service/internal/events"
	"policy-management-service/shared/logx"
)

type fakeSender struct {
	sent []sentEmail
	err  error
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

func (s *fakeSender) Send(_ context.Context, to string, subject string, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func testLogger() logx.Logger {
	return logx.New("test", "test", "", "error")
}

func policyPayload() events.PolicyEventPayload {
	return events.PolicyEventPayload{
		PolicyID:       1,
		PolicyNumber:   "POL-2026-000001",
		CustomerName:   "Jordan Reyes",
		CustomerEmail:  "jordan@example.com",
		Status:         "ACTIVE",
		PolicyType:     "AUTO",
		StartDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		CoverageAmount: 50000,
		PremiumAmount:  1200.5,
	}
}

func TestPolicyCreatedRendersTemplate(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, testLogger())

	n.NotifyPolicyEvent(context.Background(), events.PolicyCreated, policyPayload())

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	email := sender.sent[0]
	if email.to != "jordan@example.com" {
		t.Fatalf("unexpected recipient %q", email.to)
	}
	if email.subject != "Welcome to Your Insurance Policy - POL-2026-000001" {
		t.Fatalf("unexpected subject %q", email.subject)
	}
	for _, want := range []string{"POL-2026-000001", "AUTO", "50000.00", "1200.50", "2026-01-01", "2026-07-01", "ACTIVE"} {
		if !strings.Contains(email.body, want) {
			t.Fatalf("body missing %q", want)
		}
	}
	if strings.Contains(email.body, "{{") {
		t.Fatalf("unreplaced placeholder in body")
	}
}

func TestOnlyPolicyCreatedSendsEmail(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, testLogger())

	n.NotifyPolicyEvent(context.Background(), events.PolicyRenewed, policyPayload())
	n.NotifyPolicyEvent(context.Background(), events.PolicyCancelled, policyPayload())

	if len(sender.sent) != 0 {
		t.Fatalf("expected no email for renew/cancel, got %d", len(sender.sent))
	}
}

func TestClaimRejectedDefaultsReason(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, testLogger())

	n.NotifyClaimEvent(context.Background(), events.ClaimRejected, events.ClaimEventPayload{
		ClaimNumber:   "CLM-2026-000009",
		PolicyID:      1,
		CustomerEmail: "jordan@example.com",
		Status:        "REJECTED",
		ClaimAmount:   300,
		IncidentDate:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})

	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0].body, "Not specified") {
		t.Fatalf("blank rejection reason must render as Not specified")
	}
	if sender.sent[0].subject != "Claim Status Update - CLM-2026-000009" {
		t.Fatalf("unexpected subject %q", sender.sent[0].subject)
	}
}

func TestClaimSubmittedSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, testLogger())

	n.NotifyClaimEvent(context.Background(), events.ClaimSubmitted, events.ClaimEventPayload{
		ClaimNumber:   "CLM-2026-000010",
		CustomerEmail: "jordan@example.com",
	})
	if len(sender.sent) != 0 {
		t.Fatalf("expected no email for a submission, got %d", len(sender.sent))
	}
}

func TestSendFailureIsSwallowed(t *testing.T) {
	sender := &fakeSender{err: errors.New("ses throttled")}
	n := NewNotifier(sender, testLogger())

	// Must not panic or propagate; the handler below still returns nil.
	handler := PolicyEventHandler(n)
	payload, _ := json.Marshal(policyPayload())
	err := handler(context.Background(), events.PolicyCreated, events.Envelope{Payload: payload})
	if err != nil {
		t.Fatalf("send failure must not fail the handler: %v", err)
	}
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	n := NewNotifier(&fakeSender{}, testLogger())
	handler := ClaimEventHandler(n)

	err := handler(context.Background(), events.ClaimApproved, events.Envelope{Payload: json.RawMessage(`{"claim_id":"not-a-number"}`)})
	if err == nil {
		t.Fatalf("malformed payload must be a handler failure")
	}
}
