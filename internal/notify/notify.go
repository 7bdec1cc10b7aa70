// Package notify turns consumed domain events into customer emails.
// Sending is best-effort: a failed send is logged and counted, never
// surfaced to the consumer, so a broken mail provider cannot poison the
// event stream into retries.
package notify

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"strings"

	"policy-management-service/internal/events"
	"policy-management-service/shared/logx"
	"policy-management-service/shared/metricsx"
)

//go:embed templates/policy-created.html
var policyCreatedTemplate string

//go:embed templates/claim-approved.html
var claimApprovedTemplate string

//go:embed templates/claim-rejected.html
var claimRejectedTemplate string

// Sender delivers one rendered email. Implementations: SESSender, NoopSender.
type Sender interface {
	Send(ctx context.Context, to string, subject string, htmlBody string) error
}

// NoopSender is wired when NOTIFY_ENABLED is off; it logs what would have
// been sent and nothing leaves the process.
type NoopSender struct {
	Logger logx.Logger
}

func (s NoopSender) Send(ctx context.Context, to string, subject string, _ string) error {
	s.Logger.Debug(ctx, "email_skipped", "notifications disabled, email not sent",
		slog.String("to", to),
		slog.String("subject", subject),
	)
	return nil
}

type Notifier struct {
	sender Sender
	logger logx.Logger
}

func NewNotifier(sender Sender, logger logx.Logger) *Notifier {
	return &Notifier{sender: sender, logger: logger}
}

// NotifyPolicyEvent emails the customer for POLICY_CREATED. Renewals and
// cancellations carry no email today.
func (n *Notifier) NotifyPolicyEvent(ctx context.Context, eventType events.EventType, payload events.PolicyEventPayload) {
	if eventType != events.PolicyCreated {
		n.logger.Debug(ctx, "email_not_configured", "no email for policy event type",
			slog.String("event_type", string(eventType)),
		)
		return
	}

	body := replaceAll(policyCreatedTemplate, map[string]string{
		"policyNumber":   payload.PolicyNumber,
		"policyType":     payload.PolicyType,
		"coverageAmount": formatAmount(payload.CoverageAmount),
		"premiumAmount":  formatAmount(payload.PremiumAmount),
		"startDate":      payload.StartDate.Format("2006-01-02"),
		"endDate":        payload.EndDate.Format("2006-01-02"),
		"status":         payload.Status,
	})
	subject := "Welcome to Your Insurance Policy - " + payload.PolicyNumber
	n.deliver(ctx, string(eventType), payload.CustomerEmail, subject, body)
}

// NotifyClaimEvent emails the customer for CLAIM_APPROVED and
// CLAIM_REJECTED. Submissions carry no email today.
func (n *Notifier) NotifyClaimEvent(ctx context.Context, eventType events.EventType, payload events.ClaimEventPayload) {
	var template, subject string
	switch eventType {
	case events.ClaimApproved:
		template = claimApprovedTemplate
		subject = "Claim Approved - " + payload.ClaimNumber
	case events.ClaimRejected:
		template = claimRejectedTemplate
		subject = "Claim Status Update - " + payload.ClaimNumber
	default:
		n.logger.Debug(ctx, "email_not_configured", "no email for claim event type",
			slog.String("event_type", string(eventType)),
		)
		return
	}

	reason := payload.RejectionReason
	if strings.TrimSpace(reason) == "" {
		reason = "Not specified"
	}
	body := replaceAll(template, map[string]string{
		"claimNumber":     payload.ClaimNumber,
		"policyId":        fmt.Sprintf("%d", payload.PolicyID),
		"claimAmount":     formatAmount(payload.ClaimAmount),
		"incidentDate":    payload.IncidentDate.Format("2006-01-02"),
		"status":          payload.Status,
		"rejectionReason": reason,
	})
	n.deliver(ctx, string(eventType), payload.CustomerEmail, subject, body)
}

func (n *Notifier) deliver(ctx context.Context, eventType string, to string, subject string, body string) {
	if strings.TrimSpace(to) == "" {
		n.logger.Warn(ctx, "email_skipped", "event carries no customer email",
			slog.String("event_type", eventType),
		)
		metricsx.IncNotifySend(eventType, "skipped")
		return
	}
	if err := n.sender.Send(ctx, to, subject, body); err != nil {
		n.logger.Error(ctx, "email_send_failed", "failed to send notification email",
			slog.String("error_code", "UNAVAILABLE"),
			slog.String("event_type", eventType),
			slog.String("to", to),
			slog.String("error", err.Error()),
		)
		metricsx.IncNotifySend(eventType, "error")
		return
	}
	n.logger.Info(ctx, "email_sent", "notification email sent",
		slog.String("event_type", eventType),
		slog.String("to", to),
		slog.String("subject", subject),
	)
	metricsx.IncNotifySend(eventType, "ok")
}

func replaceAll(template string, values map[string]string) string {
	out := template
	for key, value := range values {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

func formatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
