// Package domain holds the Policy and Claim aggregates and their lifecycle
// state machines. Every illegal transition fails here, before any
// persistence, cache write, or event publish can happen.
package domain

import (
	"fmt"
	"time"

	"policy-management-service/internal/apperr"
)

type PolicyStatus string

const (
	PolicyStatusActive    PolicyStatus = "ACTIVE"
	PolicyStatusCancelled PolicyStatus = "CANCELLED"
)

type PolicyType string

const (
	PolicyTypeHealth PolicyType = "HEALTH"
	PolicyTypeAuto   PolicyType = "AUTO"
	PolicyTypeHome   PolicyType = "HOME"
	PolicyTypeLife   PolicyType = "LIFE"
)

func ParsePolicyType(raw string) (PolicyType, error) {
	switch PolicyType(raw) {
	case PolicyTypeHealth, PolicyTypeAuto, PolicyTypeHome, PolicyTypeLife:
		return PolicyType(raw), nil
	}
	return "", apperr.BadRequest("policy type must be one of HEALTH, AUTO, HOME, LIFE")
}

// RenewalTermMonths is the length of the term applied by a renewal.
const RenewalTermMonths = 6

type Policy struct {
	ID             int64
	PolicyNumber   string
	CustomerName   string
	CustomerEmail  string
	PolicyType     PolicyType
	CoverageAmount float64
	PremiumAmount  float64
	StartDate      time.Time
	EndDate        time.Time
	Status         PolicyStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPolicy builds a policy in its initial ACTIVE state.
func NewPolicy(customerName, customerEmail string, policyType PolicyType, coverage, premium float64, startDate, endDate time.Time) Policy {
	return Policy{
		CustomerName:   customerName,
		CustomerEmail:  customerEmail,
		PolicyType:     policyType,
		CoverageAmount: coverage,
		PremiumAmount:  premium,
		StartDate:      startDate,
		EndDate:        endDate,
		Status:         PolicyStatusActive,
	}
}

// Renew starts a fresh term on an ACTIVE policy whose current term has
// elapsed. CANCELLED is terminal, so renewal can never restore coverage
// on a cancelled policy.
func (p *Policy) Renew(now time.Time) error {
	if p.Status == PolicyStatusCancelled {
		return apperr.Conflict("a cancelled policy cannot be renewed")
	}
	if p.EndDate.After(now) {
		return apperr.BadRequest("you can't renew until the current period finishes")
	}
	p.StartDate = now
	p.EndDate = now.AddDate(0, RenewalTermMonths, 0)
	return nil
}

// Cancel moves an ACTIVE policy to CANCELLED. CANCELLED is terminal.
func (p *Policy) Cancel() error {
	if p.Status != PolicyStatusActive {
		return apperr.BadRequest("only ACTIVE policies can be cancelled")
	}
	p.Status = PolicyStatusCancelled
	return nil
}

// GeneratePolicyNumber derives the stable business identifier from the
// database-assigned id.
func GeneratePolicyNumber(id int64, now time.Time) string {
	return fmt.Sprintf("POL-%d-%06d", now.Year(), id%1_000_000)
}
