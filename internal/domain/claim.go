package domain

import (
	"fmt"
	"strings"
	"time"

	"policy-management-service/internal/apperr"
)

type ClaimStatus string

const (
	ClaimStatusSubmitted ClaimStatus = "SUBMITTED"
	ClaimStatusApproved  ClaimStatus = "APPROVED"
	ClaimStatusRejected  ClaimStatus = "REJECTED"
)

func ParseClaimStatus(raw string) (ClaimStatus, error) {
	switch ClaimStatus(raw) {
	case ClaimStatusSubmitted, ClaimStatusApproved, ClaimStatusRejected:
		return ClaimStatus(raw), nil
	}
	return "", apperr.BadRequest("claim status must be one of SUBMITTED, APPROVED, REJECTED")
}

type Claim struct {
	ID              int64
	ClaimNumber     string
	PolicyID        int64
	Description     string
	ClaimAmount     float64
	IncidentDate    time.Time
	Status          ClaimStatus
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewClaim validates a submission against its policy and builds the claim
// in its initial SUBMITTED state.
func NewClaim(policy Policy, description string, amount float64, incidentDate time.Time) (Claim, error) {
	if policy.Status != PolicyStatusActive {
		return Claim{}, apperr.Conflict("claims can be submitted only for ACTIVE policies")
	}
	if amount > policy.CoverageAmount {
		return Claim{}, apperr.Conflict("claim amount cannot exceed policy coverage amount")
	}
	if incidentDate.Before(policy.StartDate) || incidentDate.After(policy.EndDate) {
		return Claim{}, apperr.Conflict("incident date must fall within the policy term")
	}
	return Claim{
		PolicyID:     policy.ID,
		Description:  description,
		ClaimAmount:  amount,
		IncidentDate: incidentDate,
		Status:       ClaimStatusSubmitted,
	}, nil
}

// UpdateStatus applies a status transition. APPROVED and REJECTED are
// terminal; REJECTED requires a non-blank reason.
func (c *Claim) UpdateStatus(to ClaimStatus, rejectionReason string) error {
	if c.Status == ClaimStatusApproved || c.Status == ClaimStatusRejected {
		return apperr.Conflict("approved or rejected claims cannot change status")
	}
	if to == ClaimStatusRejected {
		if strings.TrimSpace(rejectionReason) == "" {
			return apperr.Conflict("claim status cannot be updated to REJECTED without a rejection reason")
		}
		c.RejectionReason = rejectionReason
	}
	c.Status = to
	return nil
}

// GenerateClaimNumber derives the stable business identifier from the
// database-assigned id.
func GenerateClaimNumber(id int64, now time.Time) string {
	return fmt.Sprintf("CLM-%d-%06d", now.Year(), id%1_000_000)
}
