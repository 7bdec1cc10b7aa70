package service

import (
	"context"
	"strconv"
	"time"

	"policy-management-service/internal/domain"
	"policy-management-service/internal/events"
	"policy-management-service/shared/logx"
)

// ClaimStore is the persistence surface the service needs; satisfied by
// repos.ClaimsRepo.
type ClaimStore interface {
	Insert(ctx context.Context, c *domain.Claim) error
	FindByID(ctx context.Context, id int64) (domain.Claim, error)
	FindByPolicyID(ctx context.Context, policyID int64) ([]domain.Claim, error)
	Update(ctx context.Context, c *domain.Claim) error
}

// ClaimService also reads policies: submissions are validated against the
// owning policy, and claim events carry the policyholder's email so the
// notifier never needs a store round-trip.
type ClaimService struct {
	claims   ClaimStore
	policies PolicyStore
	pub      *events.Publisher
	logger   logx.Logger
}

func NewClaimService(claims ClaimStore, policies PolicyStore, pub *events.Publisher, logger logx.Logger) *ClaimService {
	return &ClaimService{claims: claims, policies: policies, pub: pub, logger: logger}
}

// Create validates the submission against its policy, persists the claim
// in SUBMITTED state, and announces CLAIM_SUBMITTED.
func (s *ClaimService) Create(ctx context.Context, policyID int64, description string, amount float64, incidentDate time.Time) (domain.Claim, error) {
	policy, err := s.policies.FindByID(ctx, policyID)
	if err != nil {
		return domain.Claim{}, err
	}
	c, err := domain.NewClaim(policy, description, amount, incidentDate)
	if err != nil {
		return domain.Claim{}, err
	}
	if err := s.claims.Insert(ctx, &c); err != nil {
		return domain.Claim{}, err
	}
	s.pub.Publish(events.TopicClaimEvents, events.ClaimSubmitted, strconv.FormatInt(c.ID, 10), events.BuildClaimPayload(c, policy.CustomerEmail))
	return c, nil
}

func (s *ClaimService) GetByID(ctx context.Context, id int64) (domain.Claim, error) {
	return s.claims.FindByID(ctx, id)
}

// GetByPolicyID lists a policy's claims, newest first. A missing policy is
// NotFound rather than an empty list.
func (s *ClaimService) GetByPolicyID(ctx context.Context, policyID int64) ([]domain.Claim, error) {
	if _, err := s.policies.FindByID(ctx, policyID); err != nil {
		return nil, err
	}
	return s.claims.FindByPolicyID(ctx, policyID)
}

// UpdateStatus applies a claim status transition and announces
// CLAIM_APPROVED or CLAIM_REJECTED. A transition that lands back on
// SUBMITTED is persisted but announces nothing; CLAIM_SUBMITTED belongs
// to Create alone. Terminal claims reject any further transition before
// anything is written.
func (s *ClaimService) UpdateStatus(ctx context.Context, id int64, to domain.ClaimStatus, rejectionReason string) (domain.Claim, error) {
	c, err := s.claims.FindByID(ctx, id)
	if err != nil {
		return domain.Claim{}, err
	}
	if err := c.UpdateStatus(to, rejectionReason); err != nil {
		return domain.Claim{}, err
	}
	if err := s.claims.Update(ctx, &c); err != nil {
		return domain.Claim{}, err
	}

	if eventType, announce := claimEventFor(c.Status); announce {
		customerEmail := ""
		if policy, err := s.policies.FindByID(ctx, c.PolicyID); err == nil {
			customerEmail = policy.CustomerEmail
		}
		s.pub.Publish(events.TopicClaimEvents, eventType, strconv.FormatInt(c.ID, 10), events.BuildClaimPayload(c, customerEmail))
	}
	return c, nil
}

func claimEventFor(status domain.ClaimStatus) (events.EventType, bool) {
	switch status {
	case domain.ClaimStatusApproved:
		return events.ClaimApproved, true
	case domain.ClaimStatusRejected:
		return events.ClaimRejected, true
	}
	return "", false
}
