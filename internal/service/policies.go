// Package service orchestrates each API operation: lifecycle rules run
// first, then the store write, then the cache write-through and eviction,
// then the asynchronous event publish. Nothing after the store write can
// fail the operation.
package service

import (
	"context"
	"strconv"
	"time"

	"policy-management-service/internal/apperr"
	"policy-management-service/internal/cache"
	"policy-management-service/internal/domain"
	"policy-management-service/internal/events"
	"policy-management-service/internal/repos"
	"policy-management-service/shared/logx"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// PolicyStore is the persistence surface the service needs; satisfied by
// repos.PoliciesRepo.
type PolicyStore interface {
	Insert(ctx context.Context, p *domain.Policy) error
	FindByID(ctx context.Context, id int64) (domain.Policy, error)
	Update(ctx context.Context, p *domain.Policy) error
	FindPage(ctx context.Context, page, size int, sort string) (domain.PolicyPage, error)
}

type PolicyService struct {
	store  PolicyStore
	cache  *cache.PolicyCache
	pub    *events.Publisher
	logger logx.Logger

	// now is swapped out by tests that exercise term-elapsed rules.
	now func() time.Time
}

func NewPolicyService(store PolicyStore, c *cache.PolicyCache, pub *events.Publisher, logger logx.Logger) *PolicyService {
	return &PolicyService{
		store:  store,
		cache:  c,
		pub:    pub,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new ACTIVE policy, warms its entity key, invalidates
// the listing pages, and announces POLICY_CREATED.
func (s *PolicyService) Create(ctx context.Context, p domain.Policy) (domain.Policy, error) {
	if err := s.store.Insert(ctx, &p); err != nil {
		return domain.Policy{}, err
	}
	s.cache.PutByID(ctx, p)
	s.cache.EvictPages(ctx)
	s.pub.Publish(events.TopicPolicyEvents, events.PolicyCreated, strconv.FormatInt(p.ID, 10), events.BuildPolicyPayload(p))
	return p, nil
}

// GetByID is cache-aside: serve the entity key when warm, otherwise load
// from the store and populate the key. Absent policies are never cached.
func (s *PolicyService) GetByID(ctx context.Context, id int64) (domain.Policy, error) {
	if p, ok := s.cache.GetByID(ctx, id); ok {
		return p, nil
	}
	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Policy{}, err
	}
	s.cache.PutByID(ctx, p)
	return p, nil
}

// List serves one listing page, cache-aside over the normalized paging
// parameters.
func (s *PolicyService) List(ctx context.Context, page, size int, sort string) (domain.PolicyPage, error) {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if _, ok := repos.SortColumn(sort); !ok {
		sort = "id"
	}

	if result, ok := s.cache.GetPage(ctx, page, size, sort); ok {
		return result, nil
	}
	result, err := s.store.FindPage(ctx, page, size, sort)
	if err != nil {
		return domain.PolicyPage{}, err
	}
	s.cache.PutPage(ctx, result)
	return result, nil
}

// Renew starts a fresh term on a policy whose current term has elapsed.
// A rejected renewal leaves the store, the cache, and the event stream
// untouched.
func (s *PolicyService) Renew(ctx context.Context, id int64) (domain.Policy, error) {
	release, ok := s.cache.Lock(ctx, id)
	if !ok {
		return domain.Policy{}, apperr.Conflict("policy is being modified, retry shortly")
	}
	defer release()

	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Policy{}, err
	}
	if err := p.Renew(s.now()); err != nil {
		return domain.Policy{}, err
	}
	if err := s.store.Update(ctx, &p); err != nil {
		return domain.Policy{}, err
	}
	s.cache.PutByID(ctx, p)
	s.cache.EvictPages(ctx)
	s.pub.Publish(events.TopicPolicyEvents, events.PolicyRenewed, strconv.FormatInt(p.ID, 10), events.BuildPolicyPayload(p))
	return p, nil
}

// Cancel moves an ACTIVE policy to CANCELLED.
func (s *PolicyService) Cancel(ctx context.Context, id int64) (domain.Policy, error) {
	release, ok := s.cache.Lock(ctx, id)
	if !ok {
		return domain.Policy{}, apperr.Conflict("policy is being modified, retry shortly")
	}
	defer release()

	p, err := s.store.FindByID(ctx, id)
	if err != nil {
		return domain.Policy{}, err
	}
	if err := p.Cancel(); err != nil {
		return domain.Policy{}, err
	}
	if err := s.store.Update(ctx, &p); err != nil {
		return domain.Policy{}, err
	}
	s.cache.PutByID(ctx, p)
	s.cache.EvictPages(ctx)
	s.pub.Publish(events.TopicPolicyEvents, events.PolicyCancelled, strconv.FormatInt(p.ID, 10), events.BuildPolicyPayload(p))
	return p, nil
}
