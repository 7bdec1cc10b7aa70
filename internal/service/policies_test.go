package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"policy-management-service/internal/apperr"
	"policy-management-service/internal/cache"
	"policy-management-service/internal/domain"
	"policy-management-service/internal/events"
	"policy-management-service/shared/cachex"
	"policy-management-service/shared/logx"
)

type fakePolicyStore struct {
	policies map[int64]domain.Policy
	nextID   int64

	findCalls   int
	pageCalls   int
	updateCalls int
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: map[int64]domain.Policy{}, nextID: 1}
}

func (s *fakePolicyStore) Insert(_ context.Context, p *domain.Policy) error {
	now := time.Now().UTC()
	p.ID = s.nextID
	s.nextID++
	p.PolicyNumber = domain.GeneratePolicyNumber(p.ID, now)
	p.CreatedAt = now
	p.UpdatedAt = now
	s.policies[p.ID] = *p
	return nil
}

func (s *fakePolicyStore) FindByID(_ context.Context, id int64) (domain.Policy, error) {
	s.findCalls++
	p, ok := s.policies[id]
	if !ok {
		return domain.Policy{}, apperr.NotFound("policy not found")
	}
	return p, nil
}

func (s *fakePolicyStore) Update(_ context.Context, p *domain.Policy) error {
	s.updateCalls++
	if _, ok := s.policies[p.ID]; !ok {
		return apperr.NotFound("policy not found")
	}
	p.UpdatedAt = time.Now().UTC()
	s.policies[p.ID] = *p
	return nil
}

func (s *fakePolicyStore) FindPage(_ context.Context, page, size int, sort string) (domain.PolicyPage, error) {
	s.pageCalls++
	items := []domain.Policy{}
	for _, p := range s.policies {
		items = append(items, p)
	}
	return domain.PolicyPage{
		Items: items, Page: page, Size: size, Sort: sort,
		TotalElements: int64(len(items)), TotalPages: 1,
	}, nil
}

type publishedEvent struct {
	topic string
	key   string
	env   events.Envelope
}

type fakeBroker struct {
	mu        sync.Mutex
	published []publishedEvent
}

func (b *fakeBroker) Publish(_ context.Context, topic string, key []byte, value []byte, _ map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var env events.Envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return err
	}
	b.published = append(b.published, publishedEvent{topic: topic, key: string(key), env: env})
	return nil
}

func (b *fakeBroker) events() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedEvent, len(b.published))
	copy(out, b.published)
	return out
}

type policyFixture struct {
	svc    *PolicyService
	store  *fakePolicyStore
	broker *fakeBroker
	pub    *events.Publisher
	redis  *miniredis.Miniredis
}

func newPolicyFixture(t *testing.T) *policyFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := logx.New("test", "test", "", "error")
	client := cachex.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	store := newFakePolicyStore()
	broker := &fakeBroker{}
	pub := events.NewPublisher(broker, logger, "test")
	svc := NewPolicyService(store, cache.New(client, 30*time.Minute, logger), pub, logger)
	return &policyFixture{svc: svc, store: store, broker: broker, pub: pub, redis: mr}
}

func activePolicyInput(start time.Time) domain.Policy {
	return domain.NewPolicy("Jordan Reyes", "jordan@example.com", domain.PolicyTypeAuto,
		50000, 1200, start, start.AddDate(0, 6, 0))
}

func TestCreateWarmsCacheAndPublishes(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, activePolicyInput(time.Now().UTC()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == 0 || p.PolicyNumber == "" {
		t.Fatalf("expected assigned id and policy number, got %+v", p)
	}
	f.pub.Flush()

	published := f.broker.events()
	if len(published) != 1 {
		t.Fatalf("expected 1 event, got %d", len(published))
	}
	ev := published[0]
	if ev.topic != events.TopicPolicyEvents || ev.env.EventType != "POLICY_CREATED" {
		t.Fatalf("unexpected event: %s %s", ev.topic, ev.env.EventType)
	}
	if ev.key != "1" || ev.env.EntityID != "1" {
		t.Fatalf("event must be keyed by entity id, got key=%q entity_id=%q", ev.key, ev.env.EntityID)
	}

	// Entity key is warm: reads are served without touching the store.
	before := f.store.findCalls
	got, err := f.svc.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PolicyNumber != p.PolicyNumber {
		t.Fatalf("cached policy mismatch")
	}
	if f.store.findCalls != before {
		t.Fatalf("expected cache hit, store was queried")
	}
}

func TestGetByIDCacheAside(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p := activePolicyInput(time.Now().UTC())
	if err := f.store.Insert(ctx, &p); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := f.svc.GetByID(ctx, p.ID); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if f.store.findCalls != 1 {
		t.Fatalf("cold read must hit the store once, got %d", f.store.findCalls)
	}
	if _, err := f.svc.GetByID(ctx, p.ID); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if f.store.findCalls != 1 {
		t.Fatalf("warm read must not hit the store, got %d calls", f.store.findCalls)
	}
}

func TestGetByIDAbsentIsNeverCached(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.svc.GetByID(ctx, 404)
		if !apperr.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	}
	if f.store.findCalls != 2 {
		t.Fatalf("absent entity must hit the store every time, got %d calls", f.store.findCalls)
	}
	if f.redis.Exists(cache.KeyByID(404)) {
		t.Fatalf("absent entity must not be cached")
	}
}

func TestCancelWriteThroughReadYourWrites(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, activePolicyInput(time.Now().UTC()))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	cancelled, err := f.svc.Cancel(ctx, p.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.PolicyStatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	// The very next read observes CANCELLED from the cache alone.
	before := f.store.findCalls
	got, err := f.svc.GetByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.PolicyStatusCancelled {
		t.Fatalf("read after cancel must observe CANCELLED, got %s", got.Status)
	}
	if f.store.findCalls != before {
		t.Fatalf("read after write must be served from cache")
	}

	f.pub.Flush()
	published := f.broker.events()
	if len(published) != 2 || published[1].env.EventType != "POLICY_CANCELLED" {
		t.Fatalf("expected POLICY_CANCELLED after POLICY_CREATED, got %+v", published)
	}
}

func TestCancelTwiceIsRejected(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, _ := f.svc.Create(ctx, activePolicyInput(time.Now().UTC()))
	if _, err := f.svc.Cancel(ctx, p.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	updates := f.store.updateCalls

	if _, err := f.svc.Cancel(ctx, p.ID); err == nil {
		t.Fatalf("expected second cancel to be rejected")
	}
	if f.store.updateCalls != updates {
		t.Fatalf("rejected cancel must not write the store")
	}
}

func TestRenewRejectedWhileTermCurrent(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, _ := f.svc.Create(ctx, activePolicyInput(time.Now().UTC()))
	f.pub.Flush()
	eventsBefore := len(f.broker.events())
	updatesBefore := f.store.updateCalls

	_, err := f.svc.Renew(ctx, p.ID)
	if err == nil {
		t.Fatalf("expected renewal rejection while the term is current")
	}
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindBadRequest {
		t.Fatalf("expected bad-request error, got %v", err)
	}

	f.pub.Flush()
	if len(f.broker.events()) != eventsBefore {
		t.Fatalf("rejected renewal must not publish")
	}
	if f.store.updateCalls != updatesBefore {
		t.Fatalf("rejected renewal must not write the store")
	}
	if got, _ := f.svc.GetByID(ctx, p.ID); !got.EndDate.Equal(p.EndDate) {
		t.Fatalf("rejected renewal must leave the term unchanged")
	}
}

func TestRenewAfterTermElapsed(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	start := time.Now().UTC().AddDate(-1, 0, 0)
	p, _ := f.svc.Create(ctx, activePolicyInput(start))

	renewedAt := time.Now().UTC().Truncate(time.Second)
	f.svc.now = func() time.Time { return renewedAt }

	renewed, err := f.svc.Renew(ctx, p.ID)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if !renewed.StartDate.Equal(renewedAt) || !renewed.EndDate.Equal(renewedAt.AddDate(0, 6, 0)) {
		t.Fatalf("expected fresh 6-month term, got %s..%s", renewed.StartDate, renewed.EndDate)
	}
	if renewed.Status != domain.PolicyStatusActive {
		t.Fatalf("renewed policy must be ACTIVE")
	}

	f.pub.Flush()
	published := f.broker.events()
	if len(published) != 2 || published[1].env.EventType != "POLICY_RENEWED" {
		t.Fatalf("expected POLICY_RENEWED, got %+v", published)
	}
}

func TestListPageCacheInvalidatedByMutation(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, _ := f.svc.Create(ctx, activePolicyInput(time.Now().UTC()))

	if _, err := f.svc.List(ctx, 0, 10, "id"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.store.pageCalls != 1 {
		t.Fatalf("cold list must hit the store, got %d", f.store.pageCalls)
	}
	if _, err := f.svc.List(ctx, 0, 10, "id"); err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.store.pageCalls != 1 {
		t.Fatalf("warm list must be served from cache, got %d calls", f.store.pageCalls)
	}

	if _, err := f.svc.Cancel(ctx, p.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Any mutation leaves every page cold.
	result, err := f.svc.List(ctx, 0, 10, "id")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if f.store.pageCalls != 2 {
		t.Fatalf("list after mutation must reload from store, got %d calls", f.store.pageCalls)
	}
	if len(result.Items) != 1 || result.Items[0].Status != domain.PolicyStatusCancelled {
		t.Fatalf("reloaded page must reflect the mutation: %+v", result.Items)
	}
}

func TestMutationRejectedWhileLockHeld(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	p, _ := f.svc.Create(ctx, activePolicyInput(time.Now().UTC().AddDate(-1, 0, 0)))
	if err := f.redis.Set(fmt.Sprintf("policy:lock:%d", p.ID), "another-instance"); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	_, err := f.svc.Cancel(ctx, p.ID)
	e, ok := apperr.As(err)
	if !ok || e.Kind != apperr.KindConflict {
		t.Fatalf("expected conflict while another mutation holds the lock, got %v", err)
	}
	if f.store.updateCalls != 0 {
		t.Fatalf("locked-out mutation must not write the store")
	}

	f.redis.Del(fmt.Sprintf("policy:lock:%d", p.ID))
	if _, err := f.svc.Cancel(ctx, p.ID); err != nil {
		t.Fatalf("cancel after lock released: %v", err)
	}
}

func TestListNormalizesPagingParams(t *testing.T) {
	f := newPolicyFixture(t)
	ctx := context.Background()

	result, err := f.svc.List(ctx, -3, 0, "drop table")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if result.Page != 0 || result.Size != defaultPageSize || result.Sort != "id" {
		t.Fatalf("expected normalized params, got page=%d size=%d sort=%q", result.Page, result.Size, result.Sort)
	}
}
