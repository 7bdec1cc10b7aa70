package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"policy-management-service/internal/domain"
	"policy-management-service/shared/cachex"
	"policy-management-service/shared/logx"
)

func newTestCache(t *testing.T) (*PolicyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := cachex.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	return New(client, 30*time.Minute, logx.New("test", "test", "", "error")), mr
}

func samplePolicy(id int64) domain.Policy {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p := domain.NewPolicy("Jordan Reyes", "jordan@example.com", domain.PolicyTypeAuto, 50000, 1200, start, start.AddDate(0, 6, 0))
	p.ID = id
	p.PolicyNumber = domain.GeneratePolicyNumber(id, start)
	return p
}

func TestPutByIDThenGetByID(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if _, ok := c.GetByID(ctx, 7); ok {
		t.Fatalf("expected miss on empty cache")
	}

	p := samplePolicy(7)
	c.PutByID(ctx, p)

	got, ok := c.GetByID(ctx, 7)
	if !ok {
		t.Fatalf("expected hit after write-through")
	}
	if got.PolicyNumber != p.PolicyNumber || got.Status != domain.PolicyStatusActive {
		t.Fatalf("cached policy mismatch: %+v", got)
	}

	ttl := mr.TTL(KeyByID(7))
	if ttl <= 0 || ttl > 30*time.Minute {
		t.Fatalf("expected bounded TTL, got %s", ttl)
	}
}

func TestWriteThroughReflectsMutation(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	p := samplePolicy(3)
	c.PutByID(ctx, p)

	if err := p.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	c.PutByID(ctx, p)

	got, ok := c.GetByID(ctx, 3)
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Status != domain.PolicyStatusCancelled {
		t.Fatalf("read after write must observe CANCELLED, got %s", got.Status)
	}
}

func TestEvictPagesKeepsEntityKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutByID(ctx, samplePolicy(1))
	c.PutPage(ctx, domain.PolicyPage{
		Items: []domain.Policy{samplePolicy(1)},
		Page:  0, Size: 10, Sort: "id",
		TotalElements: 1, TotalPages: 1,
	})
	c.PutPage(ctx, domain.PolicyPage{
		Items: []domain.Policy{},
		Page:  1, Size: 10, Sort: "id",
		TotalElements: 1, TotalPages: 1,
	})

	if _, ok := c.GetPage(ctx, 0, 10, "id"); !ok {
		t.Fatalf("expected page hit before eviction")
	}

	c.EvictPages(ctx)

	if _, ok := c.GetPage(ctx, 0, 10, "id"); ok {
		t.Fatalf("expected page 0 cold after eviction")
	}
	if _, ok := c.GetPage(ctx, 1, 10, "id"); ok {
		t.Fatalf("expected page 1 cold after eviction")
	}
	if _, ok := c.GetByID(ctx, 1); !ok {
		t.Fatalf("entity key must survive page eviction")
	}
	if mr.Exists(KeyPage(0, 10, "id")) {
		t.Fatalf("page key still present in redis")
	}
}

func TestPageKeyEncodesAllQueryParams(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.PutPage(ctx, domain.PolicyPage{Page: 0, Size: 10, Sort: "id", TotalElements: 0})

	if _, ok := c.GetPage(ctx, 0, 20, "id"); ok {
		t.Fatalf("different size must be a different key")
	}
	if _, ok := c.GetPage(ctx, 0, 10, "policyNumber"); ok {
		t.Fatalf("different sort must be a different key")
	}
	if _, ok := c.GetPage(ctx, 0, 10, "id"); !ok {
		t.Fatalf("expected hit on exact params")
	}
}

func TestRedisDownDegradesToMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.PutByID(ctx, samplePolicy(9))
	mr.Close()

	if _, ok := c.GetByID(ctx, 9); ok {
		t.Fatalf("expected miss while redis is unreachable")
	}
	// Writes and evictions must swallow the failure too.
	c.PutByID(ctx, samplePolicy(9))
	c.EvictPages(ctx)
}
