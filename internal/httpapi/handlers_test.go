package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"policy-management-service/internal/apperr"
	"policy-management-service/internal/cache"
	"policy-management-service/internal/domain"
	"policy-management-service/internal/events"
	"policy-management-service/internal/service"
	"policy-management-service/shared/cachex"
	"policy-management-service/shared/logx"
)

type memPolicyStore struct {
	policies map[int64]domain.Policy
	nextID   int64
}

func (s *memPolicyStore) Insert(_ context.Context, p *domain.Policy) error {
	now := time.Now().UTC()
	p.ID = s.nextID
	s.nextID++
	p.PolicyNumber = domain.GeneratePolicyNumber(p.ID, now)
	p.CreatedAt = now
	p.UpdatedAt = now
	s.policies[p.ID] = *p
	return nil
}

func (s *memPolicyStore) FindByID(_ context.Context, id int64) (domain.Policy, error) {
	p, ok := s.policies[id]
	if !ok {
		return domain.Policy{}, apperr.NotFound(fmt.Sprintf("policy %d not found", id))
	}
	return p, nil
}

func (s *memPolicyStore) Update(_ context.Context, p *domain.Policy) error {
	if _, ok := s.policies[p.ID]; !ok {
		return apperr.NotFound(fmt.Sprintf("policy %d not found", p.ID))
	}
	s.policies[p.ID] = *p
	return nil
}

func (s *memPolicyStore) FindPage(_ context.Context, page, size int, sort string) (domain.PolicyPage, error) {
	items := []domain.Policy{}
	for _, p := range s.policies {
		items = append(items, p)
	}
	return domain.PolicyPage{
		Items: items, Page: page, Size: size, Sort: sort,
		TotalElements: int64(len(items)), TotalPages: 1,
	}, nil
}

type memClaimStore struct {
	claims map[int64]domain.Claim
	nextID int64
}

func (s *memClaimStore) Insert(_ context.Context, c *domain.Claim) error {
	now := time.Now().UTC()
	c.ID = s.nextID
	s.nextID++
	c.ClaimNumber = domain.GenerateClaimNumber(c.ID, now)
	c.CreatedAt = now
	c.UpdatedAt = now
	s.claims[c.ID] = *c
	return nil
}

func (s *memClaimStore) FindByID(_ context.Context, id int64) (domain.Claim, error) {
	c, ok := s.claims[id]
	if !ok {
		return domain.Claim{}, apperr.NotFound(fmt.Sprintf("claim %d not found", id))
	}
	return c, nil
}

func (s *memClaimStore) FindByPolicyID(_ context.Context, policyID int64) ([]domain.Claim, error) {
	out := []domain.Claim{}
	for _, c := range s.claims {
		if c.PolicyID == policyID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memClaimStore) Update(_ context.Context, c *domain.Claim) error {
	if _, ok := s.claims[c.ID]; !ok {
		return apperr.NotFound(fmt.Sprintf("claim %d not found", c.ID))
	}
	s.claims[c.ID] = *c
	return nil
}

type nullBroker struct{}

func (nullBroker) Publish(context.Context, string, []byte, []byte, map[string]string) error {
	return nil
}

func newTestServer(t *testing.T) (*http.ServeMux, *memPolicyStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	logger := logx.New("test", "test", "", "error")
	client := cachex.NewWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	policyCache := cache.New(client, 30*time.Minute, logger)
	pub := events.NewPublisher(nullBroker{}, logger, "test")

	policies := &memPolicyStore{policies: map[int64]domain.Policy{}, nextID: 1}
	claims := &memClaimStore{claims: map[int64]domain.Claim{}, nextID: 1}

	mux := http.NewServeMux()
	NewPolicyHandler(service.NewPolicyService(policies, policyCache, pub, logger), logger).Register(mux)
	NewClaimHandler(service.NewClaimService(claims, policies, pub, logger), logger).Register(mux)
	return mux, policies
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func validPolicyRequest() map[string]any {
	return map[string]any{
		"customerName":   "Jordan Reyes",
		"customerEmail":  "jordan@example.com",
		"policyType":     "AUTO",
		"coverageAmount": 50000.0,
		"premiumAmount":  1200.0,
		"startDate":      "2026-01-01",
		"endDate":        "2026-07-01",
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestCreatePolicyHappyPath(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodPost, "/policy/create-new", validPolicyRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env["status"] != "SUCCESS" || env["message"] != "Policy created successfully" {
		t.Fatalf("unexpected envelope: %v", env)
	}
	data := env["data"].(map[string]any)
	if data["policyNumber"] == "" || data["status"] != "ACTIVE" {
		t.Fatalf("unexpected policy payload: %v", data)
	}
}

func TestCreatePolicyValidationErrors(t *testing.T) {
	mux, _ := newTestServer(t)

	req := validPolicyRequest()
	req["customerName"] = "Prince"
	req["customerEmail"] = "not-an-email"
	req["endDate"] = "2026-03-01"

	rec := doJSON(t, mux, http.MethodPost, "/policy/create-new", req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	errBody := env["error"].(map[string]any)
	if errBody["code"] != "INVALID_ARGUMENT" {
		t.Fatalf("unexpected error code %v", errBody["code"])
	}
	fields := errBody["details"].(map[string]any)["fieldErrors"].(map[string]any)
	for _, field := range []string{"customerName", "customerEmail", "endDate"} {
		if _, ok := fields[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, fields)
		}
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/policy/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env["error"].(map[string]any)["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestListPoliciesPaginationIsOneBased(t *testing.T) {
	mux, _ := newTestServer(t)
	doJSON(t, mux, http.MethodPost, "/policy/create-new", validPolicyRequest())

	rec := doJSON(t, mux, http.MethodGet, "/policy/all?page=1&pageSize=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	data := env["data"].(map[string]any)
	pagination := data["pagination"].(map[string]any)
	if pagination["page"].(float64) != 1 || pagination["totalElements"].(float64) != 1 {
		t.Fatalf("unexpected pagination: %v", pagination)
	}
	if len(data["content"].([]any)) != 1 {
		t.Fatalf("expected 1 policy in content")
	}
}

func TestRenewBeforeTermElapsedIsRejected(t *testing.T) {
	mux, _ := newTestServer(t)

	// Active policy whose term runs well past today.
	req := validPolicyRequest()
	start := time.Now().UTC()
	req["startDate"] = start.Format("2006-01-02")
	req["endDate"] = start.AddDate(1, 0, 0).Format("2006-01-02")
	rec := doJSON(t, mux, http.MethodPost, "/policy/create-new", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPut, "/policy/1/renew", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCancelThenCancelAgain(t *testing.T) {
	mux, _ := newTestServer(t)
	doJSON(t, mux, http.MethodPost, "/policy/create-new", validPolicyRequest())

	rec := doJSON(t, mux, http.MethodPut, "/policy/1/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env["data"].(map[string]any)["status"] != "CANCELLED" {
		t.Fatalf("expected CANCELLED: %s", rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPut, "/policy/1/cancel", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second cancel, got %d", rec.Code)
	}
}

func seedActivePolicy(t *testing.T, mux *http.ServeMux, store *memPolicyStore) domain.Policy {
	t.Helper()
	req := validPolicyRequest()
	start := time.Now().UTC().AddDate(0, -1, 0)
	req["startDate"] = start.Format("2006-01-02")
	req["endDate"] = start.AddDate(0, 7, 0).Format("2006-01-02")
	rec := doJSON(t, mux, http.MethodPost, "/policy/create-new", req)
	if rec.Code != http.StatusOK {
		t.Fatalf("seed policy: %d %s", rec.Code, rec.Body.String())
	}
	return store.policies[1]
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	mux, store := newTestServer(t)
	policy := seedActivePolicy(t, mux, store)

	rec := doJSON(t, mux, http.MethodPost, "/claim/create-new", map[string]any{
		"policyId":     policy.ID,
		"description":  "rear-end collision",
		"claimAmount":  2500.0,
		"incidentDate": policy.StartDate.AddDate(0, 0, 7).Format("2006-01-02"),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create claim: %d %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env["data"].(map[string]any)["status"] != "SUBMITTED" {
		t.Fatalf("expected SUBMITTED: %s", rec.Body.String())
	}

	// Reject without a reason is a conflict.
	rec = doJSON(t, mux, http.MethodPatch, "/claim/1/update-status", map[string]any{
		"claimStatus": "REJECTED",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodPatch, "/claim/1/update-status", map[string]any{
		"claimStatus":       "REJECTED",
		"rejectDescription": "not covered",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: %d %s", rec.Code, rec.Body.String())
	}

	// Terminal: approving a rejected claim is a conflict.
	rec = doJSON(t, mux, http.MethodPatch, "/claim/1/update-status", map[string]any{
		"claimStatus": "APPROVED",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on terminal claim, got %d", rec.Code)
	}

	rec = doJSON(t, mux, http.MethodGet, fmt.Sprintf("/claim/policy/%d", policy.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list claims: %d", rec.Code)
	}
	env = decodeEnvelope(t, rec)
	if len(env["data"].([]any)) != 1 {
		t.Fatalf("expected 1 claim: %s", rec.Body.String())
	}
}

func TestClaimValidation(t *testing.T) {
	mux, store := newTestServer(t)
	policy := seedActivePolicy(t, mux, store)

	rec := doJSON(t, mux, http.MethodPost, "/claim/create-new", map[string]any{
		"policyId":     policy.ID,
		"description":  "",
		"claimAmount":  -5.0,
		"incidentDate": time.Now().UTC().AddDate(0, 0, 2).Format("2006-01-02"),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	fields := env["error"].(map[string]any)["details"].(map[string]any)["fieldErrors"].(map[string]any)
	for _, field := range []string{"description", "claimAmount", "incidentDate"} {
		if _, ok := fields[field]; !ok {
			t.Fatalf("expected field error for %s, got %v", field, fields)
		}
	}

	// Amount above coverage is a business conflict, not a validation error.
	rec = doJSON(t, mux, http.MethodPost, "/claim/create-new", map[string]any{
		"policyId":     policy.ID,
		"description":  "total loss",
		"claimAmount":  policy.CoverageAmount + 1,
		"incidentDate": policy.StartDate.AddDate(0, 0, 1).Format("2006-01-02"),
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPathIDMustBeNumeric(t *testing.T) {
	mux, _ := newTestServer(t)

	rec := doJSON(t, mux, http.MethodGet, "/policy/abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric id, got %d", rec.Code)
	}
}
