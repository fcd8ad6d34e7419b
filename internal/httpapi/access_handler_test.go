package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/broker"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/metrics"
	"github.com/toolaccess/broker/internal/policyengine"
	"github.com/toolaccess/broker/internal/ratelimiter"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func newTestHandler(t *testing.T, policies ...*domain.Policy) (*AccessHandler, *storetest.Memory, *credential.Vendor) {
	t.Helper()
	mem := storetest.New()
	ctx := context.Background()

	for _, p := range policies {
		if err := mem.CreatePolicy(ctx, p); err != nil {
			t.Fatalf("seed policy: %v", err)
		}
	}
	if err := mem.CreateTool(ctx, &domain.Tool{
		ToolID: "tool-1", Name: "jira", AllowedScopes: []string{"read", "write"}, IsActive: true,
	}); err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	if err := mem.CreateAgent(ctx, &domain.Agent{
		AgentID: "agent-1", Name: "ci-bot", Roles: []string{"engineer"}, IsActive: true,
	}); err != nil {
		t.Fatalf("seed agent: %v", err)
	}

	secrets, err := secretstore.NewEnvKeyring("a-test-secret-at-least-16-bytes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idgen := clock.NewSequential("req")
	auditLogger := audit.NewTxLogger(mem, fixed, idgen, nil)
	engine := policyengine.New(mem, ratelimiter.NewMemoryLimiter(), 86400, zap.NewNop())
	vendor := credential.NewVendor(mem, secrets, fixed, idgen, auditLogger, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())

	b := broker.New(mem, ratelimiter.NewMemoryLimiter(), engine, vendor, auditLogger, fixed, idgen, m, nil, broker.Config{
		DefaultRateLimit: 5, DefaultRateWindow: 60, DefaultLifetime: 900,
	}, zap.NewNop())

	return NewAccessHandler(b, vendor, mem, zap.NewNop()), mem, vendor
}

func TestRequestAccessHandlerAllows(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	h, _, _ := newTestHandler(t, policy)

	body, _ := json.Marshal(requestAccessBody{AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"}})
	req := httptest.NewRequest(http.MethodPost, "/access/request", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RequestAccess(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error decoding response: %v", err)
	}
	if resp["outcome"] != "ALLOW" {
		t.Fatalf("expected ALLOW outcome, got %v", resp["outcome"])
	}
}

func TestRequestAccessHandlerRejectsMissingFields(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body, _ := json.Marshal(requestAccessBody{AgentID: "agent-1"})
	req := httptest.NewRequest(http.MethodPost, "/access/request", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RequestAccess(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing tool_id, got %d", rec.Code)
	}
}

func TestRequestAccessHandlerRejectsMalformedBody(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/access/request", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.RequestAccess(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestRequestAccessHandlerDenyReturns403(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body, _ := json.Marshal(requestAccessBody{AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"}})
	req := httptest.NewRequest(http.MethodPost, "/access/request", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.RequestAccess(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for a denied request with no matching policy, got %d", rec.Code)
	}
}

func TestRequestAccessHandlerRateLimitedReturns429WithRetryAfter(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	h, _, _ := newTestHandler(t, policy)
	body, _ := json.Marshal(requestAccessBody{AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"}})

	var rec *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/access/request", bytes.NewReader(body))
		rec = httptest.NewRecorder()
		h.RequestAccess(rec, req)
	}

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the 6th request (limit=5), got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected a Retry-After header on a rate-limited response")
	}
}

func TestValidateHandlerRejectsMissingToken(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/access/validate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	h.Validate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing token, got %d", rec.Code)
	}
}

func TestValidateHandlerReturns403OnInvalidToken(t *testing.T) {
	h, _, _ := newTestHandler(t)

	body, _ := json.Marshal(validateBody{Token: "not-a-real-token"})
	req := httptest.NewRequest(http.MethodPost, "/access/validate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Validate(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for an invalid token, got %d", rec.Code)
	}
}

func TestGetAccessRequestHandlerNotFound(t *testing.T) {
	h, _, _ := newTestHandler(t)

	r := chi.NewRouter()
	r.Get("/access/requests/{id}", h.GetAccessRequest)

	req := httptest.NewRequest(http.MethodGet, "/access/requests/does-not-exist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown request id, got %d", rec.Code)
	}
}

func TestRevokeCredentialHandlerReturns204(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	h, _, vendor := newTestHandler(t, policy)

	credID, _, _, err := vendor.Issue(context.Background(), "agent-1", "tool-1", []string{"read"}, 900, "p1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	r := chi.NewRouter()
	r.Delete("/credentials/{id}", h.RevokeCredential)

	req := httptest.NewRequest(http.MethodDelete, "/credentials/"+credID, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
}
