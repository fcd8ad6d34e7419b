package broker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/metrics"
	"github.com/toolaccess/broker/internal/policyengine"
	"github.com/toolaccess/broker/internal/ratelimiter"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func newTestBroker(t *testing.T, policies ...*domain.Policy) (*AccessBroker, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	ctx := context.Background()

	for _, p := range policies {
		if err := mem.CreatePolicy(ctx, p); err != nil {
			t.Fatalf("seed policy: %v", err)
		}
	}
	if err := mem.CreateTool(ctx, &domain.Tool{
		ToolID: "tool-1", Name: "jira", AllowedScopes: []string{"read", "write", "admin"}, IsActive: true,
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
	rl := ratelimiter.NewMemoryLimiter()
	m := metrics.New(prometheus.NewRegistry())

	b := New(mem, rl, engine, vendor, auditLogger, fixed, idgen, m, nil, Config{
		DefaultRateLimit: 5, DefaultRateWindow: 60, DefaultLifetime: 900,
	}, zap.NewNop())
	return b, mem
}

func TestRequestAccessDeniesUnknownTool(t *testing.T) {
	b, _ := newTestBroker(t)
	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "does-not-exist", RequestedScopes: []string{"read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomeDeny || result.ReasonCode != "UNKNOWN_TARGET" {
		t.Fatalf("expected UNKNOWN_TARGET deny, got %+v", result)
	}
}

func TestRequestAccessDeniesUnknownAgent(t *testing.T) {
	b, _ := newTestBroker(t)
	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "ghost", ToolID: "tool-1", RequestedScopes: []string{"read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomeDeny || result.ReasonCode != "UNKNOWN_TARGET" {
		t.Fatalf("expected UNKNOWN_TARGET deny, got %+v", result)
	}
}

func TestRequestAccessAllowsAndIssuesCredential(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read", "write"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	b, _ := newTestBroker(t, policy)

	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"}, RequestedLifetime: 300,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomeAllow {
		t.Fatalf("expected ALLOW, got %+v", result)
	}
	if result.Token == "" || result.CredentialID == "" {
		t.Fatalf("expected ALLOW to carry a token and credential id, got %+v", result)
	}
}

func TestRequestAccessPendingApprovalCreatesAccessRequest(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"admin"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{RequireApproval: true, MaxCredentialLifetimeSec: 900},
	}
	b, mem := newTestBroker(t, policy)

	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"admin"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomePendingApproval {
		t.Fatalf("expected PENDING_APPROVAL, got %+v", result)
	}
	if result.RequestID == "" {
		t.Fatalf("expected a request id to be returned")
	}

	req, err := mem.GetAccessRequest(context.Background(), result.RequestID)
	if err != nil {
		t.Fatalf("expected the pending request to be persisted: %v", err)
	}
	if req.Status != domain.RequestPending {
		t.Fatalf("expected the persisted request to be pending, got %s", req.Status)
	}
}

func TestRequestAccessCorrelatesLogsAndCredentialBySharedRequestID(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	b, mem := newTestBroker(t, policy)

	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomeAllow {
		t.Fatalf("expected ALLOW, got %+v", result)
	}

	logs, _, err := mem.QueryAccessLogs(context.Background(), domain.AccessLogFilter{AgentID: "agent-1", PageSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sawEvaluated, sawIssued bool
	for _, l := range logs {
		if l.RequestID != result.RequestID {
			t.Fatalf("expected every log entry for this call to share request id %q, got %+v", result.RequestID, l)
		}
		switch l.Event {
		case domain.EventRequestEvaluated:
			sawEvaluated = true
		case domain.EventCredentialIssued:
			sawIssued = true
		}
	}
	if !sawEvaluated || !sawIssued {
		t.Fatalf("expected both a REQUEST_EVALUATED and CREDENTIAL_ISSUED entry, got %+v", logs)
	}
}

func TestRequestAccessDeniesWithoutMatchingPolicy(t *testing.T) {
	b, _ := newTestBroker(t)
	result, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Outcome != policyengine.OutcomeDeny || result.ReasonCode != "NO_POLICY_MATCH" {
		t.Fatalf("expected NO_POLICY_MATCH deny, got %+v", result)
	}
}

func TestRequestAccessDeniesOverRateLimit(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	b, _ := newTestBroker(t, policy)
	ctx := context.Background()
	in := RequestAccessInput{AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"}}

	var last RequestAccessResult
	var err error
	for i := 0; i < 6; i++ {
		last, err = b.RequestAccess(ctx, in)
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i, err)
		}
	}
	if last.Outcome != policyengine.OutcomeDeny || last.ReasonCode != "RATE_LIMITED" {
		t.Fatalf("expected the 6th request (limit=5) to be RATE_LIMITED, got %+v", last)
	}
}

func TestRequestAccessAuditsAllowedRequest(t *testing.T) {
	policy := &domain.Policy{
		PolicyID: "p1", AllowedScopes: []string{"read"}, IsActive: true, Priority: 10,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 900},
	}
	b, mem := newTestBroker(t, policy)

	if _, err := b.RequestAccess(context.Background(), RequestAccessInput{
		AgentID: "agent-1", ToolID: "tool-1", RequestedScopes: []string{"read"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logs, _, err := mem.QueryAccessLogs(context.Background(), domain.AccessLogFilter{AgentID: "agent-1", PageSize: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) == 0 {
		t.Fatalf("expected RequestAccess to have written an audit entry")
	}
}
