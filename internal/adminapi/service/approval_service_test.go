package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func newTestApprovalService(t *testing.T) (*ApprovalService, *storetest.Memory) {
	t.Helper()
	mem := storetest.New()
	secrets, err := secretstore.NewEnvKeyring("a-test-secret-at-least-16-bytes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idgen := clock.NewSequential("cred")
	auditLogger := audit.NewTxLogger(mem, fixed, idgen, nil)
	vendor := credential.NewVendor(mem, secrets, fixed, idgen, auditLogger, zap.NewNop())
	return NewApprovalService(mem, vendor, fixed, 900), mem
}

func seedPendingRequest(t *testing.T, mem *storetest.Memory, policyID string) *domain.AccessRequest {
	t.Helper()
	req := &domain.AccessRequest{
		RequestID:       "req-1",
		AgentID:         "agent-1",
		ToolID:          "tool-1",
		RequestedScopes: []string{"admin"},
		Status:          domain.RequestPending,
		MatchedPolicyID: &policyID,
		CreatedAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := mem.CreateAccessRequest(context.Background(), req); err != nil {
		t.Fatalf("seed access request: %v", err)
	}
	return req
}

func TestApprovalServiceDecideApproveIssuesCredential(t *testing.T) {
	svc, mem := newTestApprovalService(t)
	policyID := "p1"
	if err := mem.CreatePolicy(context.Background(), &domain.Policy{
		PolicyID: policyID, AllowedScopes: []string{"admin"}, IsActive: true,
		Rules: domain.Rules{MaxCredentialLifetimeSec: 600},
	}); err != nil {
		t.Fatalf("seed policy: %v", err)
	}
	req := seedPendingRequest(t, mem, policyID)

	if err := svc.Decide(context.Background(), req.RequestID, true, "operator-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := svc.Get(context.Background(), req.RequestID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != domain.RequestApproved {
		t.Fatalf("expected request to be approved, got %s", resolved.Status)
	}
}

func TestApprovalServiceDecideRejectDoesNotIssueCredential(t *testing.T) {
	svc, mem := newTestApprovalService(t)
	req := seedPendingRequest(t, mem, "")

	if err := svc.Decide(context.Background(), req.RequestID, false, "operator-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resolved, err := svc.Get(context.Background(), req.RequestID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != domain.RequestRejected {
		t.Fatalf("expected request to be rejected, got %s", resolved.Status)
	}
}

func TestApprovalServiceDecideRejectsAlreadyResolvedRequest(t *testing.T) {
	svc, mem := newTestApprovalService(t)
	req := seedPendingRequest(t, mem, "")

	if err := svc.Decide(context.Background(), req.RequestID, false, "operator-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Decide(context.Background(), req.RequestID, true, "operator-2"); err == nil {
		t.Fatalf("expected deciding an already-resolved request to fail")
	}
}

func TestApprovalServiceListPendingOnlyReturnsPending(t *testing.T) {
	svc, mem := newTestApprovalService(t)
	req := seedPendingRequest(t, mem, "")

	pending, err := svc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].RequestID != req.RequestID {
		t.Fatalf("expected exactly the one pending request, got %+v", pending)
	}

	if err := svc.Decide(context.Background(), req.RequestID, false, "operator-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err = svc.ListPending(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending requests after resolution, got %+v", pending)
	}
}
