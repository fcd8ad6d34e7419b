package credential

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/secretstore"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func newTestVendor(t *testing.T) (*Vendor, *storetest.Memory, secretstore.SecretStore) {
	t.Helper()
	mem := storetest.New()
	secrets, err := secretstore.NewEnvKeyring("a-test-secret-at-least-16-bytes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idgen := clock.NewSequential("cred")
	auditLogger := audit.NewTxLogger(mem, fixed, idgen, nil)
	return NewVendor(mem, secrets, fixed, idgen, auditLogger, zap.NewNop()), mem, secrets
}

func TestIssueThenValidateRoundTrips(t *testing.T) {
	v, _, _ := newTestVendor(t)
	ctx := context.Background()

	credID, token, expiresAt, err := v.Issue(ctx, "agent-1", "tool-1", []string{"read", "write"}, 900, "policy-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if credID == "" || token == "" {
		t.Fatalf("expected non-empty credential id and token")
	}
	if !expiresAt.Equal(time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC)) {
		t.Fatalf("expected expiry at the fixed clock plus 900s, got %v", expiresAt)
	}

	result, err := v.Validate(ctx, token, "read")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected the freshly issued token to validate, got reason %q", result.ReasonCode)
	}
	if result.CredentialID != credID || result.AgentID != "agent-1" || result.ToolID != "tool-1" {
		t.Fatalf("unexpected validate result: %+v", result)
	}
}

func TestValidateRejectsInsufficientScope(t *testing.T) {
	v, _, _ := newTestVendor(t)
	ctx := context.Background()

	_, token, _, err := v.Issue(ctx, "agent-1", "tool-1", []string{"read"}, 900, "policy-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := v.Validate(ctx, token, "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid || result.ReasonCode != "INSUFFICIENT_SCOPE" {
		t.Fatalf("expected INSUFFICIENT_SCOPE, got %+v", result)
	}
}

func TestValidateRejectsExpiredCredential(t *testing.T) {
	mem := storetest.New()
	secrets, err := secretstore.NewEnvKeyring("a-test-secret-at-least-16-bytes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fixed := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	idgen := clock.NewSequential("cred")
	auditLogger := audit.NewTxLogger(mem, fixed, idgen, nil)
	v := NewVendor(mem, secrets, fixed, idgen, auditLogger, zap.NewNop())
	ctx := context.Background()

	_, token, _, err := v.Issue(ctx, "agent-1", "tool-1", []string{"read"}, 60, "policy-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fixed.Advance(2 * time.Minute)
	result, err := v.Validate(ctx, token, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid || result.ReasonCode != "CREDENTIAL_EXPIRED" {
		t.Fatalf("expected CREDENTIAL_EXPIRED, got %+v", result)
	}
}

func TestValidateRejectsAfterRevoke(t *testing.T) {
	v, _, _ := newTestVendor(t)
	ctx := context.Background()

	credID, token, _, err := v.Issue(ctx, "agent-1", "tool-1", []string{"read"}, 900, "policy-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := v.Revoke(ctx, credID, "operator-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := v.Validate(ctx, token, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid || result.ReasonCode != "CREDENTIAL_REVOKED" {
		t.Fatalf("expected CREDENTIAL_REVOKED, got %+v", result)
	}
}

func TestValidateRejectsAlgNoneToken(t *testing.T) {
	v, _, _ := newTestVendor(t)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: "agent-1",
	})
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error building alg=none token: %v", err)
	}

	result, err := v.Validate(context.Background(), tok, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected alg=none token to be rejected")
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	v, _, _ := newTestVendor(t)
	ctx := context.Background()

	_, token, _, err := v.Issue(ctx, "agent-1", "tool-1", []string{"read"}, 900, "policy-1", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tampered := token[:len(token)-1] + "x"
	result, err := v.Validate(ctx, tampered, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Valid {
		t.Fatalf("expected a tampered token to be rejected")
	}
}
