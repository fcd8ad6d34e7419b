package service

import (
	"context"
	"testing"
	"time"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func TestPolicyServiceCreateAndUpdate(t *testing.T) {
	mem := storetest.New()
	svc := NewPolicyService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("policy"))

	created, err := svc.Create(context.Background(), CreatePolicyInput{
		Name: "default-read", AllowedScopes: []string{"read"}, Priority: 10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created.IsActive {
		t.Fatalf("expected newly created policy to be active")
	}

	newPriority := 20
	updated, err := svc.Update(context.Background(), UpdatePolicyInput{
		PolicyID: created.PolicyID, Priority: &newPriority,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Priority != 20 {
		t.Fatalf("expected priority to be updated, got %d", updated.Priority)
	}
	if updated.Name != "default-read" {
		t.Fatalf("expected Name to be left untouched when nil, got %q", updated.Name)
	}
}

func TestPolicyServiceDeactivate(t *testing.T) {
	mem := storetest.New()
	svc := NewPolicyService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("policy"))

	created, err := svc.Create(context.Background(), CreatePolicyInput{Name: "temp", AllowedScopes: []string{"read"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Deactivate(context.Background(), created.PolicyID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetched, err := svc.Get(context.Background(), created.PolicyID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.IsActive {
		t.Fatalf("expected policy to be inactive after Deactivate")
	}
}

func TestPolicyServiceListReturnsAll(t *testing.T) {
	mem := storetest.New()
	svc := NewPolicyService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("policy"))

	toolID := "tool-1"
	if _, err := svc.Create(context.Background(), CreatePolicyInput{Name: "a", AllowedScopes: []string{"read"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(context.Background(), CreatePolicyInput{Name: "b", ToolID: &toolID, AllowedScopes: []string{"write"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	policies, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
}
