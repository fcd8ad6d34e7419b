package service

import (
	"context"
	"testing"
	"time"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func TestAgentServiceCreateAndUpdateRoles(t *testing.T) {
	mem := storetest.New()
	svc := NewAgentService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("agent"))

	created, err := svc.Create(context.Background(), CreateAgentInput{Name: "ci-bot", Roles: []string{"engineer"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created.IsActive {
		t.Fatalf("expected newly created agent to be active")
	}

	updated, err := svc.UpdateRoles(context.Background(), created.AgentID, []string{"engineer", "admin"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updated.Roles) != 2 {
		t.Fatalf("expected roles to be replaced, got %v", updated.Roles)
	}
}

func TestAgentServiceDeactivate(t *testing.T) {
	mem := storetest.New()
	svc := NewAgentService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("agent"))

	created, err := svc.Create(context.Background(), CreateAgentInput{Name: "ci-bot"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Deactivate(context.Background(), created.AgentID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetched, err := svc.Get(context.Background(), created.AgentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.IsActive {
		t.Fatalf("expected agent to be inactive after Deactivate")
	}
}
