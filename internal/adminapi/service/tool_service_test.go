package service

import (
	"context"
	"testing"
	"time"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/store"
	"github.com/toolaccess/broker/internal/store/storetest"
)

func TestToolServiceCreateThenGet(t *testing.T) {
	mem := storetest.New()
	svc := NewToolService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("tool"))

	created, err := svc.Create(context.Background(), CreateToolInput{
		Name: "jira", OwnerID: "team-a", AllowedScopes: []string{"read", "write"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ToolID == "" || !created.IsActive {
		t.Fatalf("expected a persisted, active tool, got %+v", created)
	}

	fetched, err := svc.Get(context.Background(), created.ToolID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Name != "jira" {
		t.Fatalf("expected fetched tool to round-trip, got %+v", fetched)
	}
}

func TestToolServiceUpdateAppliesOnlyProvidedFields(t *testing.T) {
	mem := storetest.New()
	svc := NewToolService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("tool"))

	created, err := svc.Create(context.Background(), CreateToolInput{
		Name: "jira", Description: "issue tracker", AllowedScopes: []string{"read"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	newScopes := []string{"read", "write", "admin"}
	updated, err := svc.Update(context.Background(), UpdateToolInput{
		ToolID: created.ToolID, AllowedScopes: newScopes,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Description != "issue tracker" {
		t.Fatalf("expected Description to be left untouched when nil, got %q", updated.Description)
	}
	if len(updated.AllowedScopes) != 3 {
		t.Fatalf("expected AllowedScopes to be replaced, got %v", updated.AllowedScopes)
	}
}

func TestToolServiceDeactivate(t *testing.T) {
	mem := storetest.New()
	svc := NewToolService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("tool"))

	created, err := svc.Create(context.Background(), CreateToolInput{Name: "jira"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Deactivate(context.Background(), created.ToolID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetched, err := svc.Get(context.Background(), created.ToolID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.IsActive {
		t.Fatalf("expected tool to be inactive after Deactivate")
	}
}

func TestToolServiceListFiltersByOwner(t *testing.T) {
	mem := storetest.New()
	svc := NewToolService(mem, clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)), clock.NewSequential("tool"))

	if _, err := svc.Create(context.Background(), CreateToolInput{Name: "jira", OwnerID: "team-a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Create(context.Background(), CreateToolInput{Name: "slack", OwnerID: "team-b"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tools, err := svc.List(context.Background(), store.ToolFilter{OwnerID: "team-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "jira" {
		t.Fatalf("expected only team-a's tool, got %+v", tools)
	}
}
