package service

import (
	"context"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// ToolService is plain CRUD over Store, mirroring the teacher's
// AgentService/PolicyService shape: thin wrappers that add id/timestamp
// generation in front of the repository.
type ToolService struct {
	store store.Store
	clock clock.Clock
	idgen clock.IDGen
}

func NewToolService(s store.Store, c clock.Clock, idgen clock.IDGen) *ToolService {
	return &ToolService{store: s, clock: c, idgen: idgen}
}

type CreateToolInput struct {
	Name          string
	Description   string
	Version       string
	OwnerID       string
	AllowedScopes []string
}

func (s *ToolService) Create(ctx context.Context, in CreateToolInput) (*domain.Tool, error) {
	now := s.clock.Now()
	t := &domain.Tool{
		ToolID:        s.idgen.NewID(),
		Name:          in.Name,
		Description:   in.Description,
		Version:       in.Version,
		OwnerID:       in.OwnerID,
		AllowedScopes: in.AllowedScopes,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateTool(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ToolService) Get(ctx context.Context, toolID string) (*domain.Tool, error) {
	return s.store.GetTool(ctx, toolID)
}

func (s *ToolService) List(ctx context.Context, filter store.ToolFilter) ([]*domain.Tool, error) {
	return s.store.ListTools(ctx, filter)
}

type UpdateToolInput struct {
	ToolID        string
	Description   *string
	AllowedScopes []string
}

func (s *ToolService) Update(ctx context.Context, in UpdateToolInput) (*domain.Tool, error) {
	t, err := s.store.GetTool(ctx, in.ToolID)
	if err != nil {
		return nil, err
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.AllowedScopes != nil {
		t.AllowedScopes = in.AllowedScopes
	}
	t.UpdatedAt = s.clock.Now()
	if err := s.store.UpdateTool(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *ToolService) Deactivate(ctx context.Context, toolID string) error {
	return s.store.DeactivateTool(ctx, toolID)
}
