package service

import (
	"context"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

type AgentService struct {
	store store.Store
	clock clock.Clock
	idgen clock.IDGen
}

func NewAgentService(s store.Store, c clock.Clock, idgen clock.IDGen) *AgentService {
	return &AgentService{store: s, clock: c, idgen: idgen}
}

type CreateAgentInput struct {
	Name        string
	Description string
	Roles       []string
}

func (s *AgentService) Create(ctx context.Context, in CreateAgentInput) (*domain.Agent, error) {
	a := &domain.Agent{
		AgentID:     s.idgen.NewID(),
		Name:        in.Name,
		Description: in.Description,
		Roles:       in.Roles,
		IsActive:    true,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.CreateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AgentService) Get(ctx context.Context, agentID string) (*domain.Agent, error) {
	return s.store.GetAgent(ctx, agentID)
}

func (s *AgentService) List(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	return s.store.ListAgents(ctx, filter)
}

func (s *AgentService) UpdateRoles(ctx context.Context, agentID string, roles []string) (*domain.Agent, error) {
	a, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	a.Roles = roles
	if err := s.store.UpdateAgent(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Deactivate is the broker's equivalent of the teacher's kill-switch: a
// deactivated agent fails UNKNOWN_TARGET on its next RequestAccess call,
// same net effect as KillSwitchManager.IsBlocked, but persisted in Store
// rather than a Redis set, since deactivation here is a durable state
// transition (spec.md §3), not a transient incident response toggle.
func (s *AgentService) Deactivate(ctx context.Context, agentID string) error {
	return s.store.DeactivateAgent(ctx, agentID)
}
