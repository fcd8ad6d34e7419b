package service

import (
	"context"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

type PolicyService struct {
	store store.Store
	clock clock.Clock
	idgen clock.IDGen
}

func NewPolicyService(s store.Store, c clock.Clock, idgen clock.IDGen) *PolicyService {
	return &PolicyService{store: s, clock: c, idgen: idgen}
}

type CreatePolicyInput struct {
	Name          string
	ToolID        *string
	CreatedBy     string
	AllowedScopes []string
	Conditions    domain.Conditions
	Rules         domain.Rules
	Priority      int
}

func (s *PolicyService) Create(ctx context.Context, in CreatePolicyInput) (*domain.Policy, error) {
	now := s.clock.Now()
	p := &domain.Policy{
		PolicyID:      s.idgen.NewID(),
		Name:          in.Name,
		ToolID:        in.ToolID,
		CreatedBy:     in.CreatedBy,
		AllowedScopes: in.AllowedScopes,
		Conditions:    in.Conditions,
		Rules:         in.Rules,
		Priority:      in.Priority,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreatePolicy(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PolicyService) Get(ctx context.Context, policyID string) (*domain.Policy, error) {
	return s.store.GetPolicy(ctx, policyID)
}

func (s *PolicyService) List(ctx context.Context) ([]*domain.Policy, error) {
	return s.store.ListPolicies(ctx)
}

type UpdatePolicyInput struct {
	PolicyID      string
	Name          *string
	AllowedScopes []string
	Conditions    *domain.Conditions
	Rules         *domain.Rules
	Priority      *int
}

func (s *PolicyService) Update(ctx context.Context, in UpdatePolicyInput) (*domain.Policy, error) {
	p, err := s.store.GetPolicy(ctx, in.PolicyID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.AllowedScopes != nil {
		p.AllowedScopes = in.AllowedScopes
	}
	if in.Conditions != nil {
		p.Conditions = *in.Conditions
	}
	if in.Rules != nil {
		p.Rules = *in.Rules
	}
	if in.Priority != nil {
		p.Priority = *in.Priority
	}
	p.UpdatedAt = s.clock.Now()
	if err := s.store.UpdatePolicy(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PolicyService) Deactivate(ctx context.Context, policyID string) error {
	return s.store.DeactivatePolicy(ctx, policyID)
}
