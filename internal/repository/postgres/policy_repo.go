package postgres

/*
policy_repo.go separates long-term storage of security rules (Policies)
in PostgreSQL from their evaluation in the PolicyEngine's hot path.
Conditions and Rules are persisted as JSONB and decoded into the closed
domain.Conditions/domain.Rules structs on read; unrecognized keys are
dropped silently here, and neither this file nor the PolicyEngine logs
the drop.
*/

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/toolaccess/broker/internal/domain"
)

func (s *PGStore) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	cond, rules, err := marshalPolicyJSON(p)
	if err != nil {
		return domain.NewError(domain.KindInvalidInput, "INVALID_POLICY", "failed to encode policy", err)
	}
	const q = `
		INSERT INTO policies (policy_id, name, tool_id, created_by, allowed_scopes, conditions, rules, priority, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, execErr := s.db.Exec(ctx, q, p.PolicyID, p.Name, p.ToolID, p.CreatedBy, p.AllowedScopes,
		cond, rules, p.Priority, p.IsActive, p.CreatedAt, p.UpdatedAt)
	if execErr != nil {
		return translatePGError(execErr)
	}
	return nil
}

func (s *PGStore) GetPolicy(ctx context.Context, policyID string) (*domain.Policy, error) {
	const q = `
		SELECT policy_id, name, tool_id, created_by, allowed_scopes, conditions, rules, priority, is_active, created_at, updated_at
		FROM policies WHERE policy_id = $1`
	return s.scanPolicy(s.db.QueryRow(ctx, q, policyID))
}

func (s *PGStore) scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var p domain.Policy
	var condRaw, rulesRaw []byte
	err := row.Scan(&p.PolicyID, &p.Name, &p.ToolID, &p.CreatedBy, &p.AllowedScopes,
		&condRaw, &rulesRaw, &p.Priority, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, translatePGError(err)
	}
	if err := unmarshalPolicyJSON(condRaw, rulesRaw, &p); err != nil {
		return nil, domain.NewError(domain.KindInternal, "INVALID_POLICY", "failed to decode stored policy", err)
	}
	return &p, nil
}

// ListPoliciesForTool returns active policies scoped to toolID or global
// (tool_id IS NULL), ordered by priority DESC then created_at ASC — the
// exact tie-break spec.md §4.1 requires so "first match" is deterministic.
func (s *PGStore) ListPoliciesForTool(ctx context.Context, toolID string) ([]*domain.Policy, error) {
	const q = `
		SELECT policy_id, name, tool_id, created_by, allowed_scopes, conditions, rules, priority, is_active, created_at, updated_at
		FROM policies
		WHERE is_active = true AND (tool_id = $1 OR tool_id IS NULL)
		ORDER BY priority DESC, created_at ASC`
	return s.queryPolicies(ctx, q, toolID)
}

func (s *PGStore) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	const q = `
		SELECT policy_id, name, tool_id, created_by, allowed_scopes, conditions, rules, priority, is_active, created_at, updated_at
		FROM policies ORDER BY priority DESC, created_at ASC`
	return s.queryPolicies(ctx, q)
}

func (s *PGStore) queryPolicies(ctx context.Context, q string, args ...interface{}) ([]*domain.Policy, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, translatePGError(err)
	}
	defer rows.Close()

	policies := make([]*domain.Policy, 0)
	for rows.Next() {
		var p domain.Policy
		var condRaw, rulesRaw []byte
		if err := rows.Scan(&p.PolicyID, &p.Name, &p.ToolID, &p.CreatedBy, &p.AllowedScopes,
			&condRaw, &rulesRaw, &p.Priority, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, translatePGError(err)
		}
		if err := unmarshalPolicyJSON(condRaw, rulesRaw, &p); err != nil {
			return nil, domain.NewError(domain.KindInternal, "INVALID_POLICY", "failed to decode stored policy", err)
		}
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

func (s *PGStore) UpdatePolicy(ctx context.Context, p *domain.Policy) error {
	cond, rules, err := marshalPolicyJSON(p)
	if err != nil {
		return domain.NewError(domain.KindInvalidInput, "INVALID_POLICY", "failed to encode policy", err)
	}
	const q = `
		UPDATE policies
		SET name = $1, allowed_scopes = $2, conditions = $3, rules = $4, priority = $5, is_active = $6, updated_at = $7
		WHERE policy_id = $8`
	tag, execErr := s.db.Exec(ctx, q, p.Name, p.AllowedScopes, cond, rules, p.Priority, p.IsActive, p.UpdatedAt, p.PolicyID)
	if execErr != nil {
		return translatePGError(execErr)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PGStore) DeactivatePolicy(ctx context.Context, policyID string) error {
	const q = `UPDATE policies SET is_active = false, updated_at = now() WHERE policy_id = $1`
	tag, err := s.db.Exec(ctx, q, policyID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func marshalPolicyJSON(p *domain.Policy) ([]byte, []byte, error) {
	cond, err := json.Marshal(p.Conditions)
	if err != nil {
		return nil, nil, err
	}
	rules, err := json.Marshal(p.Rules)
	if err != nil {
		return nil, nil, err
	}
	return cond, rules, nil
}

func unmarshalPolicyJSON(condRaw, rulesRaw []byte, p *domain.Policy) error {
	if len(condRaw) > 0 {
		if err := json.Unmarshal(condRaw, &p.Conditions); err != nil {
			return err
		}
	}
	if len(rulesRaw) > 0 {
		if err := json.Unmarshal(rulesRaw, &p.Rules); err != nil {
			return err
		}
	}
	return nil
}
