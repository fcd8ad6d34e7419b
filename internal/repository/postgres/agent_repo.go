package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

func (s *PGStore) CreateAgent(ctx context.Context, a *domain.Agent) error {
	const q = `
		INSERT INTO agents (agent_id, name, description, roles, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.Exec(ctx, q, a.AgentID, a.Name, a.Description, a.Roles, a.IsActive, a.CreatedAt)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	const q = `SELECT agent_id, name, description, roles, is_active, created_at FROM agents WHERE agent_id = $1`
	return s.scanAgent(s.db.QueryRow(ctx, q, agentID))
}

func (s *PGStore) scanAgent(row pgx.Row) (*domain.Agent, error) {
	var a domain.Agent
	if err := row.Scan(&a.AgentID, &a.Name, &a.Description, &a.Roles, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, translatePGError(err)
	}
	return &a, nil
}

func (s *PGStore) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	const q = `UPDATE agents SET name = $1, description = $2, roles = $3, is_active = $4 WHERE agent_id = $5`
	tag, err := s.db.Exec(ctx, q, a.Name, a.Description, a.Roles, a.IsActive, a.AgentID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *PGStore) ListAgents(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	q := `SELECT agent_id, name, description, roles, is_active, created_at FROM agents WHERE 1=1`
	args := []interface{}{}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		q += " AND is_active = $" + itoa(len(args))
	}
	q += " ORDER BY created_at ASC"
	if filter.PageSize > 0 {
		args = append(args, filter.PageSize)
		q += " LIMIT $" + itoa(len(args))
		if filter.Page > 0 {
			args = append(args, filter.Page*filter.PageSize)
			q += " OFFSET $" + itoa(len(args))
		}
	}

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, translatePGError(err)
	}
	defer rows.Close()

	agents := make([]*domain.Agent, 0)
	for rows.Next() {
		var a domain.Agent
		if err := rows.Scan(&a.AgentID, &a.Name, &a.Description, &a.Roles, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, translatePGError(err)
		}
		agents = append(agents, &a)
	}
	return agents, rows.Err()
}

// DeactivateAgent is a state transition, never a delete: historical
// AccessLog rows must keep resolving this agent_id (spec.md §3).
func (s *PGStore) DeactivateAgent(ctx context.Context, agentID string) error {
	const q = `UPDATE agents SET is_active = false WHERE agent_id = $1`
	tag, err := s.db.Exec(ctx, q, agentID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
