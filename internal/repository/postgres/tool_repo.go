package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

func (s *PGStore) CreateTool(ctx context.Context, t *domain.Tool) error {
	existing, err := s.GetToolByName(ctx, t.Name)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return err
	}
	if existing != nil && existing.IsActive {
		return domain.NewError(domain.KindConflict, "ALREADY_EXISTS",
			"Tool with name '"+t.Name+"' already exists", nil)
	}

	const q = `
		INSERT INTO tools (tool_id, name, description, version, owner_id, allowed_scopes, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = s.db.Exec(ctx, q,
		t.ToolID, t.Name, t.Description, t.Version, t.OwnerID, t.AllowedScopes, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) GetTool(ctx context.Context, toolID string) (*domain.Tool, error) {
	const q = `
		SELECT tool_id, name, description, version, owner_id, allowed_scopes, is_active, created_at, updated_at
		FROM tools WHERE tool_id = $1`
	return s.scanTool(s.db.QueryRow(ctx, q, toolID))
}

func (s *PGStore) GetToolByName(ctx context.Context, name string) (*domain.Tool, error) {
	const q = `
		SELECT tool_id, name, description, version, owner_id, allowed_scopes, is_active, created_at, updated_at
		FROM tools WHERE lower(name) = lower($1) ORDER BY is_active DESC LIMIT 1`
	return s.scanTool(s.db.QueryRow(ctx, q, strings.TrimSpace(name)))
}

func (s *PGStore) scanTool(row pgx.Row) (*domain.Tool, error) {
	var t domain.Tool
	err := row.Scan(&t.ToolID, &t.Name, &t.Description, &t.Version, &t.OwnerID,
		&t.AllowedScopes, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &t, nil
}

// UpdateTool uses optimistic locking on updated_at: t.UpdatedAt must be
// the value the caller last read, used here only in the WHERE clause. The
// new updated_at is always generated server-side, so two sequential
// updates from the same caller never collide with each other.
func (s *PGStore) UpdateTool(ctx context.Context, t *domain.Tool) error {
	const q = `
		UPDATE tools
		SET description = $1, version = $2, allowed_scopes = $3, is_active = $4, updated_at = now()
		WHERE tool_id = $5 AND updated_at = $6
		RETURNING updated_at`
	prevUpdatedAt := t.UpdatedAt
	row := s.db.QueryRow(ctx, q, t.Description, t.Version, t.AllowedScopes, t.IsActive, t.ToolID, prevUpdatedAt)
	var newUpdatedAt time.Time
	if err := row.Scan(&newUpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.ErrConflictingUpdate
		}
		return translatePGError(err)
	}
	t.UpdatedAt = newUpdatedAt
	return nil
}

func (s *PGStore) ListTools(ctx context.Context, filter store.ToolFilter) ([]*domain.Tool, error) {
	q := `
		SELECT tool_id, name, description, version, owner_id, allowed_scopes, is_active, created_at, updated_at
		FROM tools WHERE 1=1`
	args := []interface{}{}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		q += " AND owner_id = $" + itoa(len(args))
	}
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

	tools := make([]*domain.Tool, 0)
	for rows.Next() {
		var t domain.Tool
		if err := rows.Scan(&t.ToolID, &t.Name, &t.Description, &t.Version, &t.OwnerID,
			&t.AllowedScopes, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, translatePGError(err)
		}
		tools = append(tools, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, translatePGError(err)
	}
	return tools, nil
}

func (s *PGStore) DeactivateTool(ctx context.Context, toolID string) error {
	const q = `UPDATE tools SET is_active = false, updated_at = now() WHERE tool_id = $1`
	tag, err := s.db.Exec(ctx, q, toolID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
