package postgres

/*
access_request_repo.go backs the human-in-the-loop lifecycle: a Policy
with rules.require_approval creates a PENDING row here instead of a
credential (spec.md §4.4 step 4); an operator later resolves it through
the Admin API.
*/

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/toolaccess/broker/internal/domain"
)

func (s *PGStore) CreateAccessRequest(ctx context.Context, r *domain.AccessRequest) error {
	const q = `
		INSERT INTO access_requests (request_id, agent_id, tool_id, requested_scopes, justification, status, matched_policy_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.Exec(ctx, q, r.RequestID, r.AgentID, r.ToolID, r.RequestedScopes, r.Justification,
		r.Status, r.MatchedPolicyID, r.CreatedAt)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) GetAccessRequest(ctx context.Context, requestID string) (*domain.AccessRequest, error) {
	const q = `
		SELECT request_id, agent_id, tool_id, requested_scopes, justification, status, matched_policy_id, created_at, resolved_at, resolver_id
		FROM access_requests WHERE request_id = $1`
	return s.scanAccessRequest(s.db.QueryRow(ctx, q, requestID))
}

func (s *PGStore) scanAccessRequest(row pgx.Row) (*domain.AccessRequest, error) {
	var r domain.AccessRequest
	err := row.Scan(&r.RequestID, &r.AgentID, &r.ToolID, &r.RequestedScopes, &r.Justification,
		&r.Status, &r.MatchedPolicyID, &r.CreatedAt, &r.ResolvedAt, &r.ResolverID)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &r, nil
}

// ResolveAccessRequest transitions PENDING -> APPROVED/REJECTED, guarded
// by WHERE status = 'PENDING' so a double decision cannot occur.
func (s *PGStore) ResolveAccessRequest(ctx context.Context, requestID string, status domain.AccessRequestStatus, resolverID string, at time.Time) error {
	const q = `
		UPDATE access_requests
		SET status = $1, resolved_at = $2, resolver_id = $3
		WHERE request_id = $4 AND status = 'PENDING'`
	tag, err := s.db.Exec(ctx, q, status, at, resolverID, requestID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.KindConflict, "ALREADY_RESOLVED", "access request not found or already resolved", nil)
	}
	return nil
}

func (s *PGStore) ListPendingAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error) {
	const q = `
		SELECT request_id, agent_id, tool_id, requested_scopes, justification, status, matched_policy_id, created_at, resolved_at, resolver_id
		FROM access_requests WHERE status = 'PENDING' ORDER BY created_at ASC LIMIT 200`
	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return nil, translatePGError(err)
	}
	defer rows.Close()

	reqs := make([]*domain.AccessRequest, 0)
	for rows.Next() {
		var r domain.AccessRequest
		if err := rows.Scan(&r.RequestID, &r.AgentID, &r.ToolID, &r.RequestedScopes, &r.Justification,
			&r.Status, &r.MatchedPolicyID, &r.CreatedAt, &r.ResolvedAt, &r.ResolverID); err != nil {
			return nil, translatePGError(err)
		}
		reqs = append(reqs, &r)
	}
	return reqs, rows.Err()
}

// ExpireStaleAccessRequests marks PENDING rows older than
// domain.PendingRequestTTL as EXPIRED, run periodically by the same
// sweeper goroutine shape as the credential Cleanup sweep.
func (s *PGStore) ExpireStaleAccessRequests(ctx context.Context, now time.Time) (int, error) {
	const q = `
		UPDATE access_requests
		SET status = 'EXPIRED', resolved_at = $1
		WHERE status = 'PENDING' AND created_at < $2`
	tag, err := s.db.Exec(ctx, q, now, now.Add(-domain.PendingRequestTTL))
	if err != nil {
		return 0, translatePGError(err)
	}
	return int(tag.RowsAffected()), nil
}
