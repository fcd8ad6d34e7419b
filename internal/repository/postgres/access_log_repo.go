package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/toolaccess/broker/internal/domain"
)

// AppendAccessLog is strictly append: no UPDATE or DELETE path exists for
// this table anywhere in the codebase.
func (s *PGStore) AppendAccessLog(ctx context.Context, e *domain.AccessLog) error {
	const q = `
		INSERT INTO access_logs (log_id, request_id, timestamp, agent_id, tool_id, policy_id, credential_id, event, decision, reason_code, request_ip, user_agent, requested_scopes, granted_scopes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := s.db.Exec(ctx, q, e.LogID, e.RequestID, e.Timestamp, e.AgentID, e.ToolID, e.PolicyID, e.CredentialID,
		e.Event, e.Decision, e.ReasonCode, e.RequestIP, e.UserAgent, e.RequestedScopes, e.GrantedScopes)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

// AppendAccessLogBatch bulk-inserts several rows in one round trip,
// generalizing the teacher's audit_repo.WriteBatch for the
// best-effort observability forwarder (internal/audit/forwarder.go),
// which never touches the authoritative synchronous path above.
func (s *PGStore) AppendAccessLogBatch(ctx context.Context, entries []*domain.AccessLog) error {
	if len(entries) == 0 {
		return nil
	}
	const numFields = 14
	placeholders := make([]string, 0, len(entries))
	vals := make([]interface{}, 0, len(entries)*numFields)

	for i, e := range entries {
		p := i * numFields
		ph := make([]string, numFields)
		for j := 0; j < numFields; j++ {
			ph[j] = fmt.Sprintf("$%d", p+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		vals = append(vals, e.LogID, e.RequestID, e.Timestamp, e.AgentID, e.ToolID, e.PolicyID, e.CredentialID,
			e.Event, e.Decision, e.ReasonCode, e.RequestIP, e.UserAgent, e.RequestedScopes, e.GrantedScopes)
	}

	q := fmt.Sprintf(
		`INSERT INTO access_logs (log_id, request_id, timestamp, agent_id, tool_id, policy_id, credential_id, event, decision, reason_code, request_ip, user_agent, requested_scopes, granted_scopes) VALUES %s ON CONFLICT (log_id) DO NOTHING`,
		strings.Join(placeholders, ","),
	)
	_, err := s.db.Exec(ctx, q, vals...)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) QueryAccessLogs(ctx context.Context, filter domain.AccessLogFilter) ([]*domain.AccessLog, string, error) {
	q := `
		SELECT log_id, request_id, timestamp, agent_id, tool_id, policy_id, credential_id, event, decision, reason_code, request_ip, user_agent, requested_scopes, granted_scopes
		FROM access_logs WHERE 1=1`
	args := []interface{}{}

	if filter.AgentID != "" {
		args = append(args, filter.AgentID)
		q += " AND agent_id = $" + itoa(len(args))
	}
	if filter.ToolID != "" {
		args = append(args, filter.ToolID)
		q += " AND tool_id = $" + itoa(len(args))
	}
	if filter.Event != "" {
		args = append(args, filter.Event)
		q += " AND event = $" + itoa(len(args))
	}
	if filter.Decision != "" {
		args = append(args, filter.Decision)
		q += " AND decision = $" + itoa(len(args))
	}
	if filter.Start != nil {
		args = append(args, *filter.Start)
		q += " AND timestamp >= $" + itoa(len(args))
	}
	if filter.End != nil {
		args = append(args, *filter.End)
		q += " AND timestamp < $" + itoa(len(args))
	}
	if filter.Cursor != "" {
		args = append(args, filter.Cursor)
		q += " AND log_id > $" + itoa(len(args))
	}

	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 500 {
		pageSize = 100
	}
	args = append(args, pageSize+1)
	q += " ORDER BY log_id ASC LIMIT $" + itoa(len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, "", translatePGError(err)
	}
	defer rows.Close()

	logs := make([]*domain.AccessLog, 0, pageSize)
	for rows.Next() {
		var e domain.AccessLog
		if err := rows.Scan(&e.LogID, &e.RequestID, &e.Timestamp, &e.AgentID, &e.ToolID, &e.PolicyID, &e.CredentialID,
			&e.Event, &e.Decision, &e.ReasonCode, &e.RequestIP, &e.UserAgent, &e.RequestedScopes, &e.GrantedScopes); err != nil {
			return nil, "", translatePGError(err)
		}
		logs = append(logs, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, "", translatePGError(err)
	}

	nextCursor := ""
	if len(logs) > pageSize {
		nextCursor = logs[pageSize].LogID
		logs = logs[:pageSize]
	}
	return logs, nextCursor, nil
}
