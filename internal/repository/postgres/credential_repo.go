package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/toolaccess/broker/internal/domain"
)

func (s *PGStore) InsertCredential(ctx context.Context, c *domain.Credential) error {
	const q = `
		INSERT INTO credentials (credential_id, agent_id, tool_id, granted_scopes, fingerprint, issued_at, expires_at, revoked_at, source_policy_id, source_request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.Exec(ctx, q, c.CredentialID, c.AgentID, c.ToolID, c.GrantedScopes, c.TokenFingerprint,
		c.IssuedAt, c.ExpiresAt, c.RevokedAt, c.SourcePolicyID, c.SourceRequestID)
	if err != nil {
		return translatePGError(err)
	}
	return nil
}

func (s *PGStore) GetCredentialByFingerprint(ctx context.Context, fingerprint []byte) (*domain.Credential, error) {
	const q = `
		SELECT credential_id, agent_id, tool_id, granted_scopes, fingerprint, issued_at, expires_at, revoked_at, source_policy_id, source_request_id
		FROM credentials WHERE fingerprint = $1`
	return s.scanCredential(s.db.QueryRow(ctx, q, fingerprint))
}

func (s *PGStore) GetCredential(ctx context.Context, credentialID string) (*domain.Credential, error) {
	const q = `
		SELECT credential_id, agent_id, tool_id, granted_scopes, fingerprint, issued_at, expires_at, revoked_at, source_policy_id, source_request_id
		FROM credentials WHERE credential_id = $1`
	return s.scanCredential(s.db.QueryRow(ctx, q, credentialID))
}

func (s *PGStore) scanCredential(row pgx.Row) (*domain.Credential, error) {
	var c domain.Credential
	err := row.Scan(&c.CredentialID, &c.AgentID, &c.ToolID, &c.GrantedScopes, &c.TokenFingerprint,
		&c.IssuedAt, &c.ExpiresAt, &c.RevokedAt, &c.SourcePolicyID, &c.SourceRequestID)
	if err != nil {
		return nil, translatePGError(err)
	}
	return &c, nil
}

// RevokeCredential is idempotent: revoking an already-revoked credential
// is not an error, it simply leaves the original revoked_at untouched.
func (s *PGStore) RevokeCredential(ctx context.Context, credentialID string, at time.Time) error {
	const q = `
		UPDATE credentials SET revoked_at = $1
		WHERE credential_id = $2 AND revoked_at IS NULL`
	tag, err := s.db.Exec(ctx, q, at, credentialID)
	if err != nil {
		return translatePGError(err)
	}
	if tag.RowsAffected() == 0 {
		// Either already revoked (idempotent no-op) or the id doesn't
		// exist; the caller distinguishes by a prior GetCredential.
		return nil
	}
	return nil
}

// DeleteExpiredCredentials removes rows whose expiry is older than the
// retention window (spec.md §4.5 Cleanup). AccessLog rows referencing the
// credential_id are untouched — logs are retained independently.
func (s *PGStore) DeleteExpiredCredentials(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM credentials WHERE expires_at < $1`
	tag, err := s.db.Exec(ctx, q, before)
	if err != nil {
		return 0, translatePGError(err)
	}
	return int(tag.RowsAffected()), nil
}
