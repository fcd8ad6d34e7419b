package store

import (
	"context"
	"time"

	"github.com/toolaccess/broker/internal/domain"
)

// ToolFilter narrows ListTools.
type ToolFilter struct {
	OwnerID  string
	IsActive *bool
	Page     int
	PageSize int
}

// AgentFilter narrows ListAgents.
type AgentFilter struct {
	IsActive *bool
	Page     int
	PageSize int
}

// Store is the transactional repository abstraction every other
// component depends on. It owns exclusive write access to every entity;
// all other components hold only identifiers and fetch through Store.
type Store interface {
	CreateTool(ctx context.Context, t *domain.Tool) error
	GetTool(ctx context.Context, toolID string) (*domain.Tool, error)
	GetToolByName(ctx context.Context, name string) (*domain.Tool, error)
	UpdateTool(ctx context.Context, t *domain.Tool) error
	ListTools(ctx context.Context, filter ToolFilter) ([]*domain.Tool, error)
	DeactivateTool(ctx context.Context, toolID string) error

	CreateAgent(ctx context.Context, a *domain.Agent) error
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)
	UpdateAgent(ctx context.Context, a *domain.Agent) error
	ListAgents(ctx context.Context, filter AgentFilter) ([]*domain.Agent, error)
	DeactivateAgent(ctx context.Context, agentID string) error

	CreatePolicy(ctx context.Context, p *domain.Policy) error
	GetPolicy(ctx context.Context, policyID string) (*domain.Policy, error)
	UpdatePolicy(ctx context.Context, p *domain.Policy) error
	ListPoliciesForTool(ctx context.Context, toolID string) ([]*domain.Policy, error)
	ListPolicies(ctx context.Context) ([]*domain.Policy, error)
	DeactivatePolicy(ctx context.Context, policyID string) error

	CreateAccessRequest(ctx context.Context, r *domain.AccessRequest) error
	GetAccessRequest(ctx context.Context, requestID string) (*domain.AccessRequest, error)
	ResolveAccessRequest(ctx context.Context, requestID string, status domain.AccessRequestStatus, resolverID string, at time.Time) error
	ListPendingAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error)
	ExpireStaleAccessRequests(ctx context.Context, now time.Time) (int, error)

	InsertCredential(ctx context.Context, c *domain.Credential) error
	GetCredentialByFingerprint(ctx context.Context, fingerprint []byte) (*domain.Credential, error)
	GetCredential(ctx context.Context, credentialID string) (*domain.Credential, error)
	RevokeCredential(ctx context.Context, credentialID string, at time.Time) error
	DeleteExpiredCredentials(ctx context.Context, before time.Time) (int, error)

	AppendAccessLog(ctx context.Context, entry *domain.AccessLog) error
	// AppendAccessLogBatch is used only by the observability forwarder; the
	// authoritative path always goes through AppendAccessLog.
	AppendAccessLogBatch(ctx context.Context, entries []*domain.AccessLog) error
	QueryAccessLogs(ctx context.Context, filter domain.AccessLogFilter) ([]*domain.AccessLog, string, error)

	GetAdminUserByUsername(ctx context.Context, username string) (*domain.AdminUser, error)
	CreateAdminUser(ctx context.Context, u *domain.AdminUser) error

	InsertSigningKey(ctx context.Context, k *domain.SigningKey) error
	GetSigningKey(ctx context.Context, kid string) (*domain.SigningKey, error)
	GetActiveSigningKey(ctx context.Context) (*domain.SigningKey, error)
	ListSigningKeys(ctx context.Context) ([]*domain.SigningKey, error)
	ActivateSigningKey(ctx context.Context, kid string, activatedAt time.Time) error
	RetireSigningKey(ctx context.Context, kid string, retiredAt time.Time) error

	// WithTransaction groups a set of Store calls atomically: either all
	// commit or none do. fn receives a Store bound to the open
	// transaction; callers must use that Store, not the original, for
	// every call that must be part of the transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
}
