// Package storetest provides an in-memory store.Store double for table
// tests elsewhere in the module, the same role the teacher's tests would
// reach for a fake repository instead of a real Postgres connection.
package storetest

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// Memory implements store.Store entirely in memory, with no transactional
// isolation beyond a single mutex — good enough for exercising the
// call-sequencing every other package's tests care about, not for
// concurrency testing of Store itself.
type Memory struct {
	mu sync.Mutex

	tools        map[string]*domain.Tool
	agents       map[string]*domain.Agent
	policies     map[string]*domain.Policy
	requests     map[string]*domain.AccessRequest
	credentials  map[string]*domain.Credential
	logs         []*domain.AccessLog
	adminUsers   map[string]*domain.AdminUser
	signingKeys  map[string]*domain.SigningKey
}

func New() *Memory {
	return &Memory{
		tools:       make(map[string]*domain.Tool),
		agents:      make(map[string]*domain.Agent),
		policies:    make(map[string]*domain.Policy),
		requests:    make(map[string]*domain.AccessRequest),
		credentials: make(map[string]*domain.Credential),
		adminUsers:  make(map[string]*domain.AdminUser),
		signingKeys: make(map[string]*domain.SigningKey),
	}
}

func (m *Memory) CreateTool(ctx context.Context, t *domain.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tools[t.ToolID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *t
	m.tools[t.ToolID] = &cp
	return nil
}

func (m *Memory) GetTool(ctx context.Context, toolID string) (*domain.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tools[toolID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) GetToolByName(ctx context.Context, name string) (*domain.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tools {
		if t.NormalizedName() == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) UpdateTool(ctx context.Context, t *domain.Tool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tools[t.ToolID]
	if !ok {
		return domain.ErrNotFound
	}
	if !existing.UpdatedAt.Equal(t.UpdatedAt) {
		return domain.ErrConflictingUpdate
	}
	t.UpdatedAt = t.UpdatedAt.Add(time.Nanosecond)
	cp := *t
	m.tools[t.ToolID] = &cp
	return nil
}

func (m *Memory) ListTools(ctx context.Context, filter store.ToolFilter) ([]*domain.Tool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Tool
	for _, t := range m.tools {
		if filter.OwnerID != "" && t.OwnerID != filter.OwnerID {
			continue
		}
		if filter.IsActive != nil && t.IsActive != *filter.IsActive {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out, nil
}

func (m *Memory) DeactivateTool(ctx context.Context, toolID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tools[toolID]
	if !ok {
		return domain.ErrNotFound
	}
	t.IsActive = false
	return nil
}

func (m *Memory) CreateAgent(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.AgentID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *a
	m.agents[a.AgentID] = &cp
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) UpdateAgent(ctx context.Context, a *domain.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[a.AgentID]; !ok {
		return domain.ErrNotFound
	}
	cp := *a
	m.agents[a.AgentID] = &cp
	return nil
}

func (m *Memory) ListAgents(ctx context.Context, filter store.AgentFilter) ([]*domain.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Agent
	for _, a := range m.agents {
		if filter.IsActive != nil && a.IsActive != *filter.IsActive {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (m *Memory) DeactivateAgent(ctx context.Context, agentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[agentID]
	if !ok {
		return domain.ErrNotFound
	}
	a.IsActive = false
	return nil
}

func (m *Memory) CreatePolicy(ctx context.Context, p *domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.PolicyID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *p
	m.policies[p.PolicyID] = &cp
	return nil
}

func (m *Memory) GetPolicy(ctx context.Context, policyID string) (*domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[policyID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) UpdatePolicy(ctx context.Context, p *domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[p.PolicyID]; !ok {
		return domain.ErrNotFound
	}
	cp := *p
	m.policies[p.PolicyID] = &cp
	return nil
}

// ListPoliciesForTool returns active policies applying to toolID,
// ordered by priority descending, then created_at ascending, matching the
// Postgres store's ordering that PolicyEngine.Evaluate relies on.
func (m *Memory) ListPoliciesForTool(ctx context.Context, toolID string) ([]*domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Policy
	for _, p := range m.policies {
		if !p.IsActive || !p.AppliesToTool(toolID) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListPolicies(ctx context.Context) ([]*domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Policy
	for _, p := range m.policies {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

func (m *Memory) DeactivatePolicy(ctx context.Context, policyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[policyID]
	if !ok {
		return domain.ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (m *Memory) CreateAccessRequest(ctx context.Context, r *domain.AccessRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.requests[r.RequestID] = &cp
	return nil
}

func (m *Memory) GetAccessRequest(ctx context.Context, requestID string) (*domain.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ResolveAccessRequest(ctx context.Context, requestID string, status domain.AccessRequestStatus, resolverID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[requestID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.ResolverID = &resolverID
	r.ResolvedAt = &at
	return nil
}

func (m *Memory) ListPendingAccessRequests(ctx context.Context) ([]*domain.AccessRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AccessRequest
	for _, r := range m.requests {
		if r.Status != domain.RequestPending {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

func (m *Memory) ExpireStaleAccessRequests(ctx context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.requests {
		if r.IsExpired(now) {
			r.Status = domain.RequestExpired
			r.ResolvedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *Memory) InsertCredential(ctx context.Context, c *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.credentials[c.CredentialID] = &cp
	return nil
}

func (m *Memory) GetCredentialByFingerprint(ctx context.Context, fingerprint []byte) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credentials {
		if bytes.Equal(c.TokenFingerprint, fingerprint) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) GetCredential(ctx context.Context, credentialID string) (*domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[credentialID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) RevokeCredential(ctx context.Context, credentialID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.credentials[credentialID]
	if !ok {
		return domain.ErrNotFound
	}
	c.RevokedAt = &at
	return nil
}

func (m *Memory) DeleteExpiredCredentials(ctx context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.credentials {
		if c.ExpiresAt.Before(before) {
			delete(m.credentials, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) AppendAccessLog(ctx context.Context, entry *domain.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.logs = append(m.logs, &cp)
	return nil
}

func (m *Memory) AppendAccessLogBatch(ctx context.Context, entries []*domain.AccessLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		cp := *e
		m.logs = append(m.logs, &cp)
	}
	return nil
}

func (m *Memory) QueryAccessLogs(ctx context.Context, filter domain.AccessLogFilter) ([]*domain.AccessLog, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.AccessLog
	for _, l := range m.logs {
		if filter.AgentID != "" && l.AgentID != filter.AgentID {
			continue
		}
		if filter.ToolID != "" && l.ToolID != filter.ToolID {
			continue
		}
		if filter.Event != "" && l.Event != filter.Event {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, "", nil
}

func (m *Memory) GetAdminUserByUsername(ctx context.Context, username string) (*domain.AdminUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.adminUsers[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) CreateAdminUser(ctx context.Context, u *domain.AdminUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.adminUsers[u.Username]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *u
	m.adminUsers[u.Username] = &cp
	return nil
}

func (m *Memory) InsertSigningKey(ctx context.Context, k *domain.SigningKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.signingKeys[k.KID] = &cp
	return nil
}

func (m *Memory) GetSigningKey(ctx context.Context, kid string) (*domain.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.signingKeys[kid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *k
	return &cp, nil
}

func (m *Memory) GetActiveSigningKey(ctx context.Context) (*domain.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.signingKeys {
		if k.IsActive {
			cp := *k
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) ListSigningKeys(ctx context.Context) ([]*domain.SigningKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.SigningKey
	for _, k := range m.signingKeys {
		cp := *k
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].KID < out[j].KID })
	return out, nil
}

func (m *Memory) ActivateSigningKey(ctx context.Context, kid string, activatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.signingKeys[kid]
	if !ok {
		return domain.ErrNotFound
	}
	for _, other := range m.signingKeys {
		other.IsActive = false
	}
	k.IsActive = true
	return nil
}

func (m *Memory) RetireSigningKey(ctx context.Context, kid string, retiredAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.signingKeys[kid]
	if !ok {
		return domain.ErrNotFound
	}
	k.IsActive = false
	k.RetiredAt = &retiredAt
	return nil
}

// WithTransaction runs fn against the same Memory store — there is no
// real isolation to simulate, only the call-signature tests depend on.
func (m *Memory) WithTransaction(ctx context.Context, fn func(ctx context.Context, txStore store.Store) error) error {
	return fn(ctx, m)
}
