package domain

import "time"

type AccessRequestStatus string

const (
	RequestPending  AccessRequestStatus = "PENDING"
	RequestApproved AccessRequestStatus = "APPROVED"
	RequestRejected AccessRequestStatus = "REJECTED"
	RequestExpired  AccessRequestStatus = "EXPIRED"
)

// PendingRequestTTL is how long an unresolved AccessRequest survives
// before the sweeper marks it EXPIRED (spec.md §3).
const PendingRequestTTL = 7 * 24 * time.Hour

// AccessRequest is the human-in-the-loop artifact created when a matching
// policy demands approval (spec.md §4.4 step 4).
type AccessRequest struct {
	RequestID       string              `json:"request_id"`
	AgentID         string              `json:"agent_id"`
	ToolID          string              `json:"tool_id"`
	RequestedScopes []string            `json:"requested_scopes"`
	Justification   string              `json:"justification,omitempty"`
	Status          AccessRequestStatus `json:"status"`
	MatchedPolicyID *string             `json:"matched_policy_id,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	ResolvedAt      *time.Time          `json:"resolved_at,omitempty"`
	ResolverID      *string             `json:"resolver_id,omitempty"`
}

// IsExpired reports whether the request has passed its pending TTL as of
// now, regardless of the persisted status (the sweeper uses this to find
// rows to mark EXPIRED).
func (r *AccessRequest) IsExpired(now time.Time) bool {
	return r.Status == RequestPending && now.Sub(r.CreatedAt) > PendingRequestTTL
}
