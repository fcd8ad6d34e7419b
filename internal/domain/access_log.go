package domain

import "time"

type AccessEvent string

const (
	EventRequestEvaluated   AccessEvent = "REQUEST_EVALUATED"
	EventCredentialIssued   AccessEvent = "CREDENTIAL_ISSUED"
	EventCredentialValidated AccessEvent = "CREDENTIAL_VALIDATED"
	EventCredentialRevoked  AccessEvent = "CREDENTIAL_REVOKED"
	EventRateLimited        AccessEvent = "RATE_LIMITED"
)

type DecisionOutcome string

const (
	DecisionAllow           DecisionOutcome = "ALLOW"
	DecisionDeny            DecisionOutcome = "DENY"
	DecisionPendingApproval DecisionOutcome = "PENDING_APPROVAL"
)

// AccessLog is one append-only audit row. No component ever updates or
// deletes an AccessLog row once written.
type AccessLog struct {
	LogID           string          `json:"log_id"`
	RequestID       string          `json:"request_id"`
	Timestamp       time.Time       `json:"timestamp"`
	AgentID         string          `json:"agent_id"`
	ToolID          string          `json:"tool_id"`
	PolicyID        *string         `json:"policy_id,omitempty"`
	CredentialID    *string         `json:"credential_id,omitempty"`
	Event           AccessEvent     `json:"event"`
	Decision        DecisionOutcome `json:"decision"`
	ReasonCode      string          `json:"reason_code"`
	RequestIP       string          `json:"request_ip,omitempty"`
	UserAgent       string          `json:"user_agent,omitempty"`
	RequestedScopes []string        `json:"requested_scopes,omitempty"`
	GrantedScopes   []string        `json:"granted_scopes,omitempty"`
}

// AccessLogFilter narrows a paginated query over the access log (spec.md
// §6, GET /access/logs).
type AccessLogFilter struct {
	AgentID  string
	ToolID   string
	Event    AccessEvent
	Decision DecisionOutcome
	Start    *time.Time
	End      *time.Time
	Cursor   string
	PageSize int
}
