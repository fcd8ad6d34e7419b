package domain

import "time"

// Conditions is the closed representation of Policy.conditions (spec.md
// §3). Unknown keys in the source JSON are dropped silently when the
// stored JSON is decoded, rather than carried as an open map through the
// engine; nothing logs the drop.
type Conditions struct {
	MaxRequestsPerDay int          `json:"max_requests_per_day,omitempty"`
	AllowedHours      *HourWindow  `json:"allowed_hours,omitempty"`
	AllowedDays       []int        `json:"allowed_days,omitempty"` // 0=Mon .. 6=Sun
	RequiredRoles     []string     `json:"required_roles,omitempty"`
	AnyRoles          []string     `json:"any_roles,omitempty"`
	IPCIDRs           []string     `json:"ip_cidrs,omitempty"`
}

// HourWindow is an inclusive-start/exclusive-end daily window in a
// declared IANA zone. If End <= Start the window wraps past midnight.
type HourWindow struct {
	Start string `json:"start"` // "HH:MM"
	End   string `json:"end"`   // "HH:MM"
	TZ    string `json:"tz"`    // IANA zone name
}

// Rules is the closed representation of Policy.rules (spec.md §3).
type Rules struct {
	RequireApproval          bool    `json:"require_approval,omitempty"`
	LogUsage                 *bool   `json:"log_usage,omitempty"` // nil == default true
	MaxCredentialLifetimeSec int     `json:"max_credential_lifetime_seconds,omitempty"`
	RateLimitKey             string  `json:"rate_limit_key,omitempty"` // agent | ip | agent_tool
}

// ShouldLogUsage defaults to true when unset, per spec.md §3.
func (r *Rules) ShouldLogUsage() bool {
	if r == nil || r.LogUsage == nil {
		return true
	}
	return *r.LogUsage
}

// Policy is a rule set deciding whether an agent may obtain scopes for a
// tool. ToolID == nil means the policy applies to every tool.
type Policy struct {
	PolicyID      string     `json:"policy_id"`
	Name          string     `json:"name"`
	ToolID        *string    `json:"tool_id"`
	CreatedBy     string     `json:"created_by"`
	AllowedScopes []string   `json:"allowed_scopes"`
	Conditions    Conditions `json:"conditions"`
	Rules         Rules      `json:"rules"`
	Priority      int        `json:"priority"`
	IsActive      bool       `json:"is_active"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ScopeSet returns the policy's allowed scopes as a set.
func (p *Policy) ScopeSet() map[string]bool {
	set := make(map[string]bool, len(p.AllowedScopes))
	for _, s := range p.AllowedScopes {
		set[s] = true
	}
	return set
}

// AppliesToTool reports whether the policy is global or targets toolID.
func (p *Policy) AppliesToTool(toolID string) bool {
	return p.ToolID == nil || *p.ToolID == toolID
}
