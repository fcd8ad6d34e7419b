package domain

import (
	"strings"
	"time"
)

// Tool is a registered third-party capability with a declared universe of
// scopes. allowed_scopes is authoritative: any scope a policy grants that
// the tool does not advertise is ignored by the PolicyEngine.
type Tool struct {
	ToolID        string    `json:"tool_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Version       string    `json:"version"`
	OwnerID       string    `json:"owner_id"`
	AllowedScopes []string  `json:"allowed_scopes"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizedName returns the case-folded name used for the tool registry's
// uniqueness constraint.
func (t *Tool) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(t.Name))
}

// ScopeSet returns the tool's advertised scopes as a set for fast
// intersection during policy evaluation.
func (t *Tool) ScopeSet() map[string]bool {
	set := make(map[string]bool, len(t.AllowedScopes))
	for _, s := range t.AllowedScopes {
		set[s] = true
	}
	return set
}
