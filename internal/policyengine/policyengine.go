package policyengine

import (
	"context"
	"time"

	"github.com/toolaccess/broker/internal/domain"
)

// Outcome is the PolicyEngine's decision.
type Outcome string

const (
	OutcomeAllow           Outcome = "ALLOW"
	OutcomeDeny            Outcome = "DENY"
	OutcomePendingApproval Outcome = "PENDING_APPROVAL"
)

// Decision is Evaluate's return value. It carries no side effects: every
// field is derived purely from the inputs and the current policy set, per
// spec.md §4.4's determinism requirement.
type Decision struct {
	Outcome            Outcome
	MatchedPolicyID    string
	GrantedScopes      []string
	CredentialLifetime int // seconds; only meaningful when Outcome == ALLOW
	ReasonCode         string

	// DailyRateLimitKey/DailyRateLimitMax are set when the matched policy
	// declares max_requests_per_day > 0. Evaluate only *peeks* at this
	// budget; AccessBroker performs the real increment once, after
	// provisional approval, keyed identically (spec.md §4.4 step 2).
	DailyRateLimitKey string
	DailyRateLimitMax int
}

// PolicyEngine is the central authorization decision function. It performs
// no persistence; AccessBroker is responsible for acting on the Decision.
type PolicyEngine interface {
	Evaluate(ctx context.Context, agent *domain.Agent, tool *domain.Tool, requestedScopes []string, reqCtx RequestContext) (Decision, error)
}

// RequestContext carries the ambient request attributes policy conditions
// can be evaluated against: the wall-clock time of the request and the
// caller's IP, plus the lifetime the caller asked for so Evaluate can cap
// it against policy and global maxima.
type RequestContext struct {
	Now               time.Time
	IP                string
	RequestedLifetime int
}
