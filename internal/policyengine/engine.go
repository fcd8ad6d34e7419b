package policyengine

import (
	"context"
	"net"

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/ratelimiter"
	"github.com/toolaccess/broker/internal/store"
)

// Engine is the production PolicyEngine: it loads candidate policies
// through Store and walks them in priority order, generalizing the
// teacher's MemoEnforcer default-deny lookup (agent-specific key, then
// wildcard key, then deny) into the richer condition language spec.md §9
// describes. Unlike MemoEnforcer it holds no in-process cache — every
// Evaluate call reads through Store directly; the Store calls are not
// routed through the resilience wrapper.
type Engine struct {
	store         store.Store
	rateLimiter   ratelimiter.RateLimiter
	globalMaxLife int
	logger        *zap.Logger
}

func New(s store.Store, rl ratelimiter.RateLimiter, globalMaxLifetimeSeconds int, logger *zap.Logger) *Engine {
	return &Engine{
		store:         s,
		rateLimiter:   rl,
		globalMaxLife: globalMaxLifetimeSeconds,
		logger:        logger.Named("policyengine"),
	}
}

func (e *Engine) Evaluate(ctx context.Context, agent *domain.Agent, tool *domain.Tool, requestedScopes []string, reqCtx RequestContext) (Decision, error) {
	policies, err := e.store.ListPoliciesForTool(ctx, tool.ToolID)
	if err != nil {
		if domain.IsKind(err, domain.KindUnavailable) {
			return Decision{Outcome: OutcomeDeny, ReasonCode: "STORE_UNAVAILABLE"}, nil
		}
		return Decision{}, err
	}

	for _, p := range policies {
		if !p.IsActive || !p.AppliesToTool(tool.ToolID) {
			continue
		}
		if !e.conditionsSatisfied(ctx, p, agent, tool, reqCtx) {
			continue
		}

		granted := intersectThree(p.AllowedScopes, tool.AllowedScopes, requestedScopes)
		if len(granted) == 0 {
			continue
		}

		var dailyKey string
		var dailyMax int
		if p.Conditions.MaxRequestsPerDay > 0 {
			dailyKey = dailyRateLimitKey(agent.AgentID, tool.ToolID, p.PolicyID)
			dailyMax = p.Conditions.MaxRequestsPerDay
		}

		if p.Rules.RequireApproval {
			return Decision{
				Outcome:           OutcomePendingApproval,
				MatchedPolicyID:   p.PolicyID,
				GrantedScopes:     granted,
				ReasonCode:        "APPROVAL_REQUIRED",
				DailyRateLimitKey: dailyKey,
				DailyRateLimitMax: dailyMax,
			}, nil
		}

		lifetime := reqCtx.RequestedLifetime
		if p.Rules.MaxCredentialLifetimeSec > 0 && p.Rules.MaxCredentialLifetimeSec < lifetime {
			lifetime = p.Rules.MaxCredentialLifetimeSec
		}
		if e.globalMaxLife > 0 && e.globalMaxLife < lifetime {
			lifetime = e.globalMaxLife
		}

		return Decision{
			Outcome:            OutcomeAllow,
			MatchedPolicyID:    p.PolicyID,
			GrantedScopes:      granted,
			CredentialLifetime: lifetime,
			ReasonCode:         "POLICY_MATCH",
			DailyRateLimitKey:  dailyKey,
			DailyRateLimitMax:  dailyMax,
		}, nil
	}

	return Decision{Outcome: OutcomeDeny, ReasonCode: "NO_POLICY_MATCH"}, nil
}

// conditionsSatisfied evaluates every declared axis of policy.Conditions.
// A nil/zero-value field on an axis means "no constraint" — spec.md §4.4
// step 2's "missing keys are no constraint" rule.
func (e *Engine) conditionsSatisfied(ctx context.Context, p *domain.Policy, agent *domain.Agent, tool *domain.Tool, reqCtx RequestContext) bool {
	c := p.Conditions

	if len(c.RequiredRoles) > 0 && !agent.HasAllRoles(c.RequiredRoles) {
		return false
	}
	if len(c.AnyRoles) > 0 && !agent.HasAnyRole(c.AnyRoles) {
		return false
	}
	if len(c.IPCIDRs) > 0 && !ipMatchesAny(reqCtx.IP, c.IPCIDRs) {
		return false
	}
	if c.AllowedHours != nil && !hourWindowContains(*c.AllowedHours, reqCtx.Now) {
		return false
	}
	if len(c.AllowedDays) > 0 && !dayAllowed(c.AllowedDays, reqCtx.Now, c.AllowedHours) {
		return false
	}
	if c.MaxRequestsPerDay > 0 {
		key := dailyRateLimitKey(agent.AgentID, tool.ToolID, p.PolicyID)
		decision, err := e.rateLimiter.Peek(ctx, key, c.MaxRequestsPerDay, 86400)
		if err != nil {
			e.logger.Warn("rate limiter peek failed during condition check", zap.Error(err))
			return false
		}
		if !decision.Allowed {
			return false
		}
	}

	return true
}

func intersectThree(a, b, c []string) []string {
	setA := toSet(a)
	setB := toSet(b)
	result := make([]string, 0, len(c))
	seen := make(map[string]bool)
	for _, s := range c {
		if setA[s] && setB[s] && !seen[s] {
			result = append(result, s)
			seen[s] = true
		}
	}
	return result
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func ipMatchesAny(ip string, cidrs []string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, cidrStr := range cidrs {
		_, network, err := net.ParseCIDR(cidrStr)
		if err != nil {
			continue
		}
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

func dailyRateLimitKey(agentID, toolID, policyID string) string {
	return "maxreqday:" + agentID + ":" + toolID + ":" + policyID
}
