package broker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/audit"
	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/infra"
	"github.com/toolaccess/broker/internal/metrics"
	"github.com/toolaccess/broker/internal/policyengine"
	"github.com/toolaccess/broker/internal/ratelimiter"
	"github.com/toolaccess/broker/internal/store"
)

// RequestAccessInput is the broker's RequestAccess parameters.
type RequestAccessInput struct {
	AgentID           string
	ToolID            string
	RequestedScopes   []string
	RequestedLifetime int
	RequestIP         string
	UserAgent         string
	IdempotencyKey    string
}

// RequestAccessResult is what the HTTP layer renders back to the caller.
type RequestAccessResult struct {
	Outcome      policyengine.Outcome
	Token        string
	CredentialID string
	ExpiresAt    time.Time
	RequestID    string
	ReasonCode   string
	RetryAfter   time.Duration
}

// AccessBroker orchestrates the hot path: generalizing the teacher's
// UAGCore.ProcessAction (kill-switch/quarantine/sandbox branches, metrics
// deferred around a traced request, a single audit.Log at the end) into
// RateLimiter → PolicyEngine → CredentialVendor → AuditLogger, in that
// order, per spec.md §4.7.
type AccessBroker struct {
	store       store.Store
	rateLimiter ratelimiter.RateLimiter
	policy      policyengine.PolicyEngine
	credentials *credential.Vendor
	audit       audit.Logger
	clock       clock.Clock
	idgen       clock.IDGen
	metrics     *metrics.Metrics
	rdb         *redis.Client
	logger      *zap.Logger

	defaultRateLimit   int
	defaultRateWindow  int
	defaultLifetime    int
}

type Config struct {
	DefaultRateLimit  int
	DefaultRateWindow int
	DefaultLifetime   int
}

func New(
	s store.Store,
	rl ratelimiter.RateLimiter,
	pe policyengine.PolicyEngine,
	cv *credential.Vendor,
	al audit.Logger,
	c clock.Clock,
	idgen clock.IDGen,
	m *metrics.Metrics,
	rdb *redis.Client,
	cfg Config,
	logger *zap.Logger,
) *AccessBroker {
	return &AccessBroker{
		store: s, rateLimiter: rl, policy: pe, credentials: cv, audit: al,
		clock: c, idgen: idgen, metrics: m, rdb: rdb,
		defaultRateLimit: cfg.DefaultRateLimit, defaultRateWindow: cfg.DefaultRateWindow,
		defaultLifetime: cfg.DefaultLifetime,
		logger:          logger.Named("access_broker"),
	}
}

// RequestAccess implements spec.md §4.7 steps 1-6, with the idempotency
// cache and cancellation handling from §5/§4.7's surrounding text.
func (b *AccessBroker) RequestAccess(ctx context.Context, in RequestAccessInput) (RequestAccessResult, error) {
	start := b.clock.Now()
	requestID := b.idgen.NewID()
	defer func() {
		b.metrics.RequestsTotal.WithLabelValues(in.ToolID).Inc()
	}()

	if in.IdempotencyKey != "" {
		if cached, ok := b.lookupIdempotent(ctx, in.IdempotencyKey); ok {
			return cached, nil
		}
	}

	tool, err := b.store.GetTool(ctx, in.ToolID)
	if err != nil || !tool.IsActive {
		return b.denyUnknownTarget(ctx, requestID, in, start)
	}
	agent, err := b.store.GetAgent(ctx, in.AgentID)
	if err != nil || !agent.IsActive {
		return b.denyUnknownTarget(ctx, requestID, in, start)
	}

	identity := in.AgentID
	if identity == "" {
		identity = in.RequestIP
	}
	rlDecision, err := b.rateLimiter.Check(ctx, identity, b.defaultRateLimit, b.defaultRateWindow)
	if err != nil {
		return RequestAccessResult{}, err
	}
	if !rlDecision.Allowed {
		retryAfter := time.Until(time.Unix(rlDecision.ResetAt, 0))
		b.logBestEffort(ctx, requestID, in, domain.EventRateLimited, domain.DecisionDeny, "RATE_LIMITED", nil, nil, nil)
		b.observe(in.ToolID, "DENY", start)
		return RequestAccessResult{RequestID: requestID, Outcome: policyengine.OutcomeDeny, ReasonCode: "RATE_LIMITED", RetryAfter: retryAfter}, nil
	}

	lifetime := in.RequestedLifetime
	if lifetime <= 0 {
		lifetime = b.defaultLifetime
	}
	decision, err := b.policy.Evaluate(ctx, agent, tool, in.RequestedScopes, policyengine.RequestContext{
		Now: start, IP: in.RequestIP, RequestedLifetime: lifetime,
	})
	if err != nil {
		return RequestAccessResult{}, err
	}

	b.metrics.DecisionsTotal.WithLabelValues(string(decision.Outcome)).Inc()

	if ctx.Err() != nil {
		b.logBestEffort(ctx, requestID, in, domain.EventRequestEvaluated, domain.DecisionDeny, "CANCELLED", nil, nil, nil)
		b.observe(in.ToolID, "DENY", start)
		return RequestAccessResult{RequestID: requestID, Outcome: policyengine.OutcomeDeny, ReasonCode: "CANCELLED"}, ctx.Err()
	}

	var result RequestAccessResult
	switch decision.Outcome {
	case policyengine.OutcomeAllow:
		result, err = b.handleAllow(ctx, requestID, in, decision, lifetime)
	case policyengine.OutcomePendingApproval:
		result, err = b.handlePending(ctx, requestID, in, decision)
	default:
		result, err = b.handleDeny(ctx, requestID, in, decision)
	}
	if err != nil {
		return RequestAccessResult{}, err
	}

	b.observe(in.ToolID, string(result.Outcome), start)
	if in.IdempotencyKey != "" {
		b.storeIdempotent(ctx, in.IdempotencyKey, result)
	}
	return result, nil
}

func (b *AccessBroker) handleAllow(ctx context.Context, requestID string, in RequestAccessInput, decision policyengine.Decision, lifetime int) (RequestAccessResult, error) {
	credID, token, expiresAt, err := b.credentials.Issue(ctx, in.AgentID, in.ToolID, decision.GrantedScopes, lifetime, decision.MatchedPolicyID, &requestID)
	if err != nil {
		return RequestAccessResult{}, err
	}
	b.bumpDailyRateLimit(ctx, decision)

	policyID := decision.MatchedPolicyID
	credIDCopy := credID
	b.logBestEffort(ctx, requestID, in, domain.EventRequestEvaluated, domain.DecisionAllow, decision.ReasonCode, &policyID, &credIDCopy, decision.GrantedScopes)

	return RequestAccessResult{
		Outcome:      policyengine.OutcomeAllow,
		Token:        token,
		CredentialID: credID,
		ExpiresAt:    expiresAt,
		RequestID:    requestID,
		ReasonCode:   decision.ReasonCode,
	}, nil
}

func (b *AccessBroker) handlePending(ctx context.Context, requestID string, in RequestAccessInput, decision policyengine.Decision) (RequestAccessResult, error) {
	now := b.clock.Now()
	policyID := decision.MatchedPolicyID
	req := &domain.AccessRequest{
		RequestID:       requestID,
		AgentID:         in.AgentID,
		ToolID:          in.ToolID,
		RequestedScopes: in.RequestedScopes,
		Status:          domain.RequestPending,
		MatchedPolicyID: &policyID,
		CreatedAt:       now,
	}
	if err := b.store.CreateAccessRequest(ctx, req); err != nil {
		return RequestAccessResult{}, err
	}
	b.bumpDailyRateLimit(ctx, decision)

	b.logBestEffort(ctx, requestID, in, domain.EventRequestEvaluated, domain.DecisionPendingApproval, decision.ReasonCode, &policyID, nil, decision.GrantedScopes)

	return RequestAccessResult{
		Outcome:    policyengine.OutcomePendingApproval,
		RequestID:  requestID,
		ReasonCode: decision.ReasonCode,
	}, nil
}

func (b *AccessBroker) handleDeny(ctx context.Context, requestID string, in RequestAccessInput, decision policyengine.Decision) (RequestAccessResult, error) {
	b.logBestEffort(ctx, requestID, in, domain.EventRequestEvaluated, domain.DecisionDeny, decision.ReasonCode, nil, nil, nil)
	return RequestAccessResult{RequestID: requestID, Outcome: policyengine.OutcomeDeny, ReasonCode: decision.ReasonCode}, nil
}

func (b *AccessBroker) denyUnknownTarget(ctx context.Context, requestID string, in RequestAccessInput, start time.Time) (RequestAccessResult, error) {
	b.logBestEffort(ctx, requestID, in, domain.EventRequestEvaluated, domain.DecisionDeny, "UNKNOWN_TARGET", nil, nil, nil)
	b.observe(in.ToolID, "DENY", start)
	return RequestAccessResult{RequestID: requestID, Outcome: policyengine.OutcomeDeny, ReasonCode: "UNKNOWN_TARGET"}, nil
}

// bumpDailyRateLimit performs the real, once-per-call increment spec.md
// §4.4 step 2 defers until after provisional approval. Evaluate only
// peeked at this budget; a failure here degrades to Check's own
// fallback/Degraded handling rather than failing the request.
func (b *AccessBroker) bumpDailyRateLimit(ctx context.Context, decision policyengine.Decision) {
	if decision.DailyRateLimitKey == "" {
		return
	}
	if _, err := b.rateLimiter.Check(ctx, decision.DailyRateLimitKey, decision.DailyRateLimitMax, 86400); err != nil {
		b.logger.Warn("daily rate limit increment failed", zap.String("key", decision.DailyRateLimitKey), zap.Error(err))
	}
}

func (b *AccessBroker) logBestEffort(ctx context.Context, requestID string, in RequestAccessInput, event domain.AccessEvent, decision domain.DecisionOutcome, reason string, policyID, credentialID *string, grantedScopes []string) {
	entry := &domain.AccessLog{
		RequestID:       requestID,
		AgentID:         in.AgentID,
		ToolID:          in.ToolID,
		PolicyID:        policyID,
		CredentialID:    credentialID,
		Event:           event,
		Decision:        decision,
		ReasonCode:      reason,
		RequestIP:       in.RequestIP,
		UserAgent:       in.UserAgent,
		RequestedScopes: in.RequestedScopes,
		GrantedScopes:   grantedScopes,
	}
	if err := b.audit.LogEvent(ctx, entry); err != nil {
		b.logger.Error("audit log failed, decision recorded only in-process", zap.Error(err))
	}
}

func (b *AccessBroker) observe(toolID, outcome string, start time.Time) {
	b.metrics.RequestDuration.WithLabelValues(toolID, outcome).Observe(b.clock.Now().Sub(start).Seconds())
}

func (b *AccessBroker) lookupIdempotent(ctx context.Context, key string) (RequestAccessResult, bool) {
	if b.rdb == nil {
		return RequestAccessResult{}, false
	}
	val, err := b.rdb.Get(ctx, infra.IdempotencyKey(key)).Result()
	if err != nil {
		return RequestAccessResult{}, false
	}
	return decodeIdempotentResult(val)
}

func (b *AccessBroker) storeIdempotent(ctx context.Context, key string, result RequestAccessResult) {
	if b.rdb == nil {
		return
	}
	encoded := encodeIdempotentResult(result)
	if err := b.rdb.Set(ctx, infra.IdempotencyKey(key), encoded, 10*time.Minute).Err(); err != nil {
		b.logger.Warn("failed to cache idempotent result", zap.Error(err))
	}
}
