package httpapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/broker"
	"github.com/toolaccess/broker/internal/credential"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/policyengine"
	"github.com/toolaccess/broker/internal/store"
)

// AccessHandler is the agent-facing surface generalizing the teacher's
// UAGCore.HandleHTTPRequest (header-driven agent identity, JSON in/out,
// 403-on-error shape) into the richer /access/* contract of spec.md §6.
type AccessHandler struct {
	broker      *broker.AccessBroker
	credentials *credential.Vendor
	store       store.Store
	logger      *zap.Logger
}

func NewAccessHandler(b *broker.AccessBroker, cv *credential.Vendor, s store.Store, logger *zap.Logger) *AccessHandler {
	return &AccessHandler{broker: b, credentials: cv, store: s, logger: logger.Named("access_handler")}
}

type requestAccessBody struct {
	AgentID           string   `json:"agent_id"`
	ToolID            string   `json:"tool_id"`
	RequestedScopes   []string `json:"requested_scopes"`
	RequestedLifetime int      `json:"requested_lifetime_seconds"`
}

func (h *AccessHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var body requestAccessBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, domain.NewError(domain.KindInvalidInput, "MALFORMED_BODY", "invalid JSON body", err))
		return
	}
	if body.AgentID == "" || body.ToolID == "" {
		respondError(w, domain.NewError(domain.KindInvalidInput, "MISSING_FIELD", "agent_id and tool_id are required", nil))
		return
	}

	in := broker.RequestAccessInput{
		AgentID:           body.AgentID,
		ToolID:            body.ToolID,
		RequestedScopes:   body.RequestedScopes,
		RequestedLifetime: body.RequestedLifetime,
		RequestIP:         clientIP(r),
		UserAgent:         r.UserAgent(),
		IdempotencyKey:    r.Header.Get("Idempotency-Key"),
	}

	result, err := h.broker.RequestAccess(r.Context(), in)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == policyengine.OutcomeDeny {
		status = http.StatusForbidden
		if result.ReasonCode == "RATE_LIMITED" {
			status = http.StatusTooManyRequests
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
		}
	} else if result.Outcome == policyengine.OutcomePendingApproval {
		status = http.StatusAccepted
	}

	respondJSON(w, status, map[string]interface{}{
		"outcome":       result.Outcome,
		"token":         result.Token,
		"credential_id": result.CredentialID,
		"expires_at":    result.ExpiresAt,
		"request_id":    result.RequestID,
		"reason_code":   result.ReasonCode,
	})
}

type validateBody struct {
	Token         string `json:"token"`
	RequiredScope string `json:"required_scope,omitempty"`
}

func (h *AccessHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var body validateBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
		respondError(w, domain.NewError(domain.KindInvalidInput, "MALFORMED_BODY", "token is required", nil))
		return
	}

	result, err := h.credentials.Validate(r.Context(), body.Token, body.RequiredScope)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Valid {
		status = http.StatusForbidden
	}
	respondJSON(w, status, result)
}

func (h *AccessHandler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	credentialID := chi.URLParam(r, "id")
	actorID := r.Header.Get("X-Agent-ID")

	if err := h.credentials.Revoke(r.Context(), credentialID, actorID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccessHandler) GetAccessRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")
	req, err := h.store.GetAccessRequest(r.Context(), requestID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (h *AccessHandler) ListAccessLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AccessLogFilter{
		AgentID: q.Get("agent_id"),
		ToolID:  q.Get("tool_id"),
		Event:   domain.AccessEvent(q.Get("event")),
		Cursor:  q.Get("cursor"),
	}
	if ps := q.Get("page_size"); ps != "" {
		if n, err := strconv.Atoi(ps); err == nil {
			filter.PageSize = n
		}
	}

	logs, nextCursor, err := h.store.QueryAccessLogs(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"logs":        logs,
		"next_cursor": nextCursor,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
