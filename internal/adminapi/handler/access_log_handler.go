package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// AccessLogHandler generalizes the teacher's AuditHandler (GET /v1/audit)
// over spec.md's AccessLog, with cursor pagination instead of the
// teacher's offset-based listing.
type AccessLogHandler struct {
	store store.Store
}

func NewAccessLogHandler(s store.Store) *AccessLogHandler {
	return &AccessLogHandler{store: s}
}

func (h *AccessLogHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
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
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"logs":        logs,
		"next_cursor": nextCursor,
	})
}
