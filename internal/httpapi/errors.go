package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/toolaccess/broker/internal/domain"
)

// errorResponse is the JSON body for every non-2xx response from this
// package. Keeping one shape here is what stops the Kind-to-status
// mapping from drifting between handlers (see domain.ErrorKind's comment).
type errorResponse struct {
	Error      string `json:"error"`
	ReasonCode string `json:"reason_code,omitempty"`
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	reason := ""
	msg := "internal error"

	var de *domain.Error
	if e, ok := err.(*domain.Error); ok {
		de = e
	}
	if de != nil {
		msg = de.Detail
		reason = de.ReasonCode
		switch de.Kind {
		case domain.KindInvalidInput:
			status = http.StatusBadRequest
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindInactive:
			status = http.StatusGone
		case domain.KindConflict:
			status = http.StatusConflict
		case domain.KindUnauthorized:
			status = http.StatusUnauthorized
		case domain.KindInsufficientScope:
			status = http.StatusForbidden
		case domain.KindRateLimited:
			status = http.StatusTooManyRequests
		case domain.KindDenied:
			status = http.StatusForbidden
		case domain.KindUnavailable:
			status = http.StatusServiceUnavailable
		default:
			status = http.StatusInternalServerError
		}
	}

	respondJSON(w, status, errorResponse{Error: msg, ReasonCode: reason})
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
