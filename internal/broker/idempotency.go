package broker

import (
	"encoding/json"
	"time"

	"github.com/toolaccess/broker/internal/policyengine"
)

// idempotentPayload is the JSON shape cached in Redis under the
// idempotency-key namespace. RetryAfter is stored as nanoseconds, matching
// time.Duration's wire representation elsewhere in this codebase.
type idempotentPayload struct {
	Outcome      policyengine.Outcome `json:"outcome"`
	Token        string               `json:"token,omitempty"`
	CredentialID string               `json:"credential_id,omitempty"`
	ExpiresAt    time.Time            `json:"expires_at,omitempty"`
	RequestID    string               `json:"request_id,omitempty"`
	ReasonCode   string               `json:"reason_code,omitempty"`
	RetryAfterNs int64                `json:"retry_after_ns,omitempty"`
}

func encodeIdempotentResult(r RequestAccessResult) []byte {
	p := idempotentPayload{
		Outcome: r.Outcome, Token: r.Token, CredentialID: r.CredentialID,
		ExpiresAt: r.ExpiresAt, RequestID: r.RequestID, ReasonCode: r.ReasonCode,
		RetryAfterNs: int64(r.RetryAfter),
	}
	b, _ := json.Marshal(p)
	return b
}

func decodeIdempotentResult(raw string) (RequestAccessResult, bool) {
	var p idempotentPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return RequestAccessResult{}, false
	}
	return RequestAccessResult{
		Outcome: p.Outcome, Token: p.Token, CredentialID: p.CredentialID,
		ExpiresAt: p.ExpiresAt, RequestID: p.RequestID, ReasonCode: p.ReasonCode,
		RetryAfter: time.Duration(p.RetryAfterNs),
	}, true
}
