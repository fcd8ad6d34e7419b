package audit

import (
	"context"
	"fmt"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// Logger is the single entry point every component uses to record an
// access-log row. Implementations must never swallow a persistence error:
// a failure to log causes the enclosing decision to fail closed (spec.md
// §4.6).
type Logger interface {
	LogEvent(ctx context.Context, entry *domain.AccessLog) error
}

// TxLogger writes synchronously and transactionally via Store. It never
// buffers: the teacher's AgentFS fire-and-forget batching pattern is kept
// for the separate, non-authoritative Forwarder below, not for this path.
type TxLogger struct {
	store     store.Store
	clock     clock.Clock
	idgen     clock.IDGen
	forwarder *Forwarder // optional; nil disables best-effort mirroring
}

func NewTxLogger(s store.Store, c clock.Clock, idgen clock.IDGen, forwarder *Forwarder) *TxLogger {
	return &TxLogger{store: s, clock: c, idgen: idgen, forwarder: forwarder}
}

func (l *TxLogger) LogEvent(ctx context.Context, entry *domain.AccessLog) error {
	if entry.LogID == "" {
		entry.LogID = l.idgen.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.clock.Now()
	}
	if err := validateEntry(entry); err != nil {
		return err
	}

	if err := l.store.AppendAccessLog(ctx, entry); err != nil {
		return fmt.Errorf("audit: failed to persist access log, failing closed: %w", err)
	}

	if l.forwarder != nil {
		l.forwarder.Enqueue(entry)
	}
	return nil
}

// validateEntry enforces the per-event required-field rules spec.md §4.6
// names explicitly (CREDENTIAL_ISSUED requires credential_id,
// REQUEST_EVALUATED requires a decision).
func validateEntry(e *domain.AccessLog) error {
	switch e.Event {
	case domain.EventCredentialIssued, domain.EventCredentialValidated, domain.EventCredentialRevoked:
		if e.CredentialID == nil || *e.CredentialID == "" {
			return domain.NewError(domain.KindInvalidInput, "MISSING_CREDENTIAL_ID",
				fmt.Sprintf("%s log entry requires credential_id", e.Event), nil)
		}
	case domain.EventRequestEvaluated:
		if e.Decision == "" {
			return domain.NewError(domain.KindInvalidInput, "MISSING_DECISION",
				"REQUEST_EVALUATED log entry requires a decision", nil)
		}
	}
	if e.AgentID == "" || e.ToolID == "" {
		return domain.NewError(domain.KindInvalidInput, "MISSING_TARGET",
			"access log entry requires agent_id and tool_id", nil)
	}
	return nil
}
