package audit

import (
	"context"

	"github.com/toolaccess/broker/internal/domain"
	"github.com/toolaccess/broker/internal/store"
)

// StoreSink mirrors entries back into Postgres via the bulk-insert path
// (ON CONFLICT DO NOTHING on log_id), useful when the analytics consumer
// is just a read replica querying the same access_logs table with a
// different access pattern than QueryAccessLogs. Swap in a ClickHouse or
// metrics-pipeline Sink for a real secondary store.
type StoreSink struct {
	store store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) WriteBatch(ctx context.Context, entries []*domain.AccessLog) error {
	return s.store.AppendAccessLogBatch(ctx, entries)
}
