package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/domain"
)

// Sink receives already-committed AccessLog rows for best-effort mirroring
// to a secondary store (an analytics rollup table, a metrics pipeline).
// A Sink failure never affects the decision path — TxLogger has already
// returned successfully by the time Enqueue is called.
type Sink interface {
	WriteBatch(ctx context.Context, entries []*domain.AccessLog) error
}

// Forwarder adapts the teacher's AgentFS non-blocking batched writer:
// same buffered-channel-plus-ticker-plus-drain shape, repurposed from the
// authoritative audit path (which TxLogger now owns, synchronously) to a
// non-authoritative observability mirror. Losing an event here under
// backpressure is acceptable; losing one in TxLogger is not.
type Forwarder struct {
	ch       chan *domain.AccessLog
	sink     Sink
	logger   *zap.Logger
	wg       sync.WaitGroup
	isClosed int32
}

func NewForwarder(sink Sink, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		ch:     make(chan *domain.AccessLog, 10000),
		sink:   sink,
		logger: logger.Named("audit_forwarder"),
	}
}

func (f *Forwarder) Start() {
	f.wg.Add(1)
	go f.worker()
}

// Stop closes the input channel and waits for the worker to flush
// whatever remains, mirroring AgentFS.Stop's drain pattern.
func (f *Forwarder) Stop() {
	atomic.StoreInt32(&f.isClosed, 1)
	time.Sleep(10 * time.Millisecond)
	f.logger.Info("stopping audit forwarder, draining buffer")
	close(f.ch)
	f.wg.Wait()
	f.logger.Info("audit forwarder stopped")
}

func (f *Forwarder) Enqueue(entry *domain.AccessLog) {
	if atomic.LoadInt32(&f.isClosed) == 1 {
		return
	}
	select {
	case f.ch <- entry:
	default:
		f.logger.Warn("forwarder buffer overflow, dropping entry",
			zap.String("log_id", entry.LogID), zap.String("agent_id", entry.AgentID))
	}
}

func (f *Forwarder) worker() {
	defer f.wg.Done()

	batch := make([]*domain.AccessLog, 0, 100)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := f.sink.WriteBatch(context.Background(), batch); err != nil {
			f.logger.Error("forwarder flush failed", zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-f.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
