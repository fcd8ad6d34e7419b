package credential

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper periodically deletes expired credential rows, mirroring the
// teacher's AgentFS ticker-driven worker shape (internal/audit/agentfs.go)
// but with no buffered input channel — there is nothing to enqueue, only
// a deadline to poll against.
type Sweeper struct {
	vendor    *Vendor
	interval  time.Duration
	retention time.Duration
	logger    *zap.Logger
	stop      chan struct{}
	done      chan struct{}
}

func NewSweeper(v *Vendor, interval, retention time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		vendor:    v,
		interval:  interval,
		retention: retention,
		logger:    logger.Named("credential_sweeper"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := s.vendor.clock.Now().Add(-s.retention)
	n, err := s.vendor.store.DeleteExpiredCredentials(ctx, cutoff)
	if err != nil {
		s.logger.Error("credential cleanup sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("swept expired credentials", zap.Int("count", n))
	}
}
