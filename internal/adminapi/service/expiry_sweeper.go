package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/toolaccess/broker/internal/clock"
	"github.com/toolaccess/broker/internal/store"
)

// ExpirySweeper periodically marks stale PENDING access requests EXPIRED,
// mirroring credential.Sweeper's ticker-driven shape: a goroutine polling
// a deadline rather than consuming a work queue (spec.md §3's 7-day TTL
// via domain.PendingRequestTTL, enforced by Store.ExpireStaleAccessRequests).
type ExpirySweeper struct {
	store    store.Store
	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewExpirySweeper(s store.Store, c clock.Clock, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	return &ExpirySweeper{
		store:    s,
		clock:    c,
		interval: interval,
		logger:   logger.Named("access_request_sweeper"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *ExpirySweeper) Start() {
	go s.run()
}

func (s *ExpirySweeper) Stop() {
	close(s.stop)
	<-s.done
}

func (s *ExpirySweeper) run() {
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

func (s *ExpirySweeper) sweepOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.ExpireStaleAccessRequests(ctx, s.clock.Now())
	if err != nil {
		s.logger.Error("access request expiry sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired stale access requests", zap.Int("count", n))
	}
}
