package reconcile

import (
	"context"
	"errors"
	"time"
)

// Scheduler drives the reconciliation jobs on a fixed interval. Each
// tick runs the expired-bill job, the low-stock scan, and the expiry
// scan in sequence; an in-flight manual trigger makes the scheduled
// run of that job a no-op via the service's per-job lock.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{
		svc:      svc,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the background loop. The first run happens after one
// full interval, not immediately.
func (s *Scheduler) Start() {
	s.svc.logger.Info().Dur("interval", s.interval).Msg("reconciliation scheduler started")
	go s.run()
}

// Stop halts the loop and waits for any in-progress tick to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
	s.svc.logger.Info().Msg("reconciliation scheduler stopped")
}

func (s *Scheduler) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.RunAll(context.Background())
		}
	}
}

// RunAll executes every job once, tolerating individual job failures.
func (s *Scheduler) RunAll(ctx context.Context) {
	if _, err := s.svc.RunExpiredBillReconciliation(ctx); err != nil {
		s.logJobError("expired_bill_reconciliation", err)
	}
	if _, err := s.svc.RunLowStockScan(ctx); err != nil {
		s.logJobError("low_stock_scan", err)
	}
	if _, err := s.svc.RunExpiryScan(ctx); err != nil {
		s.logJobError("expiry_scan", err)
	}
}

func (s *Scheduler) logJobError(job string, err error) {
	if errors.Is(err, ErrJobRunning) {
		s.svc.logger.Warn().Str("job", job).Msg("scheduled run skipped, job already in flight")
		return
	}
	s.svc.logger.Error().Err(err).Str("job", job).Msg("scheduled job failed")
}
