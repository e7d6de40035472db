package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/splax/sitepress/internal/domain"
	"github.com/splax/sitepress/pkg/config"
)

const (
	defaultSweepInterval = time.Minute
	sweepTimeout         = 15 * time.Second
	staleFailure         = "Publishing your website took too long. Please resubmit to try again."
)

// Sweeper moves records stuck in processing to error.
type Sweeper struct {
	svc        *Service
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
	now        func() time.Time
}

// NewSweeper constructs a sweeper for svc. It returns nil when stale
// detection is disabled.
func NewSweeper(svc *Service, logger *slog.Logger, cfg config.APIConfig) *Sweeper {
	if svc == nil || cfg.StaleAfter <= 0 {
		return nil
	}
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{
		svc:        svc,
		logger:     logger.With("component", "sweeper"),
		interval:   interval,
		staleAfter: cfg.StaleAfter,
		now:        time.Now,
	}
}

// Run sweeps until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval, "stale_after", s.staleAfter)
	s.runIteration(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.C:
			s.runIteration(ctx)
		}
	}
}

// runIteration returns the number of records moved to error.
func (s *Sweeper) runIteration(parent context.Context) int {
	if s == nil {
		return 0
	}
	timeout := sweepTimeout
	if s.interval < timeout {
		timeout = s.interval
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	docs, err := s.svc.store.ListByStatus(ctx, domain.StatusProcessing)
	if err != nil {
		s.logger.Error("list processing records failed", "error", err)
		return 0
	}

	now := s.now().UTC()
	swept := 0
	for _, doc := range docs {
		id := doc.Business.ID
		started := doc.Deployment.ProcessingStartedAt
		if started != nil && now.Sub(*started) < s.staleAfter {
			continue
		}
		unlock, ok := s.svc.runLocks.TryLock(id)
		if !ok {
			continue
		}
		moved := false
		_, err := s.svc.store.Update(ctx, id, func(doc *domain.BusinessDocument) error {
			if doc.Deployment.Status != domain.StatusProcessing {
				return nil
			}
			doc.Deployment.Status = domain.StatusError
			doc.Deployment.Error = staleFailure
			doc.Deployment.ErrorAt = &now
			moved = true
			return nil
		})
		unlock()
		if err != nil {
			s.logger.Warn("stale record not updated", "business_id", id, "error", err)
			continue
		}
		if moved {
			swept++
			s.svc.metrics.observeSweep()
			s.logger.Warn("stale run moved to error", "business_id", id, "started_at", started)
		}
	}
	return swept
}
