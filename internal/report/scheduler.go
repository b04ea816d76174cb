package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fernwood/sprout/internal/ledger"
	"github.com/fernwood/sprout/internal/store"
)

const reportPeriod = 7 * 24 * time.Hour

// Scheduler runs the background producers: the due-date sweeper that moves
// overdue ledger entries to missed, and weekly report generation per child.
// Both mutate through the same guarded store operations as the request path,
// so a timer tick racing a request resolves the same way two requests would.
type Scheduler struct {
	mu        sync.RWMutex
	ledger    *ledger.Service
	generator *Generator
	children  *store.ChildStore
	reports   *store.ReportStore
	interval  time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewScheduler(
	ledgerSvc *ledger.Service,
	generator *Generator,
	children *store.ChildStore,
	reports *store.ReportStore,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		ledger:    ledgerSvc,
		generator: generator,
		children:  children,
		reports:   reports,
		interval:  time.Hour,
		logger:    logger.With("component", "scheduler"),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, time.Now())
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	if _, err := s.ledger.MarkOverdueMissed(now); err != nil {
		s.logger.Error("overdue sweep", "error", err)
	}
	s.generateDueReports(ctx, now)
}

// generateDueReports creates one report per child per week. A child whose
// newest report covers any part of the last week is skipped.
func (s *Scheduler) generateDueReports(ctx context.Context, now time.Time) {
	children, err := s.children.List()
	if err != nil {
		s.logger.Error("list children", "error", err)
		return
	}

	start := now.Add(-reportPeriod)
	for _, child := range children {
		covered, err := s.reports.HasReportCovering(child.ID, start)
		if err != nil {
			s.logger.Error("check report coverage", "error", err, "child_id", child.ID)
			continue
		}
		if covered {
			continue
		}
		if _, err := s.generator.Generate(ctx, child.ID, start, now); err != nil {
			s.logger.Error("generate report", "error", err, "child_id", child.ID)
		}
	}
}
