package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultReportSpec runs the daily results report at 21:00 UTC.
const DefaultReportSpec = "0 21 * * *"

// Scheduler runs the periodic jobs: the daily results report and cache sweeps.
type Scheduler struct {
	cron       *cron.Cron
	ctx        context.Context
	cancel     context.CancelFunc
	logger     *slog.Logger
	reportSpec string
	reportFunc func(ctx context.Context) error
	sweeps     []sweep
}

type sweep struct {
	name  string
	every time.Duration
	fn    func() int
}

func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		reportSpec: DefaultReportSpec,
	}
}

// SetReportFunction sets the daily report job; spec overrides the schedule
// when non-empty.
func (s *Scheduler) SetReportFunction(spec string, f func(ctx context.Context) error) {
	if spec != "" {
		s.reportSpec = spec
	}
	s.reportFunc = f
}

// AddSweep registers fn to run every interval. fn returns how many items it
// removed.
func (s *Scheduler) AddSweep(name string, every time.Duration, fn func() int) {
	s.sweeps = append(s.sweeps, sweep{name: name, every: every, fn: fn})
}

func (s *Scheduler) Start() error {
	if s.reportFunc == nil {
		s.logger.Warn("report function not set, daily reports disabled")
	} else {
		_, err := s.cron.AddFunc(s.reportSpec, func() {
			s.logger.Info("daily report triggered", "spec", s.reportSpec)
			if err := s.reportFunc(s.ctx); err != nil {
				s.logger.Error("daily report failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("schedule report %q: %w", s.reportSpec, err)
		}
	}

	for _, sw := range s.sweeps {
		if sw.every <= 0 {
			continue
		}
		sw := sw
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", sw.every), func() {
			if n := sw.fn(); n > 0 {
				s.logger.Debug("sweep removed entries", "sweep", sw.name, "removed", n)
			}
		}); err != nil {
			return fmt.Errorf("schedule sweep %s: %w", sw.name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) IsRunning() bool {
	return s.cron != nil && len(s.cron.Entries()) > 0
}
