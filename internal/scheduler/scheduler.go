// Package scheduler drives the periodic sweeps of the timeline and
// reservation engines.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"clubhouse-backend/config"
)

// Sweeper is an engine with a scheduled pass.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) error
}

// Clock is the source of "now" for a sweep pass.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Service runs the sweeps on a timer.
type Service struct {
	cfg      config.SchedulerConfig
	clock    Clock
	sweepers map[string]Sweeper
	order    []string
}

// NewService creates a scheduler. Sweepers run in the order they are added.
func NewService(cfg config.SchedulerConfig, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Service{cfg: cfg, clock: clock, sweepers: make(map[string]Sweeper)}
}

// Add registers a sweeper under name.
func (s *Service) Add(name string, sw Sweeper) *Service {
	if _, ok := s.sweepers[name]; !ok {
		s.order = append(s.order, name)
	}
	s.sweepers[name] = sw
	return s
}

// Run starts the sweep loop and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		log.Println("Scheduler is disabled. Not starting.")
		return
	}
	log.Printf("Starting scheduler, sweeping every %s...", s.cfg.Interval)

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Scheduler shutting down.")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

// SweepOnce runs every sweeper once. All of them see the same now, read once
// at the start of the pass. A failing sweeper does not stop the others.
func (s *Service) SweepOnce(ctx context.Context) error {
	now := s.clock.Now()
	log.Printf("Executing sweep cycle at %s...", now.Format(time.RFC3339))

	var errs []error
	for _, name := range s.order {
		if err := s.sweepers[name].Sweep(ctx, now); err != nil {
			log.Printf("Error in %s sweep: %v", name, err)
			errs = append(errs, err)
		}
	}

	log.Println("Sweep cycle finished.")
	return errors.Join(errs...)
}
