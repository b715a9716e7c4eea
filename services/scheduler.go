// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs the periodic jobs: reminders, alert checks, the daily report
// and the daily export. A job never overlaps with its own previous run.
type Scheduler struct {
	sched gocron.Scheduler
	ctx   context.Context
}

func NewScheduler(ctx context.Context, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{sched: sched, ctx: ctx}, nil
}

func (s *Scheduler) task(name string, run func(ctx context.Context)) gocron.Task {
	return gocron.NewTask(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("🔥 [Scheduler] Job %s panicked: %v", name, r)
			}
		}()
		start := time.Now()
		run(s.ctx)
		log.Printf("⏱️ [Scheduler] Job %s finished in %s", name, time.Since(start).Round(time.Millisecond))
	})
}

// Every runs job at a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, job func(ctx context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		s.task(name, job),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Daily runs job once a day at hour:minute in the scheduler's location.
func (s *Scheduler) Daily(name string, hour, minute uint, job func(ctx context.Context)) error {
	_, err := s.sched.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(hour, minute, 0))),
		s.task(name, job),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Run starts the scheduler and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.sched.Start()
	log.Printf("⏰ [Scheduler] Started with %d job(s)", len(s.sched.Jobs()))
	<-ctx.Done()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	log.Println("⏹️ [Scheduler] Stopped")
	return nil
}
