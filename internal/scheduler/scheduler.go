// Package scheduler implements the job scheduler (C7): periodic tasks with
// staggered startup delays and a per-job single-flight guard that skips a
// tick if the prior run is still active, per spec §4.7.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// Job is one periodically-run task.
type Job struct {
	Name         string
	Period       time.Duration
	StartupDelay time.Duration
	Run          func(ctx context.Context) error
}

// SchedulerOption configures a Scheduler, mirroring the teacher's
// functional-options constructor pattern (txlistener.WithPollInterval/
// WithTimeout).
type SchedulerOption func(*Scheduler)

// WithShutdownTimeout overrides the default shutdown grace period (10s).
func WithShutdownTimeout(d time.Duration) SchedulerOption {
	return func(s *Scheduler) { s.shutdownTimeout = d }
}

// Scheduler runs a fixed registry of jobs, each on its own goroutine, honoring
// startup delays and a single-flight guard per job (spec §4.7, §5).
type Scheduler struct {
	jobs            []Job
	shutdownTimeout time.Duration

	wg sync.WaitGroup
}

// New builds a Scheduler with the given jobs registered up front — the
// registry is one of the three global mutable-state items named in
// spec §9 and is fixed for the process lifetime.
func New(jobs []Job, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{jobs: jobs, shutdownTimeout: 10 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches every registered job and blocks until ctx is cancelled,
// then waits up to the configured shutdown timeout for in-flight runs
// before returning.
func (s *Scheduler) Start(ctx context.Context) {
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.runJob(ctx, j)
	}

	<-ctx.Done()
	log.Printf("[scheduler] shutdown signal received, waiting up to %s for in-flight jobs", s.shutdownTimeout)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Printf("[scheduler] all jobs drained cleanly")
	case <-time.After(s.shutdownTimeout):
		log.Printf("[scheduler] shutdown timeout elapsed with jobs still in flight")
	}
}

func (s *Scheduler) runJob(ctx context.Context, j Job) {
	defer s.wg.Done()

	if j.StartupDelay > 0 {
		t := time.NewTimer(j.StartupDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	var running int32
	ticker := time.NewTicker(j.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !atomic.CompareAndSwapInt32(&running, 0, 1) {
				// prior run of this job is still active; skip this tick
				// (spec §4.7's "running flag", §8 scenario E single-flight).
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer atomic.StoreInt32(&running, 0)
				if err := j.Run(ctx); err != nil {
					log.Printf("[scheduler] job %s: %v", j.Name, err)
				}
			}()
		}
	}
}
