// Package scheduler runs the engine's background cadences: scans,
// price sampling, outcome sweeps, metric rollups and the daily weight
// pass. Every job is named and single-flight; a tick that lands while
// the previous run is still going is skipped, and missed slots
// coalesce instead of catching up.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/CodyDvorak/CryptoOracle-sub001/internal/metrics"
)

// ErrJobBusy is returned by Trigger when the job is already running.
var ErrJobBusy = errors.New("job already running")

// JobFunc is one unit of scheduled work.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	fn       JobFunc
	interval time.Duration
	atHour   int // wall-clock hour for daily jobs, -1 otherwise
	running  atomic.Bool
}

// Scheduler owns a set of named jobs and their cadences.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*job
	log  zerolog.Logger
}

// New returns an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		jobs: map[string]*job{},
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Every registers a job on a fixed interval.
func (s *Scheduler) Every(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{name: name, fn: fn, interval: interval, atHour: -1}
}

// DailyAt registers a job that fires once a day at the given UTC hour.
func (s *Scheduler) DailyAt(name string, hour int, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[name] = &job{name: name, fn: fn, atHour: hour}
}

// Trigger fires a job by name immediately, subject to the same
// single-flight rule as scheduled runs.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	if !j.running.CompareAndSwap(false, true) {
		metrics.JobSkips.WithLabelValues(name).Inc()
		return ErrJobBusy
	}
	defer j.running.Store(false)
	return s.execute(ctx, j)
}

// Run drives all registered jobs until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j *job) {
			defer wg.Done()
			if j.atHour >= 0 {
				s.runDaily(ctx, j)
			} else {
				s.runInterval(ctx, j)
			}
		}(j)
	}
	wg.Wait()
}

func (s *Scheduler) runInterval(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, j)
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, j *job) {
	for {
		wait := time.Until(nextDaily(time.Now().UTC(), j.atHour))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.tick(ctx, j)
		}
	}
}

// tick runs one slot, skipping it when the previous run still holds
// the flight.
func (s *Scheduler) tick(ctx context.Context, j *job) {
	if !j.running.CompareAndSwap(false, true) {
		metrics.JobSkips.WithLabelValues(j.name).Inc()
		s.log.Warn().Str("job", j.name).Msg("Slot skipped, previous run still going")
		return
	}
	defer j.running.Store(false)

	if err := s.execute(ctx, j); err != nil {
		s.log.Error().Err(err).Str("job", j.name).Msg("Job failed")
	}
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.JobRuns.WithLabelValues(j.name, "panic").Inc()
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()

	start := time.Now()
	err = j.fn(ctx)
	if err != nil {
		metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
		return err
	}
	metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
	s.log.Debug().Str("job", j.name).Dur("elapsed", time.Since(start)).Msg("Job done")
	return nil
}

// nextDaily returns the next occurrence of the given UTC hour strictly
// after now.
func nextDaily(now time.Time, hour int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
