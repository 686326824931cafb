// Package scheduler runs the periodic maintenance jobs: expiring unpaid
// pending appointments, auto-completing finished ones and sending
// reminders. Each job is supervised so one failing run never stops the
// ticker, and the last outcome is observable for operators.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clinicbook/pkg/logger"
)

// JobFunc performs one sweep and reports how many records it touched.
type JobFunc func(ctx context.Context) (int64, error)

// JobStatus is a point-in-time snapshot of one job's supervision state.
type JobStatus struct {
	Name      string    `json:"name"`
	Interval  string    `json:"interval"`
	Runs      int64     `json:"runs"`
	LastRun   time.Time `json:"last_run"`
	LastCount int64     `json:"last_count"`
	LastError string    `json:"last_error,omitempty"`
}

type job struct {
	name     string
	interval time.Duration
	run      JobFunc

	mu        sync.Mutex
	runs      int64
	lastRun   time.Time
	lastCount int64
	lastErr   error
}

func (j *job) execute(ctx context.Context, log *logger.Logger) {
	count, err := j.runSafely(ctx)

	j.mu.Lock()
	j.runs++
	j.lastRun = time.Now()
	j.lastCount = count
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		log.Error("Scheduled job failed", "job", j.name, "error", err)
		return
	}
	if count > 0 {
		log.Info("Scheduled job completed", "job", j.name, "affected", count)
	}
}

// runSafely turns a panicking run into a recorded failure so one bad sweep
// never takes the supervisor goroutine down.
func (j *job) runSafely(ctx context.Context) (count int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return j.run(ctx)
}

func (j *job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()

	s := JobStatus{
		Name:      j.name,
		Interval:  j.interval.String(),
		Runs:      j.runs,
		LastRun:   j.lastRun,
		LastCount: j.lastCount,
	}
	if j.lastErr != nil {
		s.LastError = j.lastErr.Error()
	}
	return s
}

type Scheduler struct {
	jobs []*job
	log  *logger.Logger

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(log *logger.Logger) *Scheduler {
	return &Scheduler{log: log}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) {
	s.jobs = append(s.jobs, &job{
		name:     name,
		interval: interval,
		run:      fn,
	})
}

// Start launches one goroutine per job. Every job runs once immediately so
// a restart never leaves overdue sweeps waiting a full interval.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.supervise(ctx, j)
	}

	s.log.Info("Scheduler started", "jobs", len(s.jobs))
}

func (s *Scheduler) supervise(ctx context.Context, j *job) {
	defer s.wg.Done()

	j.execute(ctx, s.log)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.execute(ctx, s.log)
		}
	}
}

// Stop cancels all jobs and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// Status reports every job's supervision snapshot.
func (s *Scheduler) Status() []JobStatus {
	statuses := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		statuses = append(statuses, j.status())
	}
	return statuses
}
