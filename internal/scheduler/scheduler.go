// Package scheduler re-runs verification suites on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJobTimeout bounds a single scheduled execution
const DefaultJobTimeout = 30 * time.Minute

// Job represents a scheduled task
type Job func(ctx context.Context) error

// Scheduler manages periodic tasks
type Scheduler struct {
	cron     *cron.Cron
	jobs     map[string]cron.EntryID
	timezone *time.Location
	base     context.Context

	// JobTimeout is the deadline given to each execution
	JobTimeout time.Duration
}

// New creates a new scheduler with the given timezone. A job still running
// when its next tick arrives skips that tick.
func New(timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", timezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(log.Default()))),
	)

	return &Scheduler{
		cron:       c,
		jobs:       make(map[string]cron.EntryID),
		timezone:   loc,
		base:       context.Background(),
		JobTimeout: DefaultJobTimeout,
	}, nil
}

// AddRunJob adds a job with a cron schedule
// schedule format: "*/30 * * * *" (every 30 minutes)
func (s *Scheduler) AddRunJob(name, schedule string, job Job) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.execute(s.base, name, job); err != nil {
			log.Printf("[scheduler] Job %s failed: %v", name, err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	log.Printf("[scheduler] Added job: %s (schedule: %s)", name, schedule)

	return nil
}

func (s *Scheduler) execute(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.JobTimeout)
	defer cancel()

	log.Printf("[scheduler] Starting job: %s", name)
	start := time.Now()

	if err := job(ctx); err != nil {
		return err
	}
	log.Printf("[scheduler] Job %s completed in %v", name, time.Since(start).Round(time.Millisecond))
	return nil
}

// RemoveJob removes a scheduled job
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		log.Printf("[scheduler] Removed job: %s", name)
	}
}

// Start begins running scheduled jobs. Scheduled executions derive their
// context from ctx, so cancelling it aborts a job in flight.
func (s *Scheduler) Start(ctx context.Context) {
	log.Println("[scheduler] Starting scheduler")
	s.base = ctx
	s.cron.Start()
}

// Stop halts the scheduler. The returned context is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	log.Println("[scheduler] Stopping scheduler")
	return s.cron.Stop()
}

// RunNow immediately executes a job under ctx, with the same timeout as a
// scheduled execution
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	log.Printf("[scheduler] Running job now: %s", name)
	return s.execute(ctx, name, job)
}

// ListJobs returns info about scheduled jobs sorted by name
func (s *Scheduler) ListJobs() []JobInfo {
	infos := make([]JobInfo, 0, len(s.jobs))

	for name, entryID := range s.jobs {
		entry := s.cron.Entry(entryID)
		if !entry.Valid() {
			continue
		}
		infos = append(infos, JobInfo{
			Name:    name,
			NextRun: entry.Next,
			LastRun: entry.Prev,
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// JobInfo contains information about a scheduled job
type JobInfo struct {
	Name    string
	NextRun time.Time
	LastRun time.Time
}
