package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tcmclinic/internal/logging"

	"github.com/go-co-op/gocron/v2"
)

// Job is a unit of work run on a cron schedule
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// JobScheduler runs registered jobs in the clinic location
type JobScheduler struct {
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]Job
	handles map[string]gocron.Job
	specs   map[string]string
	running bool
}

// NewJobScheduler creates a scheduler whose cron expressions are read in loc
func NewJobScheduler(loc *time.Location) (*JobScheduler, error) {
	if loc == nil {
		loc = time.UTC
	}
	// cron specs carry CRON_TZ=<name>, so the zone must load by name
	if _, err := time.LoadLocation(loc.String()); err != nil {
		return nil, fmt.Errorf("scheduler location %q is not a named time zone: %w", loc, err)
	}
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]Job),
		handles:   make(map[string]gocron.Job),
		specs:     make(map[string]string),
	}, nil
}

// Register schedules job on a five-field cron expression. A run still in
// progress when the next tick fires makes that tick skip.
func (s *JobScheduler) Register(spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	handle, err := s.scheduler.NewJob(
		gocron.CronJob(spec, false),
		gocron.NewTask(s.runJob, job),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule %s (%q): %w", name, spec, err)
	}

	s.jobs[name] = job
	s.handles[name] = handle
	s.specs[name] = spec
	logging.L().Infof("✅ [SCHEDULER] Registered job %s (%s)", name, spec)
	return nil
}

// Start begins firing registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
	logging.L().Infof("🚀 [SCHEDULER] Started with %d jobs", len(s.jobs))
}

// Stop cancels running jobs and waits for them to return
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	logging.L().Info("✅ [SCHEDULER] Stopped")
	return nil
}

// RunNow runs the named job synchronously, outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	job, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %q not found", name)
	}
	return job.Run(s.ctx)
}

func (s *JobScheduler) runJob(job Job) {
	log := logging.L().WithField("job", job.Name())
	log.Info("▶️ [SCHEDULER] Running job")
	started := time.Now()

	if err := job.Run(s.ctx); err != nil {
		log.WithError(err).Error("❌ [SCHEDULER] Job failed")
		return
	}
	log.Infof("✅ [SCHEDULER] Job completed in %v", time.Since(started).Round(time.Millisecond))
}

// JobStatus describes one registered job
type JobStatus struct {
	Name        string    `json:"name"`
	Schedule    string    `json:"schedule"`
	NextRunTime time.Time `json:"next_run_time,omitempty"`
	LastRunTime time.Time `json:"last_run_time,omitempty"`
}

// GetStatus returns the registered jobs and their next run times
func (s *JobScheduler) GetStatus() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make(map[string]JobStatus, len(s.jobs))
	for name, handle := range s.handles {
		st := JobStatus{Name: name, Schedule: s.specs[name]}
		if next, err := handle.NextRun(); err == nil {
			st.NextRunTime = next
		}
		if last, err := handle.LastRun(); err == nil {
			st.LastRunTime = last
		}
		status[name] = st
	}
	return status
}
