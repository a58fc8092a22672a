package tracking

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// JobScheduler runs recurring jobs. Registry depends on this interface so
// tests can drive ticks by hand.
type JobScheduler interface {
	Schedule(name string, first, every time.Duration, fn func()) (uuid.UUID, error)
	Remove(id uuid.UUID) error
}

// Scheduler wraps a gocron scheduler for per-cabinet poll jobs.
type Scheduler struct {
	scheduler gocron.Scheduler
}

// NewScheduler creates a new scheduler instance. Call Start to begin running jobs.
func NewScheduler() (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.scheduler.Start()
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.scheduler.Shutdown()
}

// Schedule registers fn to run first after the given delay and then every
// interval. Runs never overlap: if a run is still in flight when the next
// one is due, that run is skipped and rescheduled.
func (s *Scheduler) Schedule(name string, first, every time.Duration, fn func()) (uuid.UUID, error) {
	startAt := gocron.WithStartImmediately()
	if first > 0 {
		startAt = gocron.WithStartDateTime(time.Now().Add(first))
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(startAt),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create poll job %s: %w", name, err)
	}
	return job.ID(), nil
}

// Remove cancels a job. Pending runs of the job will not start afterwards.
func (s *Scheduler) Remove(id uuid.UUID) error {
	return s.scheduler.RemoveJob(id)
}
