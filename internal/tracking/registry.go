package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

const (
	// DefaultFirstDelay is the delay before a newly enabled job's first tick.
	DefaultFirstDelay = 5 * time.Second

	// DefaultInterval is the repeat interval of a poll job.
	DefaultInterval = 60 * time.Second
)

// RegistryConfig controls job timing.
type RegistryConfig struct {
	FirstDelay time.Duration
	Interval   time.Duration
}

// RegistryHooks receives job table changes. Nil fields are skipped.
type RegistryHooks struct {
	OnJobsChanged func(active int)
}

// JobHandle describes an active poll job.
type JobHandle struct {
	ID      uuid.UUID `json:"id"`
	Owner   OwnerID   `json:"owner"`
	Cabinet string    `json:"cabinet"`
	Since   time.Time `json:"since"`
}

type pairKey struct {
	owner   OwnerID
	cabinet string
}

type job struct {
	handle  JobHandle
	target  Target
	stopped atomic.Bool
}

// Registry owns the tracking flag of every (owner, cabinet) pair and the poll
// job that exists while the flag is on. There is at most one job per pair.
type Registry struct {
	sched   JobScheduler
	poller  *Poller
	records *Records
	logger  log.Logger
	cfg     RegistryConfig
	hooks   RegistryHooks

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[pairKey]*job

	// serialises Toggle so two concurrent toggles of one pair cannot both
	// observe the same state
	toggleMu sync.Mutex
}

// NewRegistry creates a Registry. Ticks run with a context derived from ctx
// that is detached from its cancellation and cancelled by Shutdown.
func NewRegistry(ctx context.Context, sched JobScheduler, poller *Poller, records *Records, logger log.Logger, cfg RegistryConfig, hooks RegistryHooks) *Registry {
	if sched == nil {
		panic(xerrors.New("job scheduler is required"))
	}
	if poller == nil {
		panic(xerrors.New("poller is required"))
	}
	if records == nil {
		panic(xerrors.New("records are required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.FirstDelay < 0 {
		cfg.FirstDelay = DefaultFirstDelay
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	tickCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	return &Registry{
		sched:   sched,
		poller:  poller,
		records: records,
		logger:  logger,
		cfg:     cfg,
		hooks:   hooks,
		ctx:     tickCtx,
		cancel:  cancel,
		jobs:    make(map[pairKey]*job),
	}
}

// Enable starts a poll job for the cabinet and persists its tracking flag.
// It returns ErrAlreadyTracking, with the existing handle, if the pair
// already has a job.
func (r *Registry) Enable(ctx context.Context, owner OwnerID, cab Cabinet) (JobHandle, error) {
	h, err := r.arm(owner, cab)
	if err != nil {
		return h, err
	}
	if err := r.records.SetTracking(ctx, owner, cab.Name, true); err != nil {
		r.disarm(ctx, owner, cab.Name)
		return JobHandle{}, fmt.Errorf("persist tracking flag: %w", err)
	}
	r.logger.Info(ctx, "tracking enabled",
		"owner", string(owner),
		"cabinet", cab.Name,
		"job_id", h.ID.String(),
		"first_delay", r.cfg.FirstDelay.String(),
		"interval", r.cfg.Interval.String(),
	)
	return h, nil
}

// Disable stops the pair's job if there is one and persists the flag as off.
// It never fails: problems are logged, so it is safe to call repeatedly.
// No tick of the job starts after Disable returns.
func (r *Registry) Disable(ctx context.Context, owner OwnerID, cabinet string) {
	if !r.disarm(ctx, owner, cabinet) {
		r.logger.Info(ctx, "disable requested with no active job", "owner", string(owner), "cabinet", cabinet)
	}
	if err := r.records.SetTracking(ctx, owner, cabinet, false); err != nil {
		r.logger.Error(ctx, err, "failed to persist tracking flag", "owner", string(owner), "cabinet", cabinet)
		return
	}
	r.logger.Info(ctx, "tracking disabled", "owner", string(owner), "cabinet", cabinet)
}

// IsTracking reports whether the pair has an active job.
func (r *Registry) IsTracking(owner OwnerID, cabinet string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[pairKey{owner, cabinet}]
	return ok
}

// Toggle flips tracking for the cabinet matching name and returns the new state.
func (r *Registry) Toggle(ctx context.Context, owner OwnerID, name string) (bool, error) {
	r.toggleMu.Lock()
	defer r.toggleMu.Unlock()

	cab, err := r.records.Cabinet(ctx, owner, name)
	if err != nil {
		return false, err
	}

	if r.IsTracking(owner, cab.Name) {
		r.Disable(ctx, owner, cab.Name)
		return false, nil
	}

	if _, err := r.Enable(ctx, owner, cab); err != nil && !errors.Is(err, ErrAlreadyTracking) {
		return false, err
	}
	return true, nil
}

// Rename moves a running job to the cabinet's new name and key. The tracking
// flag itself is moved by Records.EditCabinet.
func (r *Registry) Rename(ctx context.Context, owner OwnerID, before, after Cabinet) error {
	if before == after || !r.IsTracking(owner, before.Name) {
		return nil
	}
	r.disarm(ctx, owner, before.Name)
	if _, err := r.arm(owner, after); err != nil {
		return fmt.Errorf("re-arm renamed cabinet: %w", err)
	}
	r.logger.Info(ctx, "tracking job re-keyed",
		"owner", string(owner),
		"from", before.Name,
		"to", after.Name,
	)
	return nil
}

// Rearm starts a job for every persisted pair whose tracking flag is on.
// Failures for one owner are logged and do not stop the others.
func (r *Registry) Rearm(ctx context.Context) (int, error) {
	owners, err := r.records.Owners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}
	armed := 0
	for _, owner := range owners {
		rec, err := r.records.Get(ctx, owner)
		if err != nil {
			r.logger.Error(ctx, err, "failed to load owner for rearm", "owner", string(owner))
			continue
		}
		for _, cab := range rec.Cabinets {
			if !rec.Tracking[cab.Name] {
				continue
			}
			if _, err := r.arm(owner, cab); err != nil && !errors.Is(err, ErrAlreadyTracking) {
				r.logger.Error(ctx, err, "failed to rearm tracking job", "owner", string(owner), "cabinet", cab.Name)
				continue
			}
			armed++
		}
	}
	return armed, nil
}

// ClearFlags turns every persisted tracking flag off. It is the restart
// policy used when jobs are not re-armed.
func (r *Registry) ClearFlags(ctx context.Context) error {
	owners, err := r.records.Owners(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}
	var errs []error
	for _, owner := range owners {
		err := r.records.Update(ctx, owner, func(rec *Record) error {
			changed := false
			for name, on := range rec.Tracking {
				if on {
					rec.Tracking[name] = false
					changed = true
				}
			}
			if !changed {
				return errNoChange
			}
			return nil
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Jobs returns the active jobs sorted by owner and cabinet.
func (r *Registry) Jobs() []JobHandle {
	r.mu.Lock()
	out := make([]JobHandle, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j.handle)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, k int) bool {
		if out[i].Owner != out[k].Owner {
			return out[i].Owner < out[k].Owner
		}
		return out[i].Cabinet < out[k].Cabinet
	})
	return out
}

// Shutdown stops every job without touching persisted flags, so the next
// start can re-arm them, and cancels in-flight ticks.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	jobs := r.jobs
	r.jobs = make(map[pairKey]*job)
	r.mu.Unlock()

	for _, j := range jobs {
		j.stopped.Store(true)
		if err := r.sched.Remove(j.handle.ID); err != nil {
			r.logger.Warn(ctx, "failed to remove poll job", "job_id", j.handle.ID.String(), "error", err)
		}
	}
	r.cancel()
	r.jobsChanged(0)
}

func (r *Registry) arm(owner OwnerID, cab Cabinet) (JobHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{owner, cab.Name}
	if existing, ok := r.jobs[key]; ok {
		return existing.handle, ErrAlreadyTracking
	}

	j := &job{target: Target{Owner: owner, Cabinet: cab.Name, Key: cab.Key}}
	id, err := r.sched.Schedule(jobName(owner, cab.Name), r.cfg.FirstDelay, r.cfg.Interval, func() { r.run(j) })
	if err != nil {
		return JobHandle{}, err
	}
	j.handle = JobHandle{ID: id, Owner: owner, Cabinet: cab.Name, Since: time.Now()}
	r.jobs[key] = j
	r.jobsChangedLocked()
	return j.handle, nil
}

func (r *Registry) disarm(ctx context.Context, owner OwnerID, cabinet string) bool {
	r.mu.Lock()
	key := pairKey{owner, cabinet}
	j, ok := r.jobs[key]
	if ok {
		j.stopped.Store(true)
		delete(r.jobs, key)
		r.jobsChangedLocked()
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	if err := r.sched.Remove(j.handle.ID); err != nil {
		r.logger.Warn(ctx, "failed to remove poll job", "job_id", j.handle.ID.String(), "error", err)
	}
	return true
}

func (r *Registry) run(j *job) {
	if j.stopped.Load() {
		return
	}
	r.poller.Tick(r.ctx, j.target)
}

func (r *Registry) jobsChangedLocked() {
	r.jobsChanged(len(r.jobs))
}

func (r *Registry) jobsChanged(n int) {
	if r.hooks.OnJobsChanged != nil {
		r.hooks.OnJobsChanged(n)
	}
}

func jobName(owner OwnerID, cabinet string) string {
	return fmt.Sprintf("track_%s_%s", owner, cabinet)
}
