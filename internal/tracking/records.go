package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// errNoChange aborts an Update without saving.
var errNoChange = errors.New("no change")

// Records serialises read-modify-write access to owner records on top of a Store.
// Every mutation loads the full record, applies it and saves the full record
// while holding the owner's lock, so a poll tick and a chat handler never
// interleave their writes.
type Records struct {
	store       Store
	logger      log.Logger
	maxCabinets int

	mu    sync.Mutex
	locks map[OwnerID]*sync.Mutex
}

// NewRecords wraps a Store. maxCabinets <= 0 selects MaxCabinets.
func NewRecords(store Store, maxCabinets int, logger log.Logger) *Records {
	if store == nil {
		panic(xerrors.New("record store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	if maxCabinets <= 0 {
		maxCabinets = MaxCabinets
	}
	return &Records{
		store:       store,
		logger:      logger,
		maxCabinets: maxCabinets,
		locks:       make(map[OwnerID]*sync.Mutex),
	}
}

// MaxCabinets returns the configured per-owner cabinet cap.
func (r *Records) MaxCabinets() int { return r.maxCabinets }

func (r *Records) lockFor(owner OwnerID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	mu, ok := r.locks[owner]
	if !ok {
		mu = &sync.Mutex{}
		r.locks[owner] = mu
	}
	return mu
}

func (r *Records) load(ctx context.Context, owner OwnerID) (*Record, error) {
	rec, ok, err := r.store.Load(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("load owner %s: %w", owner, err)
	}
	if !ok || rec == nil {
		return NewRecord(), nil
	}
	rec.normalize()
	return rec, nil
}

// Get returns a copy of the owner's record, or an empty record for a new owner.
func (r *Records) Get(ctx context.Context, owner OwnerID) (*Record, error) {
	mu := r.lockFor(owner)
	mu.Lock()
	defer mu.Unlock()
	return r.load(ctx, owner)
}

// Update applies fn to the owner's record and saves it. If fn returns an
// error nothing is saved and the error is returned.
func (r *Records) Update(ctx context.Context, owner OwnerID, fn func(*Record) error) error {
	mu := r.lockFor(owner)
	mu.Lock()
	defer mu.Unlock()

	rec, err := r.load(ctx, owner)
	if err != nil {
		return err
	}
	if err := fn(rec); err != nil {
		if errors.Is(err, errNoChange) {
			return nil
		}
		return err
	}
	rec.normalize()
	if err := r.store.Save(ctx, owner, rec); err != nil {
		return fmt.Errorf("save owner %s: %w", owner, err)
	}
	return nil
}

// Owners lists every owner with a persisted record.
func (r *Records) Owners(ctx context.Context) ([]OwnerID, error) {
	return r.store.Owners(ctx)
}

// Cabinet looks a cabinet up by case-insensitive name.
func (r *Records) Cabinet(ctx context.Context, owner OwnerID, name string) (Cabinet, error) {
	rec, err := r.Get(ctx, owner)
	if err != nil {
		return Cabinet{}, err
	}
	i := rec.FindCabinet(name)
	if i < 0 {
		return Cabinet{}, ErrCabinetNotFound
	}
	return rec.Cabinets[i], nil
}

// CanAddCabinet reports whether the owner is below the cabinet cap.
func (r *Records) CanAddCabinet(ctx context.Context, owner OwnerID) (bool, error) {
	rec, err := r.Get(ctx, owner)
	if err != nil {
		return false, err
	}
	return len(rec.Cabinets) < r.maxCabinets, nil
}

// AddCabinet appends a cabinet with tracking off. The cap and name checks
// run before anything is written.
func (r *Records) AddCabinet(ctx context.Context, owner OwnerID, cab Cabinet) error {
	cab.Name = strings.TrimSpace(cab.Name)
	cab.Key = strings.TrimSpace(cab.Key)
	if cab.Name == "" {
		return ErrEmptyCabinetName
	}
	return r.Update(ctx, owner, func(rec *Record) error {
		if len(rec.Cabinets) >= r.maxCabinets {
			return ErrCabinetLimit
		}
		if rec.FindCabinet(cab.Name) >= 0 {
			return ErrDuplicateCabinet
		}
		rec.Cabinets = append(rec.Cabinets, cab)
		rec.Tracking[cab.Name] = false
		return nil
	})
}

// EditCabinet replaces the name and key of the cabinet matching oldName.
// The tracking flag and observed states follow a rename. An empty key in
// upd keeps the current key. It returns the stored cabinet before and after.
func (r *Records) EditCabinet(ctx context.Context, owner OwnerID, oldName string, upd Cabinet) (before, after Cabinet, err error) {
	upd.Name = strings.TrimSpace(upd.Name)
	upd.Key = strings.TrimSpace(upd.Key)
	if upd.Name == "" {
		return Cabinet{}, Cabinet{}, ErrEmptyCabinetName
	}
	err = r.Update(ctx, owner, func(rec *Record) error {
		i := rec.FindCabinet(oldName)
		if i < 0 {
			return ErrCabinetNotFound
		}
		if j := rec.FindCabinet(upd.Name); j >= 0 && j != i {
			return ErrDuplicateCabinet
		}
		before = rec.Cabinets[i]
		if upd.Key == "" {
			upd.Key = before.Key
		}
		after = upd
		rec.Cabinets[i] = after

		if before.Name != after.Name {
			rec.Tracking[after.Name] = rec.Tracking[before.Name]
			delete(rec.Tracking, before.Name)
			if states, ok := rec.CampaignStates[before.Name]; ok {
				rec.CampaignStates[after.Name] = states
				delete(rec.CampaignStates, before.Name)
			}
		}
		return nil
	})
	return before, after, err
}

// SetTracking persists the tracking flag of a cabinet. Unknown cabinets are
// left untouched.
func (r *Records) SetTracking(ctx context.Context, owner OwnerID, name string, on bool) error {
	return r.Update(ctx, owner, func(rec *Record) error {
		i := rec.FindCabinet(name)
		if i < 0 {
			return errNoChange
		}
		cur := rec.Cabinets[i].Name
		if rec.Tracking[cur] == on {
			return errNoChange
		}
		rec.Tracking[cur] = on
		return nil
	})
}

// ApplyPoll diffs a fresh fetch against the stored states of the cabinet and
// replaces them. ok is false when the cabinet no longer exists under that
// name, in which case nothing is written.
func (r *Records) ApplyPoll(ctx context.Context, owner OwnerID, cabinet string, current []Campaign) (events []TransitionEvent, ok bool, err error) {
	err = r.Update(ctx, owner, func(rec *Record) error {
		i := rec.FindCabinet(cabinet)
		if i < 0 || rec.Cabinets[i].Name != cabinet {
			return errNoChange
		}
		var next StateMap
		next, events = Detect(rec.CampaignStates[cabinet], current)
		rec.CampaignStates[cabinet] = next
		ok = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return events, ok, nil
}
