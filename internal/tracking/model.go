package tracking

import (
	"fmt"
	"strings"
)

// MaxCabinets is the default cap on cabinets per owner.
const MaxCabinets = 3

// OwnerID identifies the operator's chat. Telegram chat ids are stored as decimal strings.
type OwnerID string

// Status is a Wildberries campaign status code.
type Status int

const (
	// StatusActive means the campaign is running
	StatusActive Status = 9

	// StatusPaused means the campaign is paused
	StatusPaused Status = 11
)

// Label returns the operator-facing label for a status, falling back to the raw code.
func (s Status) Label() string {
	switch s {
	case StatusActive:
		return "Active ✅"
	case StatusPaused:
		return "Paused ❌"
	default:
		return fmt.Sprintf("%d", int(s))
	}
}

// Cabinet is a named Wildberries account under one owner.
type Cabinet struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// Campaign is a remote advertising campaign as returned by the fetcher.
type Campaign struct {
	AdvertID int64  `json:"advertId"`
	Name     string `json:"name"`
	Status   Status `json:"status"`
}

// StateMap is the last observed status per advert id for one cabinet.
type StateMap map[int64]Status

// TransitionEvent is a detected status change for one campaign between two polls.
type TransitionEvent struct {
	AdvertID int64
	Name     string
	From     Status
	To       Status
}

// Record is the full persisted state of one owner.
type Record struct {
	Cabinets       []Cabinet           `json:"cabinets"`
	Tracking       map[string]bool     `json:"tracking"`
	CampaignStates map[string]StateMap `json:"campaign_states"`
}

// NewRecord returns an empty record with initialized maps.
func NewRecord() *Record {
	return &Record{
		Cabinets:       []Cabinet{},
		Tracking:       make(map[string]bool),
		CampaignStates: make(map[string]StateMap),
	}
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	cp := NewRecord()
	cp.Cabinets = append(cp.Cabinets, r.Cabinets...)
	for name, on := range r.Tracking {
		cp.Tracking[name] = on
	}
	for name, states := range r.CampaignStates {
		m := make(StateMap, len(states))
		for id, st := range states {
			m[id] = st
		}
		cp.CampaignStates[name] = m
	}
	return cp
}

// FindCabinet returns the index of the cabinet whose name matches
// case-insensitively, or -1.
func (r *Record) FindCabinet(name string) int {
	for i, c := range r.Cabinets {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Validate checks the structural invariants of a loaded record.
func (r *Record) Validate() error {
	seen := make(map[string]struct{}, len(r.Cabinets))
	for i, c := range r.Cabinets {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("cabinet %d: empty name", i)
		}
		k := strings.ToLower(c.Name)
		if _, dup := seen[k]; dup {
			return fmt.Errorf("cabinet %q: duplicate name", c.Name)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// normalize fills nil maps and drops tracking flags and states for cabinets
// that no longer exist.
func (r *Record) normalize() {
	if r.Cabinets == nil {
		r.Cabinets = []Cabinet{}
	}
	if r.Tracking == nil {
		r.Tracking = make(map[string]bool)
	}
	if r.CampaignStates == nil {
		r.CampaignStates = make(map[string]StateMap)
	}
	known := make(map[string]struct{}, len(r.Cabinets))
	for _, c := range r.Cabinets {
		known[c.Name] = struct{}{}
	}
	for name := range r.Tracking {
		if _, ok := known[name]; !ok {
			delete(r.Tracking, name)
		}
	}
	for name := range r.CampaignStates {
		if _, ok := known[name]; !ok {
			delete(r.CampaignStates, name)
		}
	}
}
