// ============================================================================
// sysmasterd Unit Registry
// ============================================================================
//
// Package: internal/registry
// File: registry.go
// Purpose: The unit registry from spec §4.2 - by-name primary storage for
//          every known unit plus a by-kind secondary index, the load queue,
//          and the load() pipeline that turns a bare unit name into a
//          resident Unit.
//
// Grounded on internal/jobmanager.JobManager's hybrid design: one map is
// the single source of truth (units), secondary indexes (byKind, loadQueue)
// exist purely to make common queries fast and are kept in lockstep with it
// under the same mutex.
//
// ============================================================================

package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

var (
	// ErrUnitExists is returned by Add when a unit with that ID is already resident.
	ErrUnitExists = errors.New("registry: unit already exists")
	// ErrUnitNotFound is returned when the named unit is not resident.
	ErrUnitNotFound = errors.New("registry: unit not found")
	// ErrNoLoader names the case of a kind with no LoadFunc set; the load
	// pipeline does not return it and marks such a unit LoadNotFound instead.
	ErrNoLoader = errors.New("registry: no loader registered for kind")
)

// LoadFunc builds a resident *unit.Unit for name, typically by reading and
// parsing its fragment from disk. Returning unit.ErrFragmentNotFound signals
// the unit has no fragment and should be left in unit.LoadNotFound.
type LoadFunc func(name string) (*unit.Unit, error)

// Registry is the by-name unit map plus the indexes and pipelines built on
// top of it (spec's "Unit Registry").
type Registry struct {
	mu sync.RWMutex

	units  map[string]*unit.Unit            // primary storage, single source of truth
	byKind map[unit.Kind]map[string]struct{} // secondary index for Enumerate(kind)

	loaders map[unit.Kind]LoadFunc

	loadQueue []string // FIFO of unit names awaiting load(), drained once per wakeup

	subs *subscriptions
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		units:   make(map[string]*unit.Unit),
		byKind:  make(map[unit.Kind]map[string]struct{}),
		loaders: make(map[unit.Kind]LoadFunc),
		subs:    newSubscriptions(),
	}
}

// RegisterLoader installs the LoadFunc used for every unit of kind k. Called
// once per kind at startup, by each internal/submanager implementation.
func (r *Registry) RegisterLoader(k unit.Kind, fn LoadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaders[k] = fn
}

// Get returns the resident unit named name, if any.
func (r *Registry) Get(name string) (*unit.Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.units[name]
	return u, ok
}

// Enumerate returns every resident unit of kind k. The returned slice is a
// snapshot; mutating the registry afterward does not affect it.
func (r *Registry) Enumerate(k unit.Kind) []*unit.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byKind[k]
	out := make([]*unit.Unit, 0, len(ids))
	for id := range ids {
		out = append(out, r.units[id])
	}
	return out
}

// All returns every resident unit, snapshotted.
func (r *Registry) All() []*unit.Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*unit.Unit, 0, len(r.units))
	for _, u := range r.units {
		out = append(out, u)
	}
	return out
}

// insert adds u to the primary map and its kind index. Caller holds r.mu.
func (r *Registry) insert(u *unit.Unit) {
	r.units[u.ID] = u
	if r.byKind[u.Kind] == nil {
		r.byKind[u.Kind] = make(map[string]struct{})
	}
	r.byKind[u.Kind][u.ID] = struct{}{}
}

// Add registers a freshly minted unit (LoadState Stub, ActiveState
// Inactive) under name, enqueuing it for the load pipeline. Returns
// ErrUnitExists if name is already resident.
func (r *Registry) Add(name string) (*unit.Unit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.units[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrUnitExists, name)
	}
	u, err := unit.New(name)
	if err != nil {
		return nil, err
	}
	r.insert(u)
	r.loadQueue = append(r.loadQueue, name)
	r.subs.publish(Event{Kind: EventAdded, UnitID: name})
	return u, nil
}

// Remove drops name from the registry entirely. Callers are responsible for
// having already driven the unit to an inactive, job-free state.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, exists := r.units[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnitNotFound, name)
	}
	delete(r.units, name)
	if set := r.byKind[u.Kind]; set != nil {
		delete(set, name)
	}
	r.subs.publish(Event{Kind: EventRemoved, UnitID: name})
	return nil
}
