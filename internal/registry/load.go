// ============================================================================
// sysmasterd Unit Registry
// ============================================================================
//
// Package: internal/registry
// File: load.go
// Purpose: The load() pipeline (spec §4.2): drains the FIFO load queue once
//          per dispatcher wakeup, resolving each pending unit name to
//          LoadState Loaded/NotFound/Error via its kind's LoadFunc.
//
// ============================================================================

package registry

import (
	"errors"
	"fmt"

	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// PopLoadQueue drains every name currently queued for loading, in FIFO
// order, clearing the queue. DrainLoadQueue (below) calls it once per pass;
// it is exposed separately for tests and for callers that want to inspect
// names before resolving them.
func (r *Registry) PopLoadQueue() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.loadQueue
	r.loadQueue = nil
	return names
}

// Enqueue re-queues name for loading, e.g. after a fragment file changes on
// disk and the unit needs to be re-parsed.
func (r *Registry) Enqueue(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loadQueue = append(r.loadQueue, name)
}

// DrainLoadQueue resolves every unit currently queued for loading and
// returns the names that changed LoadState. It is meant to be called once
// per dispatcher wakeup (spec §5's defer-priority work).
func (r *Registry) DrainLoadQueue() []string {
	names := r.PopLoadQueue()
	changed := make([]string, 0, len(names))
	for _, name := range names {
		if r.load(name) {
			changed = append(changed, name)
			r.PublishLoadChanged(name)
		}
	}
	return changed
}

// load resolves a single unit's LoadState in place, returning whether it
// changed. A unit with no registered loader for its kind, or whose loader
// returns an error wrapping unit.ErrFragmentNotFound, is marked
// LoadNotFound rather than treated as a pipeline failure - any other loader
// error makes it LoadError.
func (r *Registry) load(name string) bool {
	r.mu.Lock()
	u, exists := r.units[name]
	if !exists {
		r.mu.Unlock()
		return false
	}
	fn, hasLoader := r.loaders[u.Kind]
	r.mu.Unlock()

	if !hasLoader {
		return r.setLoadState(name, unit.LoadNotFound)
	}

	loaded, err := fn(name)
	switch {
	case err == nil:
		return r.applyLoaded(name, loaded)
	case isNotFound(err):
		return r.setLoadState(name, unit.LoadNotFound)
	default:
		return r.setLoadStateWithError(name, unit.LoadError, err)
	}
}

func (r *Registry) applyLoaded(name string, loaded *unit.Unit) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.units[name]
	if !exists {
		return false
	}
	prev := u.LoadState
	u.LoadState = unit.LoadLoaded
	u.FragmentPath = loaded.FragmentPath
	u.FragmentMTime = loaded.FragmentMTime
	return prev != u.LoadState
}

func (r *Registry) setLoadState(name string, state unit.LoadState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, exists := r.units[name]
	if !exists {
		return false
	}
	prev := u.LoadState
	u.LoadState = state
	return prev != state
}

func (r *Registry) setLoadStateWithError(name string, state unit.LoadState, err error) bool {
	changed := r.setLoadState(name, state)
	r.mu.RLock()
	u := r.units[name]
	r.mu.RUnlock()
	if u != nil {
		u.StatusText = fmt.Sprintf("load failed: %v", err)
	}
	return changed
}

func isNotFound(err error) bool {
	return errors.Is(err, unit.ErrFragmentNotFound)
}
