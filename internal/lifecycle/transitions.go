// ============================================================================
// sysmasterd Unit Lifecycle
// ============================================================================
//
// Package: internal/lifecycle
// File: transitions.go
// Purpose: The per-unit active-state machine from spec §4.4: the allowed
//          edge table and the guard that keeps a unit off it until it has
//          actually loaded.
//
// ============================================================================

package lifecycle

import (
	"fmt"

	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// edges enumerates every legal Active transition. Maintenance is reachable
// only from Failed (mount remount path) and returns only to Failed; the
// diagram in spec §4.4 draws this as the "Failed <---- Maintenance" loop.
var edges = map[unit.ActiveState][]unit.ActiveState{
	unit.Inactive:     {unit.Activating},
	unit.Activating:   {unit.Active, unit.Failed},
	unit.Active:       {unit.Deactivating, unit.Reloading},
	unit.Reloading:    {unit.Active, unit.Failed},
	unit.Deactivating: {unit.Inactive, unit.Failed},
	unit.Failed:       {unit.Inactive, unit.Maintenance},
	unit.Maintenance:  {unit.Failed},
}

// allowed reports whether from->to is a legal single edge.
func allowed(from, to unit.ActiveState) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// validate checks the spec §3 invariant (loaded before any transition other
// than entering Failed) plus edge legality.
func validate(u *unit.Unit, to unit.ActiveState) error {
	if to != unit.Failed && !u.CanTransitionLifecycle() {
		return fmt.Errorf("lifecycle: %s is not loaded, cannot transition to %s", u.ID, to)
	}
	if !allowed(u.Active, to) {
		return fmt.Errorf("lifecycle: %s has no edge %s -> %s", u.ID, u.Active, to)
	}
	return nil
}
