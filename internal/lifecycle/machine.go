// ============================================================================
// sysmasterd Unit Lifecycle
// ============================================================================
//
// Package: internal/lifecycle
// File: machine.go
// Purpose: The notifier that drives every Active-state transition through
//          its four mandated steps (spec §4.4): update state, write the
//          last-frame breadcrumb, propagate to the job engine, dispatch to
//          the owning sub-manager's observer.
//
// Grounded on internal/controller.Controller's role as the single place
// that sequences a multi-step operation across collaborators (job manager,
// worker pool, snapshot) in the teacher repo - Machine plays the same role
// here, just for one unit's state instead of one job's lifecycle.
//
// ============================================================================

package lifecycle

import (
	"sync"

	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/internal/restation"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// Propagator is the job engine's half of the notifier contract: told about
// every completed transition so it can run propagation (spec §4.5).
type Propagator interface {
	OnUnitStateChanged(unitID string, from, to unit.ActiveState)
}

// Observer is a sub-manager's half of the notifier contract.
type Observer interface {
	OnUnitStateChanged(u *unit.Unit, from, to unit.ActiveState)
}

type noopPropagator struct{}

func (noopPropagator) OnUnitStateChanged(string, unit.ActiveState, unit.ActiveState) {}

// Machine drives Active-state transitions for every unit in reg.
type Machine struct {
	mu sync.Mutex

	reg  *registry.Registry
	last *restation.Last
	prop Propagator
	obs  map[unit.Kind]Observer
}

// New creates a Machine. last may be nil (no breadcrumb persistence, as in
// tests); prop may be nil (no job engine wired yet).
func New(reg *registry.Registry, last *restation.Last, prop Propagator) *Machine {
	if prop == nil {
		prop = noopPropagator{}
	}
	return &Machine{
		reg:  reg,
		last: last,
		prop: prop,
		obs:  make(map[unit.Kind]Observer),
	}
}

// RegisterObserver installs the sub-manager observer for kind k.
func (m *Machine) RegisterObserver(k unit.Kind, obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs[k] = obs
}

// Transition drives u to target, running all four notifier steps. op and
// detail refine the breadcrumb's domain tag (e.g. op="start", detail=target
// state) so compensate() can tell what was interrupted.
func (m *Machine) Transition(u *unit.Unit, target unit.ActiveState, op string) error {
	if err := validate(u, target); err != nil {
		return err
	}

	from := u.Active

	if m.last != nil {
		m.last.SetUnit(u.ID)
		m.last.SetFrame(restation.DomainJobRun, op, string(target))
	}

	// (a) update the active-state table
	u.Active = target

	// (b) breadcrumb already written above, before the mutation, so a crash
	// mid-transition finds the pre-transition state still recorded as "in
	// progress" rather than silently looking like it never started.

	if m.last != nil {
		m.last.ClearFrame()
		m.last.ClearUnit()
	}

	if m.reg != nil {
		m.reg.PublishActiveChanged(u.ID)
	}

	// (c) propagate to the job engine
	m.prop.OnUnitStateChanged(u.ID, from, target)

	// (d) dispatch to the sub-manager's observer
	m.mu.Lock()
	obs := m.obs[u.Kind]
	m.mu.Unlock()
	if obs != nil {
		obs.OnUnitStateChanged(u, from, target)
	}

	return nil
}

// Fail is a convenience for entering Failed from any state with a Failed
// edge (Activating, Reloading, Deactivating, Maintenance); from any other
// state the edge check rejects it. validate's load-state guard is already
// skipped for target==Failed per spec §3.
func (m *Machine) Fail(u *unit.Unit, reason string) error {
	u.StatusText = reason
	return m.Transition(u, unit.Failed, "fail")
}
