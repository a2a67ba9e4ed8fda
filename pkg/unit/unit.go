// ============================================================================
// sysmasterd Unit Model
// ============================================================================
//
// Package: pkg/unit
// File: unit.go
// Purpose: Core domain model for the entity the manager schedules: a unit.
//
// Design Principles:
//   1. Composition over inheritance - Unit embeds UnitBase; kind-specific
//      config/runtime lives in each kind's sub-manager, keyed by unit id,
//      not in Unit; there is no unit hierarchy.
//   2. Weak back-references - a Unit never points back at the registry or
//      at the job that is currently driving it; callers resolve those by
//      id through the owning component instead.
//   3. JSON serialization - UnitBase round-trips through the reliability
//      store the same way pkg/types.Job does in the teacher repo.
//
// Naming:
//   A unit id has the form "<stem>.<kind>", e.g. "nginx.service".
//
// ============================================================================

package unit

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFragmentNotFound is the sentinel a registry.LoadFunc returns when a
// unit has no fragment on disk; the registry maps it to LoadNotFound rather
// than LoadError.
var ErrFragmentNotFound = errors.New("unit: fragment not found")

// Kind is a unit's sub-type tag.
type Kind string

const (
	KindService Kind = "service"
	KindSocket  Kind = "socket"
	KindMount   Kind = "mount"
	KindTarget  Kind = "target"
	KindTimer   Kind = "timer"
	KindPath    Kind = "path"
)

// Kinds lists every kind the core knows how to schedule, in enumeration order.
func Kinds() []Kind {
	return []Kind{KindService, KindSocket, KindMount, KindTarget, KindTimer, KindPath}
}

func (k Kind) Valid() bool {
	switch k {
	case KindService, KindSocket, KindMount, KindTarget, KindTimer, KindPath:
		return true
	default:
		return false
	}
}

// LoadState tracks how far a unit has progressed through the load pipeline.
type LoadState string

const (
	LoadStub     LoadState = "stub"     // referenced but never loaded
	LoadLoaded   LoadState = "loaded"   // file parsed, dependencies resolved
	LoadNotFound LoadState = "not-found"
	LoadError    LoadState = "error"
	LoadMasked   LoadState = "masked"
)

// ActiveState is the unit lifecycle state from spec §4.4.
type ActiveState string

const (
	Inactive     ActiveState = "inactive"
	Activating   ActiveState = "activating"
	Active       ActiveState = "active"
	Reloading    ActiveState = "reloading"
	Deactivating ActiveState = "deactivating"
	Failed       ActiveState = "failed"
	Maintenance  ActiveState = "maintenance"
)

// EmergencyAction is one of the three configurable reactions in spec §4.4.
type EmergencyAction string

const (
	ActionNone             EmergencyAction = "none"
	ActionReboot           EmergencyAction = "reboot"
	ActionRebootForce      EmergencyAction = "reboot-force"
	ActionRebootImmediate  EmergencyAction = "reboot-immediate"
	ActionPoweroff         EmergencyAction = "poweroff"
	ActionPoweroffForce    EmergencyAction = "poweroff-force"
	ActionPoweroffImmediate EmergencyAction = "poweroff-immediate"
	ActionExit             EmergencyAction = "exit"
	ActionExitForce        EmergencyAction = "exit-force"
)

// EmergencyActions bundles the three reactions a unit may configure.
type EmergencyActions struct {
	Success     EmergencyAction `json:"success_action"`
	Failure     EmergencyAction `json:"failure_action"`
	StartLimit  EmergencyAction `json:"start_limit_action"`
}

// FDStoreEntry is one descriptor a service unit asked to keep across re-exec.
type FDStoreEntry struct {
	FD   int    `json:"fd"`
	Name string `json:"name"`
}

// UnitBase is the common payload every kind composes.
type UnitBase struct {
	ID         string      `json:"id"`   // "<stem>.<kind>"
	Kind       Kind        `json:"kind"`
	LoadState  LoadState   `json:"load_state"`
	Active     ActiveState `json:"active_state"`
	SubState   string      `json:"sub_state"` // kind-specific, e.g. "running"
	CGroupPath string      `json:"cgroup_path,omitempty"`

	MainPID    int `json:"main_pid,omitempty"`
	ControlPID int `json:"control_pid,omitempty"`

	FDStore []FDStoreEntry `json:"fd_store,omitempty"`

	StatusText string           `json:"status_text,omitempty"`
	Emergency  EmergencyActions `json:"emergency"`

	// FragmentPath is the unit file this unit was last loaded from, used to
	// decide whether a reload() is a no-op (mtime unchanged).
	FragmentPath  string `json:"fragment_path,omitempty"`
	FragmentMTime int64  `json:"fragment_mtime,omitempty"`
}

// Unit is the scheduler's object of concern. Kind-specific sub-managers hold
// their own keyed-by-id config/runtime maps rather than a payload pointer
// here, so that the core never needs to know what a socket or a mount *is*
// (spec §4.6): Unit only carries the fields the core itself inspects.
type Unit struct {
	UnitBase
}

// New creates a unit in its initial Stub/Inactive state.
func New(id string) (*Unit, error) {
	k, err := KindOf(id)
	if err != nil {
		return nil, err
	}
	return &Unit{UnitBase: UnitBase{
		ID:        id,
		Kind:      k,
		LoadState: LoadStub,
		Active:    Inactive,
	}}, nil
}

// KindOf extracts the kind from a "<stem>.<kind>" id.
func KindOf(id string) (Kind, error) {
	i := strings.LastIndexByte(id, '.')
	if i < 0 || i == len(id)-1 {
		return "", fmt.Errorf("unit: %q has no kind suffix", id)
	}
	k := Kind(id[i+1:])
	if !k.Valid() {
		return "", fmt.Errorf("unit: %q has unknown kind %q", id, k)
	}
	return k, nil
}

// Stem returns the portion of the id before ".<kind>".
func Stem(id string) string {
	i := strings.LastIndexByte(id, '.')
	if i < 0 {
		return id
	}
	return id[:i]
}

// CanTransitionLifecycle reports whether a transition may be attempted; per
// spec §3 the invariant is load_state == Loaded before any transition other
// than entering Failed.
func (u *Unit) CanTransitionLifecycle() bool {
	return u.LoadState == LoadLoaded || u.Active == Failed
}

func (u *Unit) String() string {
	return fmt.Sprintf("%s[%s/%s/%s]", u.ID, u.LoadState, u.Active, u.SubState)
}
