// ============================================================================
// sysmasterd Target Sub-Manager
// ============================================================================
//
// Package: internal/submanager/target
// File: target.go
// Purpose: The target kind's sub-manager (spec §4.6): targets have no
//          runtime state of their own beyond the dependency graph they
//          anchor, so this is the thinnest sub-manager - it exists purely
//          to supply the well-known synchronization points every other
//          kind can Wants=/Requires= against.
//
// Grounded on original_source/coms/target/src/target_comm.rs: TargetState
// is just Dead/Active (no per-unit data beyond that), mirrored here as the
// core's own unit.ActiveState rather than a parallel enum.
//
// ============================================================================

package target

import "github.com/ChuLiYu/sysmasterd/internal/restation"

// Manager is the target kind's sub-manager. It carries no per-unit
// configuration (a target unit's only "content" is its dependency edges,
// which live in pkg/depgraph, not here).
type Manager struct {
	restation.NoopStation
}

// New creates the target sub-manager.
func New() *Manager { return &Manager{} }

// EnumeratePerpetual returns the well-known synchronization targets every
// installation provides regardless of what unit files exist on disk.
func (m *Manager) EnumeratePerpetual() []string {
	return []string{
		"basic.target",
		"multi-user.target",
		"graphical.target",
		"shutdown.target",
		"reboot.target",
		"poweroff.target",
		"emergency.target",
	}
}

// Enumerate: targets are declared entirely by unit files; there is no
// external source to scan.
func (m *Manager) Enumerate() ([]string, error) { return nil, nil }

// PrivateSection names the transient-unit config section this kind owns.
func (m *Manager) PrivateSection() string { return "Target" }
