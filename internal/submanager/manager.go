// ============================================================================
// sysmasterd Sub-Manager Contract
// ============================================================================
//
// Package: internal/submanager
// File: manager.go
// Purpose: The kind-specific extension contract from spec §4.6: the core
//          knows only this interface, never what a socket, mount, timer, or
//          service actually is.
//
// Grounded on internal/worker/source.go's JobSource: a small interface the
// core depends on and a concrete adapter supplies, so the core package
// never imports any one kind's package back. Each concrete sub-manager
// (internal/submanager/service, .../socket, .../mount, .../target,
// .../timer, .../path) is that adapter for its kind, the Go rendering of
// sysMaster's overlapping components/, coms/, core/coms/ implementations
// unified into one package per kind as spec §9's Open Questions directs.
//
// ============================================================================

package submanager

import "github.com/ChuLiYu/sysmasterd/internal/restation"

// Manager is the per-kind sub-manager contract from spec §4.6. Every kind
// implements it once and registers the instance with the unit registry and
// the reliability store's Hub at startup.
type Manager interface {
	restation.Station

	// EnumeratePerpetual returns the well-known unit names this kind
	// always provides, regardless of what's on disk (e.g. "-.mount",
	// "basic.target").
	EnumeratePerpetual() []string

	// Enumerate scans kind-specific sources (e.g. /proc/self/mountinfo for
	// mounts) and returns unit names discovered there.
	Enumerate() ([]string, error)

	// PrivateSection returns the name of this kind's configuration
	// section (e.g. "Service", "Socket") for transient-unit writes.
	PrivateSection() string
}
