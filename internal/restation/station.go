// ============================================================================
// sysmasterd Reliability Store
// ============================================================================
//
// Package: internal/restation
// File: station.go
// Purpose: The ReStation protocol every persistent subsystem implements
//          (spec §4.1's "ReStation protocol"), and the Hub that drives it.
//
// Ported from the original implementation's ReStation trait and
// ReliStation registry (core/lib/rel/station.rs): default no-op methods via
// embedding NoopStation, two priority levels walked in order, history
// compensation before last-breadcrumb compensation.
//
// ============================================================================

package restation

import "sync"

// Level is a station's registration priority; Level1 stations are walked
// before Level2 in every Hub-driven pass (e.g. the unit registry maps
// before the job engine).
type Level int

const (
	Level1 Level = iota
	Level2
)

// Station is the interface every persistent subsystem implements to
// cooperate with the reliability store across re-exec and crash recovery.
type Station interface {
	// InputRebuild recreates external subscriptions (re-arm signal/fd/timer
	// sources).
	InputRebuild()
	// DBMap pulls cached state into live objects; reload=true means reuse
	// already-parsed config in memory rather than re-parsing from disk.
	DBMap(reload bool)
	// DBInsert pushes live state into the cache.
	DBInsert()
	// DBCompensateHistory fixes inconsistencies in prior history that this
	// station can detect locally, with no external input.
	DBCompensateHistory()
	// DBCompensateLast fixes the single mid-operation record implied by
	// the breadcrumb, if it concerns this station.
	DBCompensateLast(frame Frame, unit string)
	// DoCompensateLast re-executes the interrupted action implied by the
	// breadcrumb.
	DoCompensateLast(frame Frame, unit string)
	// DoCompensateOthers re-executes any other needed recovery for unit.
	DoCompensateOthers(unit string)
	// EntryColdplug re-establishes external entries on reload.
	EntryColdplug()
	// EntryClear releases external entries on reload.
	EntryClear()
}

// NoopStation gives every method of Station a default no-op body; embed it
// so a concrete station only needs to override what it actually uses -
// the same shape as the original trait's default methods.
type NoopStation struct{}

func (NoopStation) InputRebuild()                             {}
func (NoopStation) DBMap(reload bool)                         {}
func (NoopStation) DBInsert()                                 {}
func (NoopStation) DBCompensateHistory()                      {}
func (NoopStation) DBCompensateLast(frame Frame, unit string) {}
func (NoopStation) DoCompensateLast(frame Frame, unit string) {}
func (NoopStation) DoCompensateOthers(unit string)            {}
func (NoopStation) EntryColdplug()                            {}
func (NoopStation) EntryClear()                               {}

// Hub is the registry of stations that participate in recovery, the Go
// analog of ReliStation: a by-name map plus a by-level grouping.
type Hub struct {
	mu      sync.Mutex
	byName  map[string]Station
	byLevel map[Level][]Station
}

// NewHub creates an empty station hub.
func NewHub() *Hub {
	return &Hub{
		byName:  make(map[string]Station),
		byLevel: make(map[Level][]Station),
	}
}

// Register adds a station under name at the given priority level.
func (h *Hub) Register(name string, level Level, station Station) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.byName[name]; exists {
		return
	}
	h.byName[name] = station
	h.byLevel[level] = append(h.byLevel[level], station)
}

// InputRebuild calls InputRebuild on every registered station.
func (h *Hub) InputRebuild() {
	h.mu.Lock()
	stations := h.allLocked()
	h.mu.Unlock()
	for _, s := range stations {
		s.InputRebuild()
	}
}

// DBMap calls DBMap on every station, Level1 first then Level2.
func (h *Hub) DBMap(reload bool) {
	for _, level := range []Level{Level1, Level2} {
		for _, s := range h.levelLocked(level) {
			s.DBMap(reload)
		}
	}
}

// DBInsert calls DBInsert on every station, Level1 first then Level2.
func (h *Hub) DBInsert() {
	for _, level := range []Level{Level1, Level2} {
		for _, s := range h.levelLocked(level) {
			s.DBInsert()
		}
	}
}

// DBCompensate runs the history-then-last compensation pass (spec's
// compensate()): every station first fixes local history inconsistencies,
// then (if a breadcrumb exists) fixes the single mid-operation record it
// implies.
func (h *Hub) DBCompensate(frame *Frame, unit string) {
	for _, s := range h.allLocked() {
		s.DBCompensateHistory()
	}
	if frame != nil {
		for _, s := range h.allLocked() {
			s.DBCompensateLast(*frame, unit)
		}
	}
}

// MakeConsistent runs the do-compensate pass: re-execute the interrupted
// action first (most untrusted information), then any other recovery.
func (h *Hub) MakeConsistent(frame *Frame, unit string) {
	if frame != nil {
		for _, s := range h.allLocked() {
			s.DoCompensateLast(*frame, unit)
		}
	}
	for _, s := range h.allLocked() {
		s.DoCompensateOthers(unit)
	}
}

// EntryColdplug calls EntryColdplug on every station.
func (h *Hub) EntryColdplug() {
	for _, s := range h.allLocked() {
		s.EntryColdplug()
	}
}

// EntryClear calls EntryClear on every station.
func (h *Hub) EntryClear() {
	for _, s := range h.allLocked() {
		s.EntryClear()
	}
}

func (h *Hub) allLocked() []Station {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Station, 0, len(h.byName))
	for _, level := range []Level{Level1, Level2} {
		out = append(out, h.byLevel[level]...)
	}
	return out
}

func (h *Hub) levelLocked(level Level) []Station {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Station, len(h.byLevel[level]))
	copy(out, h.byLevel[level])
	return out
}
