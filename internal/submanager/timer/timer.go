// ============================================================================
// sysmasterd Timer Sub-Manager
// ============================================================================
//
// Package: internal/submanager/timer
// File: timer.go
// Purpose: The timer kind's sub-manager (spec §4.6): monotonic
//          OnActiveSec/OnUnitActiveSec scheduling for the unit named in
//          Unit=. Calendar specifications (OnCalendar=) are out of scope
//          per spec §9's Open Questions ("the core must expose hooks but
//          need not implement calendar parsing") - NextElapse only
//          computes the monotonic case.
//
// Grounded on original_source/core/coms/timer/src/{comm.rs,unit.rs}'s
// TimerUnitComm/TimerState (last-trigger bookkeeping per unit) and wired to
// internal/dispatch.Dispatcher's RegisterTimer/RegisterTicker by the
// caller, which owns translating NextElapse into an actual scheduled
// callback.
//
// ============================================================================

package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/ChuLiYu/sysmasterd/internal/restation"
)

// Config is one unit's Timer section.
type Config struct {
	OnActiveSec     time.Duration // fires once, this long after the timer unit activates
	OnUnitActiveSec time.Duration // fires repeatedly, this long after Unit last activated
	Unit            string        // unit id to start when the timer elapses
}

// timerState is the persisted, per-unit piece of state: when this timer
// last fired, so OnUnitActiveSec survives re-exec without drifting.
type timerState struct {
	LastTrigger time.Time
}

// Manager is the timer kind's sub-manager.
type Manager struct {
	restation.NoopStation

	mu      sync.Mutex
	configs map[string]Config
	rentry  *restation.Table[timerState]
}

// New creates the timer sub-manager, registering its rentry table
// ("tmr-mng") against store.
func New(store *restation.Store) (*Manager, error) {
	t, err := restation.RegisterTable[timerState](store, "tmr-mng")
	if err != nil {
		return nil, fmt.Errorf("submanager/timer: %w", err)
	}
	return &Manager{configs: make(map[string]Config), rentry: t}, nil
}

// SetConfig installs or replaces unitID's Timer section.
func (m *Manager) SetConfig(unitID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[unitID] = cfg
}

func (m *Manager) EnumeratePerpetual() []string { return nil }
func (m *Manager) Enumerate() ([]string, error) { return nil, nil }
func (m *Manager) PrivateSection() string       { return "Timer" }

// ErrNoConfig is returned by NextElapse when unitID has no Timer config.
var ErrNoConfig = fmt.Errorf("submanager/timer: no config for unit")

// RecordTrigger stores now as unitID's last-trigger time, so a later
// NextElapse computes from it rather than from activation time.
func (m *Manager) RecordTrigger(unitID string, now time.Time) {
	m.rentry.Insert(unitID, timerState{LastTrigger: now})
}

// NextElapse computes the next monotonic deadline for unitID: the sooner
// of activatedAt+OnActiveSec and lastTrigger+OnUnitActiveSec, skipping
// whichever half is unset (zero duration).
func (m *Manager) NextElapse(unitID string, activatedAt time.Time) (time.Time, error) {
	m.mu.Lock()
	cfg, ok := m.configs[unitID]
	m.mu.Unlock()
	if !ok {
		return time.Time{}, ErrNoConfig
	}

	var candidates []time.Time
	if cfg.OnActiveSec > 0 {
		candidates = append(candidates, activatedAt.Add(cfg.OnActiveSec))
	}
	if cfg.OnUnitActiveSec > 0 {
		last := activatedAt
		if st, ok := m.rentry.Get(unitID); ok && !st.LastTrigger.IsZero() {
			last = st.LastTrigger
		}
		candidates = append(candidates, last.Add(cfg.OnUnitActiveSec))
	}

	if len(candidates) == 0 {
		return time.Time{}, fmt.Errorf("submanager/timer: unit %s has no schedule configured", unitID)
	}

	next := candidates[0]
	for _, c := range candidates[1:] {
		if c.Before(next) {
			next = c
		}
	}
	return next, nil
}
