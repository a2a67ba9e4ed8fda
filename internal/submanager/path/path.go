// ============================================================================
// sysmasterd Path Sub-Manager
// ============================================================================
//
// Package: internal/submanager/path
// File: path.go
// Purpose: The path kind's sub-manager (spec §4.6): PathExists/
//          PathChanged conditions that trigger the unit named in Unit=.
//          Polling-based, since inotify wiring belongs to the dispatcher's
//          I/O-source registration (the caller's job), not this package.
//
// Grounded on spec §9's design notes (closed tagged-union of kinds, one
// package per kind) and original_source/coms/target/src/target_comm.rs's
// rentry shape, generalized from "last known Dead/Active" to "last known
// stat mtime/existence" for detecting PathChanged/PathExists transitions.
//
// ============================================================================

package path

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ChuLiYu/sysmasterd/internal/restation"
)

// Condition is the kind of path trigger configured.
type Condition string

const (
	ConditionExists  Condition = "exists"
	ConditionChanged Condition = "changed"
)

// Config is one unit's Path section.
type Config struct {
	Path      string
	Condition Condition
	Unit      string // unit id to start when the condition is met
}

// pathState is the persisted, per-unit last-observed snapshot used to
// detect a PathChanged transition across polls.
type pathState struct {
	Existed bool
	ModTime time.Time
}

// Manager is the path kind's sub-manager.
type Manager struct {
	restation.NoopStation

	mu      sync.Mutex
	configs map[string]Config
	rentry  *restation.Table[pathState]
}

// New creates the path sub-manager, registering its rentry table
// ("path-mng") against store.
func New(store *restation.Store) (*Manager, error) {
	t, err := restation.RegisterTable[pathState](store, "path-mng")
	if err != nil {
		return nil, fmt.Errorf("submanager/path: %w", err)
	}
	return &Manager{configs: make(map[string]Config), rentry: t}, nil
}

// SetConfig installs or replaces unitID's Path section.
func (m *Manager) SetConfig(unitID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[unitID] = cfg
}

func (m *Manager) EnumeratePerpetual() []string { return nil }
func (m *Manager) Enumerate() ([]string, error) { return nil, nil }
func (m *Manager) PrivateSection() string       { return "Path" }

// ErrNoConfig is returned by Poll when unitID has no Path config.
var ErrNoConfig = fmt.Errorf("submanager/path: no config for unit")

// Poll stats unitID's configured path and reports whether its condition is
// newly satisfied since the last Poll call, updating the rentry snapshot
// either way.
func (m *Manager) Poll(unitID string) (triggered bool, err error) {
	m.mu.Lock()
	cfg, ok := m.configs[unitID]
	m.mu.Unlock()
	if !ok {
		return false, ErrNoConfig
	}

	info, statErr := os.Stat(cfg.Path)
	exists := statErr == nil
	var modTime time.Time
	if exists {
		modTime = info.ModTime()
	}

	prev, hadPrev := m.rentry.Get(unitID)
	m.rentry.Insert(unitID, pathState{Existed: exists, ModTime: modTime})

	switch cfg.Condition {
	case ConditionExists:
		return exists && (!hadPrev || !prev.Existed), nil
	case ConditionChanged:
		return exists && hadPrev && prev.Existed && modTime.After(prev.ModTime), nil
	default:
		return false, fmt.Errorf("submanager/path: unit %s has unknown condition %q", unitID, cfg.Condition)
	}
}
