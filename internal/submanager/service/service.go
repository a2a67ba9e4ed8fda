// ============================================================================
// sysmasterd Service Sub-Manager
// ============================================================================
//
// Package: internal/submanager/service
// File: service.go
// Purpose: The service kind's sub-manager (spec §4.6): owns ExecStart/
//          ExecStop command lines, the running main pid per unit, and the
//          manager-wide notify socket path that Type=notify units export as
//          NOTIFY_SOCKET.
//
// Grounded on original_source/core/coms/service/src/{config.rs,pid.rs,
// spawn.rs}: ServiceConfig's Type/ExecStart/WatchdogSec fields, ServicePid's
// main-pid-per-unit bookkeeping (here folded into the rentry table rather
// than a separate struct, since internal/restation.Table already gives a
// persisted map keyed by unit id), and ServiceSpawn.start_service's
// MAINPID/NOTIFY_SOCKET environment wiring, now built via internal/spawner.
//
// ============================================================================

package service

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/ChuLiYu/sysmasterd/internal/restation"
	"github.com/ChuLiYu/sysmasterd/internal/spawner"
)

// Type is the service's ExecStart/notification contract (spec's ServiceType).
type Type string

const (
	TypeSimple  Type = "simple"
	TypeForking Type = "forking"
	TypeNotify  Type = "notify"
	TypeOneshot Type = "oneshot"
)

// Config is one unit's Service section.
type Config struct {
	ExecStart        []string
	ExecStop         []string
	ExecReload       []string
	WorkingDirectory string
	Type             Type
	User             string
	Group            string
}

// runState is the persisted, per-unit piece of a service's live state:
// everything needed to resume monitoring a running process across re-exec.
type runState struct {
	MainPID int
}

// Manager is the service kind's sub-manager.
type Manager struct {
	restation.NoopStation

	mu      sync.Mutex
	configs map[string]Config
	rentry  *restation.Table[runState]

	spawn        spawner.Spawner
	notifySocket string
}

// New creates the service sub-manager, registering its rentry table ("srv-mng")
// against store so main-pid bookkeeping survives re-exec.
func New(store *restation.Store, spawn spawner.Spawner, notifySocketPath string) (*Manager, error) {
	t, err := restation.RegisterTable[runState](store, "srv-mng")
	if err != nil {
		return nil, fmt.Errorf("submanager/service: %w", err)
	}
	return &Manager{
		configs:      make(map[string]Config),
		rentry:       t,
		spawn:        spawn,
		notifySocket: notifySocketPath,
	}, nil
}

// SetConfig installs or replaces unitID's Service section.
func (m *Manager) SetConfig(unitID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[unitID] = cfg
}

// EnumeratePerpetual: the service kind has no well-known units of its own.
func (m *Manager) EnumeratePerpetual() []string { return nil }

// Enumerate: services are declared entirely by unit files; there is no
// external source to scan (unlike mounts, which discover from the kernel).
func (m *Manager) Enumerate() ([]string, error) { return nil, nil }

// PrivateSection names the transient-unit config section this kind owns.
func (m *Manager) PrivateSection() string { return "Service" }

// ErrNoConfig is returned by Start when unitID has no Service config.
var ErrNoConfig = fmt.Errorf("submanager/service: no config for unit")

// ErrEmptyExecStart is returned when ExecStart has no command.
var ErrEmptyExecStart = fmt.Errorf("submanager/service: empty ExecStart")

// Start spawns unitID's ExecStart command and records the resulting pid in
// the rentry table so MainPID survives a crash/re-exec.
func (m *Manager) Start(unitID string) (int, error) {
	m.mu.Lock()
	cfg, ok := m.configs[unitID]
	m.mu.Unlock()
	if !ok {
		return 0, ErrNoConfig
	}
	if len(cfg.ExecStart) == 0 {
		return 0, ErrEmptyExecStart
	}

	spec := spawner.Spec{
		Path:             cfg.ExecStart[0],
		Args:             cfg.ExecStart[1:],
		WorkingDirectory: cfg.WorkingDirectory,
		User:             cfg.User,
		Group:            cfg.Group,
	}
	if cfg.Type == TypeNotify {
		spec.NotifySocket = m.notifySocket
	}

	pid, err := m.spawn.Spawn(spec)
	if err != nil {
		return 0, err
	}
	m.rentry.Insert(unitID, runState{MainPID: pid})
	return pid, nil
}

// MainPID reports the last pid recorded for unitID, if any.
func (m *Manager) MainPID(unitID string) (int, bool) {
	rs, ok := m.rentry.Get(unitID)
	if !ok || rs.MainPID <= 0 {
		return 0, false
	}
	return rs.MainPID, true
}

// ClearMainPID drops unitID's recorded pid, e.g. once it has been reaped.
func (m *Manager) ClearMainPID(unitID string) {
	m.rentry.Remove(unitID)
}

// DBCompensateHistory prunes rentry entries whose pid is no longer a live
// process: a signal 0 probe that survived re-exec but whose process
// actually exited during the gap between crash and recovery.
func (m *Manager) DBCompensateHistory() {
	for unitID, rs := range m.rentry.Entries() {
		if rs.MainPID <= 0 {
			continue
		}
		proc, err := os.FindProcess(rs.MainPID)
		if err != nil {
			m.rentry.Remove(unitID)
			continue
		}
		// signal 0 probes for existence without actually signaling the process.
		if proc.Signal(syscall.Signal(0)) != nil {
			m.rentry.Remove(unitID)
		}
	}
}
