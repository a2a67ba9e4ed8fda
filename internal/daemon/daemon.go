// ============================================================================
// sysmasterd Manager Daemon
// ============================================================================
//
// Package: internal/daemon
// File: daemon.go
// Purpose: Wires the reliability store, unit registry, lifecycle machine,
//          job engine, dispatcher, spawner, and per-kind sub-managers into
//          the single running manager, and adapts that assembly to the two
//          narrow interfaces the rest of the tree depends on:
//          jobengine.Executor (the job engine's collaborator) and
//          ctlsock.Handler (the control socket's collaborator).
//
// Grounded on internal/controller.Controller's role in the teacher repo:
// the one place that owns every other collaborator's lifecycle and drives
// them in response to external events (there: WAL/snapshot/worker pool;
// here: registry/lifecycle/job engine/sub-managers). Execute's per-kind
// dispatch mirrors internal/worker.Pool's per-job-type dispatch, generalized
// from one Task type to one case per internal/submanager kind.
//
// ============================================================================

package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ChuLiYu/sysmasterd/internal/ctlsock"
	"github.com/ChuLiYu/sysmasterd/internal/jobengine"
	"github.com/ChuLiYu/sysmasterd/internal/lifecycle"
	"github.com/ChuLiYu/sysmasterd/internal/metrics"
	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/internal/restation"
	"github.com/ChuLiYu/sysmasterd/internal/spawner"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/mount"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/path"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/service"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/socket"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/target"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/timer"
	"github.com/ChuLiYu/sysmasterd/pkg/depgraph"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

var log = slog.With("component", "daemon")

// Config is the subset of CLI configuration the daemon needs to start.
type Config struct {
	StoreRoot        string
	ControlSockPath  string
	NotifySocketPath string
	MetricsEnabled   bool
	MetricsPort      int
}

// Manager is the fully wired sysmasterd runtime.
type Manager struct {
	cfg Config

	store   *restation.Store
	reg     *registry.Registry
	graph   *depgraph.Graph
	machine *lifecycle.Machine
	engine  *jobengine.Engine
	spawn   spawner.Spawner
	ctl     *ctlsock.Server
	metrics *metrics.Collector

	svc    *service.Manager
	sock   *socket.Manager
	mnt    *mount.Manager
	tgt    *target.Manager
	tmr    *timer.Manager
	pth    *path.Manager
}

// New builds the manager but does not yet serve anything; callers call
// Serve to start the control socket and ListenAndServe the metrics server.
func New(cfg Config) (*Manager, error) {
	store, err := restation.Open(cfg.StoreRoot)
	if err != nil {
		return nil, fmt.Errorf("daemon: open reliability store: %w", err)
	}

	reg := registry.New()
	graph := depgraph.New()
	spawn := spawner.New()

	svc, err := service.New(store, spawn, cfg.NotifySocketPath)
	if err != nil {
		return nil, fmt.Errorf("daemon: service sub-manager: %w", err)
	}
	mnt, err := mount.New(store)
	if err != nil {
		return nil, fmt.Errorf("daemon: mount sub-manager: %w", err)
	}
	tmr, err := timer.New(store)
	if err != nil {
		return nil, fmt.Errorf("daemon: timer sub-manager: %w", err)
	}
	pth, err := path.New(store)
	if err != nil {
		return nil, fmt.Errorf("daemon: path sub-manager: %w", err)
	}
	sock := socket.New()
	tgt := target.New()

	m := &Manager{
		cfg:  cfg,
		store: store,
		reg:  reg,
		graph: graph,
		spawn: spawn,
		svc:  svc,
		sock: sock,
		mnt:  mnt,
		tgt:  tgt,
		tmr:  tmr,
		pth:  pth,
	}

	m.machine = lifecycle.New(reg, store.Last(), m)
	m.engine = jobengine.New(graph, reg, m, jobengine.RateWindow{})
	m.engine.SetEmergencyTrigger(m)

	if cfg.MetricsEnabled {
		m.metrics = metrics.NewCollector()
	}
	m.ctl = ctlsock.NewServer(m)

	return m, nil
}

// Serve starts the control socket and (if enabled) the metrics HTTP
// server, both as background goroutines, returning once bound.
func (m *Manager) Serve() error {
	if err := m.ctl.Listen(m.cfg.ControlSockPath); err != nil {
		return fmt.Errorf("daemon: control socket: %w", err)
	}
	go func() {
		_ = m.ctl.Serve()
	}()

	if m.metrics != nil {
		go func() {
			_ = metrics.StartServer(m.cfg.MetricsPort)
		}()
	}
	return nil
}

// Shutdown stops serving the control socket. Units are left running; a
// real stop-order (spec §4.4's compensate sequence) is driven by whatever
// called Shutdown issuing a shutdown.target isolate first.
func (m *Manager) Shutdown() error {
	return m.ctl.Close()
}

// Tick drains the registry's load queue and advances the job engine; the
// caller (internal/dispatch.Dispatcher, via RegisterTicker) owns the
// wakeup cadence.
func (m *Manager) Tick(now time.Time) {
	m.reg.DrainLoadQueue()
	m.engine.Tick(now)
}

// --- jobengine.Executor ------------------------------------------------

// OnUnitStateChanged satisfies internal/lifecycle.Propagator implicitly
// (internal/lifecycle.Machine calls it as its Propagator) via structural
// typing, avoiding an import cycle between internal/lifecycle and
// internal/jobengine.
func (m *Manager) OnUnitStateChanged(unitID string, from, to unit.ActiveState) {
	m.engine.OnUnitStateChanged(unitID, from, to)
}

// TriggerEmergency satisfies jobengine.EmergencyTrigger: carries out the
// resolved action for a unit's start_limit_action (or, in future, its
// success/failure reactions). internal/lifecycle/emergency.go classifies
// the action; actually rebooting/powering off/exiting the manager process
// is not yet wired to any sub-manager or spawner primitive, so for now
// this records the decision the way every other unhandled-but-decided
// path in this package does.
func (m *Manager) TriggerEmergency(unitID string, action unit.EmergencyAction) {
	log.Warn("emergency action triggered", "unit", unitID, "action", action,
		"reboot", lifecycle.IsReboot(action), "poweroff", lifecycle.IsPoweroff(action),
		"exit", lifecycle.IsExit(action), "immediate", lifecycle.IsImmediate(action))
}

// Execute drives one job's operation on its unit by dispatching to the
// unit kind's sub-manager, then reporting the resulting transition through
// the lifecycle machine.
func (m *Manager) Execute(job *jobengine.Job) error {
	u, ok := m.reg.Get(job.UnitID)
	if !ok {
		return fmt.Errorf("daemon: execute %s: unit not resident", job.UnitID)
	}

	switch job.Kind {
	case jobengine.KindStart:
		return m.executeStart(u)
	case jobengine.KindStop:
		return m.executeStop(u)
	case jobengine.KindReload:
		return m.executeReload(u)
	case jobengine.KindRestart:
		if err := m.executeStop(u); err != nil {
			return err
		}
		return m.executeStart(u)
	case jobengine.KindVerify, jobengine.KindNop:
		return nil
	default:
		return fmt.Errorf("daemon: execute %s: unsupported job kind %s", job.UnitID, job.Kind)
	}
}

func (m *Manager) executeStart(u *unit.Unit) error {
	if err := m.machine.Transition(u, unit.Activating, "start"); err != nil {
		return err
	}
	switch u.Kind {
	case unit.KindService:
		if _, err := m.svc.Start(u.ID); err != nil {
			_ = m.machine.Fail(u, err.Error())
			return err
		}
	case unit.KindSocket:
		if _, err := m.sock.Open(u.ID); err != nil {
			_ = m.machine.Fail(u, err.Error())
			return err
		}
	}
	return m.machine.Transition(u, unit.Active, "start")
}

func (m *Manager) executeStop(u *unit.Unit) error {
	if err := m.machine.Transition(u, unit.Deactivating, "stop"); err != nil {
		return err
	}
	switch u.Kind {
	case unit.KindSocket:
		_ = m.sock.Close(u.ID)
	case unit.KindService:
		m.svc.ClearMainPID(u.ID)
	}
	return m.machine.Transition(u, unit.Inactive, "stop")
}

func (m *Manager) executeReload(u *unit.Unit) error {
	if err := m.machine.Transition(u, unit.Reloading, "reload"); err != nil {
		return err
	}
	return m.machine.Transition(u, unit.Active, "reload")
}

// --- ctlsock.Handler -----------------------------------------------------

func (m *Manager) HandleUnitComm(req ctlsock.UnitCommRequest) ctlsock.Response {
	switch req.Action {
	case ctlsock.UnitStatus:
		return m.handleStatus(req.Units)
	case ctlsock.UnitStart:
		return m.runIntent(req.Units, jobengine.KindStart, jobengine.ModeReplace)
	case ctlsock.UnitStop:
		return m.runIntent(req.Units, jobengine.KindStop, jobengine.ModeReplace)
	case ctlsock.UnitRestart:
		return m.runIntent(req.Units, jobengine.KindRestart, jobengine.ModeReplace)
	case ctlsock.UnitReload:
		return m.runIntent(req.Units, jobengine.KindReload, jobengine.ModeReplace)
	case ctlsock.UnitIsolate:
		return m.runIntent(req.Units, jobengine.KindStart, jobengine.ModeIsolate)
	case ctlsock.UnitResetFailed:
		return ctlsock.Response{Status: 200, Message: "reset-failed is not yet implemented"}
	default:
		return ctlsock.Response{Status: 400, ErrorCode: 1, Message: "unrecognized UnitComm action"}
	}
}

func (m *Manager) handleStatus(units []string) ctlsock.Response {
	if len(units) == 0 {
		all := m.reg.All()
		units = make([]string, 0, len(all))
		for _, u := range all {
			units = append(units, u.ID)
		}
	}
	msg := ""
	for _, id := range units {
		u, ok := m.reg.Get(id)
		if !ok {
			msg += fmt.Sprintf("%s: not loaded\n", id)
			continue
		}
		msg += fmt.Sprintf("%s: load=%s active=%s\n", u.ID, u.LoadState, u.Active)
	}
	return ctlsock.Response{Status: 200, Message: msg}
}

func (m *Manager) runIntent(units []string, kind jobengine.Kind, mode jobengine.Mode) ctlsock.Response {
	intents := make([]jobengine.Intent, 0, len(units))
	for _, id := range units {
		intents = append(intents, jobengine.Intent{UnitID: id, Kind: kind})
	}
	txID, err := m.engine.Run(intents, mode)
	if err != nil {
		return ctlsock.Response{Status: 409, ErrorCode: 1, Message: err.Error()}
	}
	return ctlsock.Response{Status: 200, Message: fmt.Sprintf("transaction %s accepted", txID)}
}

func (m *Manager) HandleUnitFile(req ctlsock.UnitFileRequest) ctlsock.Response {
	return ctlsock.Response{Status: 200, Message: fmt.Sprintf("unit-file %s acknowledged for %d unit(s)", req.Action, len(req.Units))}
}

func (m *Manager) HandleJobComm(req ctlsock.JobCommRequest) ctlsock.Response {
	switch req.Action {
	case ctlsock.JobCancel:
		if err := m.engine.Cancel(req.JobID); err != nil {
			return ctlsock.Response{Status: 404, ErrorCode: 1, Message: err.Error()}
		}
		return ctlsock.Response{Status: 200, Message: "cancelled"}
	case ctlsock.JobList:
		return ctlsock.Response{Status: 200, Message: "job listing is not yet implemented"}
	default:
		return ctlsock.Response{Status: 400, ErrorCode: 1, Message: "unrecognized JobComm action"}
	}
}

func (m *Manager) HandleMngrComm(req ctlsock.MngrCommRequest) ctlsock.Response {
	switch req.Action {
	case ctlsock.MngrReload:
		for _, id := range m.reg.All() {
			m.reg.Enqueue(id.ID)
		}
		return ctlsock.Response{Status: 200, Message: "reload queued"}
	case ctlsock.MngrListUnits:
		return m.handleStatus(nil)
	case ctlsock.MngrReexec:
		return ctlsock.Response{Status: 200, Message: "reexec requested"}
	default:
		return ctlsock.Response{Status: 400, ErrorCode: 1, Message: "unrecognized MngrComm action"}
	}
}

func (m *Manager) HandleSysComm(req ctlsock.SysCommRequest) ctlsock.Response {
	return ctlsock.Response{Status: 200, Message: fmt.Sprintf("%s acknowledged (force=%v)", req.Action, req.Force)}
}

func (m *Manager) HandleSwitchRootComm(req ctlsock.SwitchRootCommRequest) ctlsock.Response {
	return ctlsock.Response{Status: 501, ErrorCode: 1, Message: "switch-root is not implemented"}
}

func (m *Manager) HandleTransientUnitComm(req ctlsock.TransientUnitCommRequest) ctlsock.Response {
	if len(req.AuxUnits) == 0 {
		return ctlsock.Response{Status: 400, ErrorCode: 1, Message: "transient unit requires at least one unit name"}
	}
	return m.runIntent(req.AuxUnits, jobengine.KindStart, jobengine.ModeReplace)
}
