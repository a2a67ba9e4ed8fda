// ============================================================================
// sysmasterd Job Engine
// ============================================================================
//
// Package: internal/jobengine
// File: engine.go
// Purpose: The engine's contract from spec §4.5: run(intent, mode),
//          cancel(job_id)/cancel_all(unit), and the per-wakeup apply loop
//          that promotes ready suspend-table jobs into the trigger table
//          and calls the unit's start/stop/reload/verify entry point.
//
// Grounded on internal/jobmanager.JobManager's split between a pending
// queue and an inFlight map: the suspend table here plays pending's role,
// the trigger table plays inFlight's, and promotion is PopPending +
// MarkInFlight generalized with an ordering-readiness gate job_manager.go
// didn't need (its jobs have no cross-job dependencies).
//
// ============================================================================

package jobengine

import (
	"fmt"
	"sync"
	"time"

	"github.com/ChuLiYu/sysmasterd/internal/lifecycle"
	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/pkg/depgraph"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// Executor is the consumed collaborator that actually drives a job's
// operation on its unit (internal/submanager, via internal/lifecycle). It
// is expected to kick the operation off and return promptly; completion is
// learned later through OnUnitStateChanged.
type Executor interface {
	Execute(job *Job) error
}

// EmergencyTrigger is the consumed collaborator that carries out an
// emergency action once the engine has resolved one, e.g. spec §4.5's
// start_limit_action when a unit's start-rate window trips.
// internal/daemon.Manager implements this the same way it implements
// Executor, via structural typing.
type EmergencyTrigger interface {
	TriggerEmergency(unitID string, action unit.EmergencyAction)
}

// Engine is the job engine: suspend table, trigger table, run queue, and
// the propagation/rate-limit state needed to apply transactions.
type Engine struct {
	mu sync.Mutex

	graph     *depgraph.Graph
	reg       *registry.Registry
	exec      Executor
	emergency EmergencyTrigger
	rate      *rateLimiter

	suspend map[string]*Job // unitID -> queued job; one slot per unit (not per kind), a later Run overwrites it
	trigger map[string]*Job // unitID -> running job, at most one per unit
	byID    map[string]*Job // jobID -> job, for Cancel and DependsOn lookups

	runQueue []string // unitIDs with a suspend-table job to (re)consider
}

// New creates an engine. exec may be nil until internal/submanager wiring
// is available; jobs simply won't be executed until it is set.
func New(graph *depgraph.Graph, reg *registry.Registry, exec Executor, defaultWindow RateWindow) *Engine {
	return &Engine{
		graph:   graph,
		reg:     reg,
		exec:    exec,
		rate:    newRateLimiter(defaultWindow),
		suspend: make(map[string]*Job),
		trigger: make(map[string]*Job),
		byID:    make(map[string]*Job),
	}
}

// SetEmergencyTrigger registers the collaborator that carries out a
// resolved emergency action. Optional; if unset, a tripped start-rate
// window still fails the job but triggers nothing.
func (e *Engine) SetEmergencyTrigger(t EmergencyTrigger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emergency = t
}

// SetStartLimit overrides the start-rate window for a specific unit.
func (e *Engine) SetStartLimit(unitID string, w RateWindow) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rate.SetWindow(unitID, w)
}

// Run builds a transaction for intent under mode, installs every job into
// the suspend table, and returns the anchor job's id (the first intent
// unit's job) or an error if the transaction could not be built.
func (e *Engine) Run(intents []Intent, mode Mode) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	tx, err := BuildTransaction(e.graph, e.reg, intents, mode)
	if err != nil {
		return "", err
	}

	var topLevel string
	for _, job := range tx.Jobs() {
		if len(intents) > 0 && job.UnitID == intents[0].UnitID {
			topLevel = job.ID
		}
		if job.State == StateFinished {
			// failed validation or was cancelled during merge; nothing to
			// install, but it is still addressable by id for Cancel/status.
			e.byID[job.ID] = job
			continue
		}
		job.State = StateInstalled
		e.suspend[job.UnitID] = job
		e.byID[job.ID] = job
		e.runQueue = append(e.runQueue, job.UnitID)
	}
	return topLevel, nil
}

// Cancel finishes job jobID with Cancelled, removing it from whichever
// table holds it. Canceling a running (trigger-table) job only marks it;
// the executor is responsible for actually tearing down its operation.
func (e *Engine) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.byID[jobID]
	if !ok {
		return fmt.Errorf("jobengine: no such job %s", jobID)
	}
	e.finish(job, ResultCancelled)
	return nil
}

// CancelAll cancels every job (suspended or running) for unitID.
func (e *Engine) CancelAll(unitID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if job, ok := e.suspend[unitID]; ok {
		e.finish(job, ResultCancelled)
	}
	if job, ok := e.trigger[unitID]; ok {
		e.finish(job, ResultCancelled)
	}
}

// finish marks job Finished with result and removes it from every table.
// Caller holds e.mu.
func (e *Engine) finish(job *Job, result Result) {
	job.State = StateFinished
	job.Result = result
	delete(e.suspend, job.UnitID)
	if e.trigger[job.UnitID] == job {
		delete(e.trigger, job.UnitID)
	}
	delete(e.byID, job.ID)
}

// startLimitTrip carries the unit/action pair to notify once e.mu is
// released, for a job whose start-rate window tripped this tick.
type startLimitTrip struct {
	unitID string
	action unit.EmergencyAction
}

// Tick drains the run queue once: every queued unit whose job has no
// pending DependsOn and whose unit has no job already running is promoted
// to the trigger table and handed to the executor. Meant to be called once
// per event-loop wakeup (spec §5's defer-priority work), after
// registry.DrainLoadQueue.
//
// e.mu is held only to mutate the engine's own tables. Execute and
// TriggerEmergency are consumed collaborators that synchronously drive
// internal/lifecycle.Machine.Transition, which calls back into
// Engine.OnUnitStateChanged (the Propagator contract) before returning -
// since Go mutexes aren't reentrant, both calls must happen with e.mu
// released, or the first transition of any tick deadlocks against itself.
func (e *Engine) Tick(now time.Time) {
	e.mu.Lock()

	queue := e.runQueue
	e.runQueue = nil

	var toExec []*Job
	var trips []startLimitTrip

	for _, unitID := range queue {
		job, ok := e.suspend[unitID]
		if !ok {
			continue // already promoted, cancelled, or superseded
		}
		if e.trigger[unitID] != nil {
			e.runQueue = append(e.runQueue, unitID) // still busy, retry next tick
			continue
		}
		if !e.dependenciesSatisfied(job) {
			e.runQueue = append(e.runQueue, unitID)
			continue
		}

		delete(e.suspend, unitID)
		job.State = StateRunning
		e.trigger[unitID] = job

		if job.Kind == KindStart && e.rate.RecordStart(unitID, now) {
			e.finish(job, ResultFailed)
			if action := e.resolveStartLimitAction(unitID); action != unit.ActionNone {
				trips = append(trips, startLimitTrip{unitID: unitID, action: action})
			}
			continue
		}

		toExec = append(toExec, job)
	}

	e.mu.Unlock()

	for _, t := range trips {
		if e.emergency != nil {
			e.emergency.TriggerEmergency(t.unitID, t.action)
		}
	}

	if e.exec == nil {
		return
	}
	for _, job := range toExec {
		if err := e.exec.Execute(job); err != nil {
			e.mu.Lock()
			e.finish(job, ResultFailed)
			e.mu.Unlock()
		}
	}
}

// resolveStartLimitAction looks up unitID's configured start_limit_action.
// Caller holds e.mu.
func (e *Engine) resolveStartLimitAction(unitID string) unit.EmergencyAction {
	u, ok := e.reg.Get(unitID)
	if !ok {
		return unit.ActionNone
	}
	return lifecycle.ResolveEmergencyAction(u.Emergency, lifecycle.TriggerStartLimit)
}

func (e *Engine) dependenciesSatisfied(job *Job) bool {
	for _, dep := range job.DependsOn {
		if _, pending := e.byID[dep]; pending {
			return false
		}
	}
	return true
}

// OnUnitStateChanged implements internal/lifecycle.Propagator: learns that
// unitID moved from->to and runs the completion propagation from spec
// §4.5's "Propagation on completion".
func (e *Engine) OnUnitStateChanged(unitID string, from, to unit.ActiveState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job := e.trigger[unitID]

	switch {
	case to == unit.Active && from == unit.Activating:
		if job != nil && job.Kind == KindStart {
			e.finish(job, ResultDone)
			e.expandCompletion(unitID, depgraph.AtomOnSuccess, KindStart)
		}
	case to == unit.Active && from == unit.Reloading:
		if job != nil && job.Kind == KindReload {
			e.finish(job, ResultDone)
			e.expandCompletion(unitID, depgraph.AtomPropagatesReloadTo, KindTryReload)
		}
	case to == unit.Failed:
		if job != nil {
			e.finish(job, ResultFailed)
			e.expandCompletion(unitID, depgraph.AtomOnFailure, KindStart)
		}
	case to == unit.Inactive && from == unit.Deactivating:
		if job != nil && job.Kind == KindStop {
			e.finish(job, ResultDone)
			e.expandCompletion(unitID, depgraph.AtomPropagateStop, KindStop)
		}
	}
}

// expandCompletion starts a fresh, best-effort transaction for every
// neighbor reachable over atom, unless it already has a job.
func (e *Engine) expandCompletion(unitID string, atom depgraph.Atom, kind Kind) {
	neighbors := e.graph.GetsAtom(unitID, atom)
	if len(neighbors) == 0 {
		return
	}
	var intents []Intent
	for _, n := range neighbors {
		if e.suspend[n] != nil || e.trigger[n] != nil {
			continue
		}
		intents = append(intents, Intent{UnitID: n, Kind: kind, Attrs: Attrs{}})
	}
	if len(intents) == 0 {
		return
	}
	tx, err := BuildTransaction(e.graph, e.reg, intents, ModeReplace)
	if err != nil {
		return
	}
	for _, job := range tx.Jobs() {
		if job.State == StateFinished {
			continue
		}
		job.State = StateInstalled
		e.suspend[job.UnitID] = job
		e.byID[job.ID] = job
		e.runQueue = append(e.runQueue, job.UnitID)
	}
}
