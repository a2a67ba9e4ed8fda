// ============================================================================
// sysmasterd Job Engine
// ============================================================================
//
// Package: internal/jobengine
// File: transaction.go
// Purpose: Transaction build from spec §4.5 steps 1-4: merge the intent,
//          expand dependencies via the depgraph's atom sets, resolve
//          ordering into a DAG (breaking cycles by dropping a non-anchor
//          edge), then validate each job's unit load state.
//
// ============================================================================

package jobengine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/pkg/depgraph"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// Intent is one requested (unit, kind) pair passed to Run.
type Intent struct {
	UnitID string
	Kind   Kind
	Attrs  Attrs
}

// ErrCycle is returned when the ordering DAG has a cycle that cannot be
// broken by dropping a non-anchor edge.
var ErrCycle = errors.New("jobengine: ordering cycle cannot be broken")

// Transaction is the short-lived working set from spec §3: unit -> Job plus
// the ordering metadata needed to apply it.
type Transaction struct {
	jobs  map[string]*Job            // unitID -> job
	order map[string]map[string]bool // unitID -> set of unitIDs that must run after it
	graph *depgraph.Graph
	reg   *registry.Registry
	mode  Mode
}

func newTransaction(graph *depgraph.Graph, reg *registry.Registry, mode Mode) *Transaction {
	return &Transaction{
		jobs:  make(map[string]*Job),
		order: make(map[string]map[string]bool),
		graph: graph,
		reg:   reg,
		mode:  mode,
	}
}

// BuildTransaction runs all four steps of spec §4.5 and returns a
// transaction ready for Engine.Run to install, or an error if the
// transaction as a whole cannot be built (unmergeable under mode=Fail, or an
// unbreakable ordering cycle). Per-job validation failures (step 4) do not
// error the whole build; they mark that job Finished/Dependency so
// Engine.Run records it by id without installing it.
func BuildTransaction(graph *depgraph.Graph, reg *registry.Registry, intents []Intent, mode Mode) (*Transaction, error) {
	tx := newTransaction(graph, reg, mode)

	if mode == ModeIsolate {
		if err := tx.addIsolateStops(reg, intents); err != nil {
			return nil, err
		}
	}

	for _, in := range intents {
		if err := tx.merge(in.UnitID, in.Kind, in.Attrs, true); err != nil {
			return nil, err
		}
	}

	if mode != ModeIgnoreDeps {
		if err := tx.expand(); err != nil {
			return nil, err
		}
	}

	if err := tx.resolveOrder(); err != nil {
		return nil, err
	}
	tx.computeDependsOn()

	tx.validate()

	return tx, nil
}

// addIsolateStops adds a Stop job (mode=Isolate's "every currently active
// unit not reachable from the intent") for every active unit outside the
// intent's closure, before the intent itself is merged.
func (tx *Transaction) addIsolateStops(reg *registry.Registry, intents []Intent) error {
	reachable := make(map[string]bool, len(intents))
	queue := make([]string, 0, len(intents))
	for _, in := range intents {
		reachable[in.UnitID] = true
		queue = append(queue, in.UnitID)
	}
	pullIn := depgraph.AtomPullInStart | depgraph.AtomPullInStartIgnored | depgraph.AtomPullInVerify
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, n := range tx.graph.GetsAtom(id, pullIn) {
			if !reachable[n] {
				reachable[n] = true
				queue = append(queue, n)
			}
		}
	}
	for _, u := range reg.All() {
		if u.Active == unit.Inactive || u.Active == unit.Failed {
			continue
		}
		if reachable[u.ID] {
			continue
		}
		if err := tx.merge(u.ID, KindStop, Attrs{}, false); err != nil {
			return err
		}
	}
	return nil
}

// merge implements step 1 for a single (unitID, kind) pair.
func (tx *Transaction) merge(unitID string, kind Kind, attrs Attrs, anchor bool) error {
	if tx.mode == ModeFlush {
		delete(tx.jobs, unitID)
	}

	if tx.mode == ModeReplaceIrreversibly {
		attrs.Irreversible = true
	}

	existing, ok := tx.jobs[unitID]
	if !ok {
		j := newJob(unitID, kind, attrs, tx.mode)
		j.Anchor = anchor
		tx.jobs[unitID] = j
		return nil
	}

	merged, err := mergeKinds(existing.Kind, kind)
	if err != nil {
		switch tx.mode {
		case ModeReplace, ModeReplaceIrreversibly, ModeFlush:
			existing.Result = ResultCancelled
			existing.State = StateFinished
			j := newJob(unitID, kind, attrs, tx.mode)
			j.Anchor = anchor || existing.Anchor
			tx.jobs[unitID] = j
			return nil
		default:
			return fmt.Errorf("jobengine: unit %s: %w", unitID, err)
		}
	}

	existing.Kind = merged
	existing.Attrs = existing.Attrs.merge(attrs)
	existing.Anchor = existing.Anchor || anchor
	return nil
}

// mergeBestEffort is used by expansion for "optionally pull in" edges: a
// conflict here is silently skipped rather than failing the whole build.
func (tx *Transaction) mergeBestEffort(unitID string, kind Kind) {
	_ = tx.merge(unitID, kind, Attrs{}, false)
}

// expand implements step 2: repeatedly derive further jobs from each
// job's unit's atom set until no new jobs are added. Because merge never
// creates a second job for a unit already in the working map, this
// terminates.
func (tx *Transaction) expand() error {
	queue := tx.unitIDs()
	seen := make(map[string]bool, len(queue))
	for _, id := range queue {
		seen[id] = true
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		job := tx.jobs[id]
		if job == nil {
			continue
		}

		before := len(tx.jobs)
		tx.expandOne(id, job)
		if len(tx.jobs) > before {
			for uid := range tx.jobs {
				if !seen[uid] {
					seen[uid] = true
					queue = append(queue, uid)
				}
			}
		}
	}
	return nil
}

func (tx *Transaction) expandOne(id string, job *Job) {
	switch job.Kind {
	case KindStart:
		if tx.mode != ModeIgnoreRequirements {
			for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPullInStart) {
				tx.mergeBestEffort(n, KindStart)
			}
			for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPullInVerify) {
				tx.mergeBestEffort(n, KindVerify)
			}
		}
		for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPullInStartIgnored) {
			tx.mergeBestEffort(n, KindStart)
		}
		for _, n := range tx.graph.GetsAtom(id, depgraph.AtomRetroActiveStopOnStart) {
			tx.mergeBestEffort(n, KindStop)
		}
	case KindStop:
		for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPullInStop) {
			tx.mergeBestEffort(n, KindStop)
		}
		for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPullInStopIgnored) {
			tx.mergeBestEffort(n, KindStop)
		}
	case KindReload:
		for _, n := range tx.graph.GetsAtom(id, depgraph.AtomPropagatesReloadTo) {
			tx.mergeBestEffort(n, KindTryReload)
		}
	}
}

func (tx *Transaction) unitIDs() []string {
	out := make([]string, 0, len(tx.jobs))
	for id := range tx.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// resolveOrder implements step 3: build the Before/After DAG restricted to
// transaction members, ignoring jobs with IgnoreOrder set, and break any
// cycle by dropping a non-anchor edge.
func (tx *Transaction) resolveOrder() error {
	for id, job := range tx.jobs {
		if job.Attrs.IgnoreOrder {
			continue
		}
		for _, n := range tx.graph.Gets(id, depgraph.Before) {
			if _, inTx := tx.jobs[n]; !inTx {
				continue
			}
			if tx.order[id] == nil {
				tx.order[id] = make(map[string]bool)
			}
			tx.order[id][n] = true
		}
	}

	for attempt := 0; attempt < len(tx.jobs)+1; attempt++ {
		cycle := tx.findCycle()
		if cycle == nil {
			return nil
		}
		if !tx.breakCycle(cycle) {
			return ErrCycle
		}
	}
	return ErrCycle
}

// findCycle runs a DFS over tx.order and returns one cycle's node sequence,
// or nil if the graph is acyclic.
func (tx *Transaction) findCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		path = append(path, n)
		ids := make([]string, 0, len(tx.order[n]))
		for m := range tx.order[n] {
			ids = append(ids, m)
		}
		sort.Strings(ids)
		for _, m := range ids {
			switch color[m] {
			case white:
				if visit(m) {
					return true
				}
			case gray:
				// found the back edge; extract the cycle from path
				for i, p := range path {
					if p == m {
						cycle = append([]string{}, path[i:]...)
						cycle = append(cycle, m)
						return true
					}
				}
			}
		}
		path = path[:len(path)-1]
		color[n] = black
		return false
	}

	ids := tx.unitIDs()
	for _, id := range ids {
		if color[id] == white {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// breakCycle removes the first edge in cycle whose source job is not an
// anchor, reporting whether it found one to remove.
func (tx *Transaction) breakCycle(cycle []string) bool {
	for i := 0; i < len(cycle)-1; i++ {
		from, to := cycle[i], cycle[i+1]
		job := tx.jobs[from]
		if job != nil && job.Anchor {
			continue
		}
		if set := tx.order[from]; set != nil {
			delete(set, to)
			return true
		}
	}
	return false
}

// computeDependsOn translates the unit-level ordering DAG (id must run
// before succ) into job-ID predecessor lists, so the engine can check
// readiness without re-consulting the depgraph.
func (tx *Transaction) computeDependsOn() {
	for id, succs := range tx.order {
		predJob, ok := tx.jobs[id]
		if !ok {
			continue
		}
		for succ := range succs {
			if job, ok := tx.jobs[succ]; ok {
				job.DependsOn = append(job.DependsOn, predJob.ID)
			}
		}
	}
}

// validate implements step 4: a job whose unit failed to load fails with
// Dependency unless NoRelevancy is set.
func (tx *Transaction) validate() {
	if tx.reg == nil {
		return
	}
	for _, job := range tx.jobs {
		if job.State == StateFinished {
			continue // already resolved by merge-time cancellation
		}
		u, ok := tx.reg.Get(job.UnitID)
		if !ok {
			continue
		}
		if (u.LoadState == unit.LoadNotFound || u.LoadState == unit.LoadError) && !job.Attrs.NoRelevancy {
			job.State = StateFinished
			job.Result = ResultDependency
		}
	}
}

// Jobs returns every job in the transaction, sorted by unit id for
// deterministic iteration (spec §4.3's tie-break rule, generalized to the
// job engine's own ordering needs).
func (tx *Transaction) Jobs() []*Job {
	ids := tx.unitIDs()
	out := make([]*Job, 0, len(ids))
	for _, id := range ids {
		out = append(out, tx.jobs[id])
	}
	return out
}
