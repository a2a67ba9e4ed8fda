// ============================================================================
// sysmasterd Job Engine
// ============================================================================
//
// Package: internal/jobengine
// File: job.go
// Purpose: Job/Kind/Attrs/Mode/Result types and the merge matrix from spec
//          §4.5 - how two pending kinds for the same unit combine (or
//          conflict) when a second intent arrives for it.
//
// Grounded on internal/jobmanager.JobManager's Status-tagged Job value and
// sentinel-error style; the merge matrix itself is table-driven the way
// pkg/depgraph/relation.go's symmetricPairs map is, rather than a long
// switch, so adding a kind pair later is a one-line change.
//
// ============================================================================

package jobengine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Kind is the lifecycle change a job requests.
type Kind string

const (
	KindStart         Kind = "start"
	KindStop          Kind = "stop"
	KindReload        Kind = "reload"
	KindRestart       Kind = "restart"
	KindVerify        Kind = "verify"
	KindNop           Kind = "nop"
	KindTryReload     Kind = "try-reload"
	KindTryRestart    Kind = "try-restart"
	KindReloadOrStart Kind = "reload-or-start"
)

// expand maps each of the three compound kinds onto the basic kind the merge
// matrix and the trigger table operate on directly, and returns a basic kind
// unchanged (spec §4.5: "last three are compound").
func (k Kind) expand() Kind {
	switch k {
	case KindTryReload:
		return KindReload
	case KindTryRestart:
		return KindRestart
	case KindReloadOrStart:
		return KindReload
	default:
		return k
	}
}

// Attrs are OR-merged flags on a job.
type Attrs struct {
	IgnoreOrder  bool
	Irreversible bool
	Force        bool
	NoRelevancy  bool
}

func (a Attrs) merge(b Attrs) Attrs {
	return Attrs{
		IgnoreOrder:  a.IgnoreOrder || b.IgnoreOrder,
		Irreversible: a.Irreversible || b.Irreversible,
		Force:        a.Force || b.Force,
		NoRelevancy:  a.NoRelevancy || b.NoRelevancy,
	}
}

// Mode is how run() should resolve conflicts with already-pending jobs.
type Mode string

const (
	ModeFail                Mode = "fail"
	ModeReplace             Mode = "replace"
	ModeReplaceIrreversibly Mode = "replace-irreversibly"
	ModeIsolate             Mode = "isolate"
	ModeFlush               Mode = "flush"
	ModeIgnoreDeps          Mode = "ignore-deps"
	ModeIgnoreRequirements  Mode = "ignore-requirements"
	ModeTrigger             Mode = "trigger"
)

// State is a job's position in its lifecycle.
type State string

const (
	StateInit      State = "init"
	StateInstalled State = "installed" // resident in the suspend table
	StateRunning   State = "running"   // resident in the trigger table
	StateFinished  State = "finished"
)

// Result is the terminal outcome of a finished job.
type Result string

const (
	ResultDone        Result = "done"
	ResultCancelled   Result = "cancelled"
	ResultFailed      Result = "failed"
	ResultDependency  Result = "dependency"
	ResultSkipped     Result = "skipped"
	ResultTimeOut     Result = "timeout"
	ResultInvalid     Result = "invalid"
	ResultAssert      Result = "assert"
	ResultUnsupported Result = "unsupported"
	ResultCollected   Result = "collected"
	ResultOnce        Result = "once"
	ResultMerged      Result = "merged"
)

// Job is a pending or in-flight lifecycle change for one unit.
type Job struct {
	ID     string
	UnitID string
	Kind   Kind
	Attrs  Attrs
	Mode   Mode
	State  State
	Result Result

	// Anchor marks a job as part of the original intent rather than one
	// added by dependency expansion; order-cycle breaking never removes an
	// anchor job's edges (spec §4.5 step 3).
	Anchor bool

	// Trigger marks a job as originating from a socket/timer/path trigger
	// rather than an explicit request (mode=Trigger, spec §4.5 step 1).
	Trigger bool

	// DependsOn lists the IDs of jobs (from the same transaction) that must
	// finish before this one may be promoted to the trigger table (spec
	// §4.5 step 3's ordering DAG).
	DependsOn []string
}

func newJob(unitID string, kind Kind, attrs Attrs, mode Mode) *Job {
	return &Job{
		ID:      uuid.NewString(),
		UnitID:  unitID,
		Kind:    kind.expand(),
		Attrs:   attrs,
		Mode:    mode,
		State:   StateInit,
		Trigger: mode == ModeTrigger,
	}
}

// ErrUnmergeable is returned when two kinds conflict and mode doesn't
// resolve the conflict (mode=Fail, or Replace/Flush not applicable).
var ErrUnmergeable = errors.New("jobengine: unmergeable job kinds")

// mergeMatrix implements the symmetric, idempotent combination table from
// spec §4.5 step 1. Looked up both (a,b) and (b,a); a pair absent from the
// table is a conflict.
var mergeMatrix = map[[2]Kind]Kind{
	{KindStart, KindStart}:     KindStart,
	{KindStop, KindStop}:       KindStop,
	{KindReload, KindReload}:   KindReload,
	{KindRestart, KindRestart}: KindRestart,

	{KindStart, KindReload}:   KindRestart,
	{KindStart, KindRestart}:  KindRestart,
	{KindReload, KindRestart}: KindRestart,
	{KindStop, KindRestart}:   KindStop,
}

// mergeKinds combines a and b per the matrix. Verify and Nop never
// conflict with anything and are absorbed by the other kind (spec's "Verify/
// Nop never conflict"). Start+Stop is reported as a conflict; callers
// decide based on mode whether that's fatal or resolved by cancellation.
func mergeKinds(a, b Kind) (Kind, error) {
	a, b = a.expand(), b.expand()
	if a == b {
		return a, nil
	}
	if a == KindVerify || a == KindNop {
		return b, nil
	}
	if b == KindVerify || b == KindNop {
		return a, nil
	}
	if merged, ok := mergeMatrix[[2]Kind{a, b}]; ok {
		return merged, nil
	}
	if merged, ok := mergeMatrix[[2]Kind{b, a}]; ok {
		return merged, nil
	}
	return "", fmt.Errorf("%w: %s + %s", ErrUnmergeable, a, b)
}

// isStartStopConflict reports whether a,b is the one conflict pair that
// mode=Replace/Flush can resolve by cancelling the older job, rather than
// the transaction simply failing.
func isStartStopConflict(a, b Kind) bool {
	a, b = a.expand(), b.expand()
	return (a == KindStart && b == KindStop) || (a == KindStop && b == KindStart)
}
