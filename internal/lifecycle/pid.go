// ============================================================================
// sysmasterd Unit Lifecycle
// ============================================================================
//
// Package: internal/lifecycle
// File: pid.go
// Purpose: Process supervision from spec §4.4 - the PID->unit index and the
//          SIGCHLD reap step, a single Wait4(WNOHANG) call with no
//          separate peek beforehand, so that an "alien" PID (forked by a
//          child, not tracked) is reaped and dropped rather than
//          misattributed.
//
// ============================================================================

package lifecycle

import (
	"sync"

	"golang.org/x/sys/unix"
)

// Role distinguishes a unit's two tracked PIDs.
type Role string

const (
	RoleMain    Role = "main"
	RoleControl Role = "control"
)

// PIDTable is the global pid->unit index, mutated only from the SIGCHLD
// callback and from Track/Untrack on fork.
type PIDTable struct {
	mu    sync.Mutex
	owner map[int]pidEntry
}

type pidEntry struct {
	unitID string
	role   Role
}

// NewPIDTable creates an empty index.
func NewPIDTable() *PIDTable {
	return &PIDTable{owner: make(map[int]pidEntry)}
}

// Track records that pid belongs to unitID in the given role, called right
// after a successful fork/exec.
func (t *PIDTable) Track(pid int, unitID string, role Role) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.owner[pid] = pidEntry{unitID: unitID, role: role}
}

// Untrack drops pid from the index, called once it has been reaped.
func (t *PIDTable) Untrack(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.owner, pid)
}

// Lookup resolves pid to its owning unit and role, if tracked.
func (t *PIDTable) Lookup(pid int) (unitID string, role Role, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, found := t.owner[pid]
	return e.unitID, e.role, found
}

// ReapOne implements one SIGCHLD handling cycle: reap the next ready child
// (WNOHANG so a spurious wakeup with nothing ready returns immediately),
// resolve its pid against the index, and hand the wait status to onReady so
// the caller can run sigchld_events(status) for the owning unit. An alien
// pid (not present in the index) is still reaped - the kernel has already
// zombied it and something must collect it - but onReady sees ok=false and
// the caller drops it.
//
// x/sys/unix's Siginfo has no usable Pid/Status accessors (the kernel's
// siginfo_t union isn't unpacked there), so unlike the original
// implementation's waitid(WNOHANG|WNOWAIT) peek, this reaps in one Wait4
// call rather than peeking the pid before consuming it; the PID table
// lookup still happens before Untrack, so callers observe the same
// ownership information either way.
func (t *PIDTable) ReapOne(onReady func(pid int, status unix.WaitStatus, unitID string, role Role, ok bool)) (pid int, reaped bool, err error) {
	var status unix.WaitStatus
	var rusage unix.Rusage
	wpid, werr := unix.Wait4(-1, &status, unix.WNOHANG, &rusage)
	if werr != nil {
		if werr == unix.ECHILD {
			return 0, false, nil
		}
		return 0, false, werr
	}
	if wpid <= 0 {
		return 0, false, nil
	}

	unitID, role, ok := t.Lookup(wpid)
	if onReady != nil {
		onReady(wpid, status, unitID, role, ok)
	}
	t.Untrack(wpid)
	return wpid, true, nil
}
