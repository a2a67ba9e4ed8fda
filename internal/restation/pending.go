// ============================================================================
// sysmasterd Reliability Store
// ============================================================================
//
// Package: internal/restation
// File: pending.go
// Purpose: The pending-fd table from spec §5 - every socket/listener/pipe
//          the core wants to survive re-exec, tagged with what should
//          happen to its close-on-exec bit.
//
// Ported from the original implementation's ReliPending
// (core/libcore/src/rel/pending.rs): fd_retain clears close-on-exec and
// marks Retaining then Retained; fd_remove sets close-on-exec and marks
// Removing before deleting the entry; take() hands the fd back to the
// caller (post re-exec) and drops the bookkeeping entry; a crash-time
// consistency pass closes every fd still listed as an orphan.
//
// ============================================================================

package restation

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PendingState is the lifecycle state of one tracked fd.
type PendingState string

const (
	PendingRetaining PendingState = "retaining"
	PendingRetained  PendingState = "retained"
	PendingRemoving  PendingState = "removing"
)

// Pending is the pending-fd table.
type Pending struct {
	fds *Table[PendingState]
}

// NewPending registers the pending-fd table against s.
func NewPending(s *Store) (*Pending, error) {
	t, err := RegisterTable[PendingState](s, "p-fd")
	if err != nil {
		return nil, err
	}
	return &Pending{fds: t}, nil
}

func fdKey(fd int) string {
	return fmt.Sprintf("%d", fd)
}

// Retain clears FD_CLOEXEC on fd so it survives execve(2) across re-exec.
func (p *Pending) Retain(fd int) error {
	key := fdKey(fd)
	if _, ok := p.fds.Get(key); ok {
		return fmt.Errorf("restation: fd %d already pending", fd)
	}
	p.fds.Insert(key, PendingRetaining)
	if err := setCloseOnExec(fd, false); err != nil {
		p.fds.Remove(key)
		return err
	}
	p.fds.Insert(key, PendingRetained)
	return nil
}

// Remove sets FD_CLOEXEC on fd and drops it from the table - it will be
// closed by the kernel across the next execve, so the core stops tracking
// it immediately.
func (p *Pending) Remove(fd int) error {
	key := fdKey(fd)
	p.fds.Insert(key, PendingRemoving)
	if err := setCloseOnExec(fd, true); err != nil {
		p.fds.Remove(key)
		return err
	}
	p.fds.Remove(key)
	return nil
}

// Take reclaims fd after re-exec, dropping the bookkeeping entry.
func (p *Pending) Take(fd int) int {
	p.fds.Remove(fdKey(fd))
	return fd
}

// MakeConsistent closes every fd still listed (an orphan: the process that
// was supposed to Take it never did) and clears the table. Called once at
// startup after the reliability store has been mapped.
func (p *Pending) MakeConsistent() {
	for key := range p.fds.Entries() {
		var fd int
		if _, err := fmt.Sscanf(key, "%d", &fd); err == nil {
			_ = unix.Close(fd)
		}
	}
	p.fds.Clear()
}

func setCloseOnExec(fd int, cloexec bool) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	if cloexec {
		flags |= unix.FD_CLOEXEC
	} else {
		flags &^= unix.FD_CLOEXEC
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags)
	return err
}
