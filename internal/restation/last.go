// ============================================================================
// sysmasterd Reliability Store
// ============================================================================
//
// Package: internal/restation
// File: last.go
// Purpose: The "last frame / last unit" breadcrumb (spec §3, §4.1) -
//          what the core was about to do right before a hazardous
//          operation, so compensate() can resume after re-exec or crash.
//
// Ported from the original implementation's ReliLast (core/libcore/src/
// rel/last.rs): a small stack of frame tuples plus a singleton "current
// unit" slot, both backed by a registered Table so they ride the same A/B
// swap as every other table.
//
// ============================================================================

package restation

// Domain is the coarse tag for a last-frame entry.
type Domain string

const (
	DomainCmdOp      Domain = "CmdOp"
	DomainSigChld    Domain = "SigChld"
	DomainJobManager Domain = "JobManager"
	DomainJobRun     Domain = "JobRun"
	DomainNotify     Domain = "Notify"
	DomainSubManager Domain = "SubManager"
	DomainTimerEvent Domain = "TimerEvent"
	DomainPathEvent  Domain = "PathEvent"
	DomainQueue      Domain = "Queue"
)

// Frame is one "what I am about to do" breadcrumb entry.
type Frame struct {
	F1 Domain `json:"f1"`
	F2 string `json:"f2,omitempty"`
	F3 string `json:"f3,omitempty"`
}

const (
	frameKey = "frame"
	unitKey  = "unit"
)

// Last holds the frame stack and the current-unit singleton.
type Last struct {
	frames *Table[[]Frame]
	units  *Table[string]

	ignore bool
}

func newLast(s *Store) *Last {
	frames, err := RegisterTable[[]Frame](s, "l-frame")
	if err != nil {
		// RegisterTable only fails on duplicate registration or a corrupt
		// side file; Open has already validated the directory, and this
		// is the first registration of "l-frame" in the process, so this
		// path is unreachable in practice. Fall back to an unregistered,
		// non-persistent table rather than panicking the whole store.
		frames = newTable[[]Frame]("l-frame")
	}
	units, err := RegisterTable[string](s, "l-unit")
	if err != nil {
		units = newTable[string]("l-unit")
	}
	return &Last{frames: frames, units: units}
}

// IgnoreSet toggles writing the breadcrumb; set during recovery replay so
// re-running a compensated action doesn't re-arm the very breadcrumb it is
// clearing.
func (l *Last) IgnoreSet(ignore bool) { l.ignore = ignore }

// SetFrame pushes a new breadcrumb frame.
func (l *Last) SetFrame(f1 Domain, f2, f3 string) {
	if l.ignore {
		return
	}
	stack, _ := l.frames.Get(frameKey)
	stack = append(stack, Frame{F1: f1, F2: f2, F3: f3})
	l.frames.Insert(frameKey, stack)
}

// ClearFrame pops the most recent breadcrumb frame.
func (l *Last) ClearFrame() {
	if l.ignore {
		return
	}
	stack, ok := l.frames.Get(frameKey)
	if !ok || len(stack) == 0 {
		return
	}
	stack = stack[:len(stack)-1]
	l.frames.Insert(frameKey, stack)
}

// Frame returns the most recent breadcrumb frame, if any.
func (l *Last) Frame() (Frame, bool) {
	stack, ok := l.frames.Get(frameKey)
	if !ok || len(stack) == 0 {
		return Frame{}, false
	}
	return stack[len(stack)-1], true
}

// SetUnit marks which unit the current hazardous operation concerns.
func (l *Last) SetUnit(id string) {
	if l.ignore {
		return
	}
	l.units.Insert(unitKey, id)
}

// ClearUnit clears the current-unit marker.
func (l *Last) ClearUnit() {
	if l.ignore {
		return
	}
	l.units.Remove(unitKey)
}

// Unit returns the current-unit marker, if any.
func (l *Last) Unit() (string, bool) {
	return l.units.Get(unitKey)
}
