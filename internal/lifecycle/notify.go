// ============================================================================
// sysmasterd Unit Lifecycle
// ============================================================================
//
// Package: internal/lifecycle
// File: notify.go
// Purpose: The notify-socket datagram parser from spec §4.4 - newline-
//          delimited KEY=VALUE records sent by Type=Notify services over
//          the SOCK_DGRAM unix socket named by $NOTIFY_SOCKET.
//
// ============================================================================

package lifecycle

import (
	"strconv"
	"strings"
)

// NotifyMessage is one parsed notify-socket datagram.
type NotifyMessage struct {
	Ready     bool
	Stopping  bool
	Reloading bool
	Watchdog  bool
	Status    string
	MainPID   int
	HasPID    bool
	FDStore   bool
	Errno     int
	HasErrno  bool
}

// ParseNotifyMessage parses a raw notify-socket datagram payload. Unknown
// keys are ignored; a malformed MAINPID/ERRNO value is dropped rather than
// failing the whole message, since the rest of the datagram is still
// actionable.
func ParseNotifyMessage(payload []byte) NotifyMessage {
	var msg NotifyMessage
	for _, line := range strings.Split(string(payload), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		key, value, hasValue := strings.Cut(line, "=")
		switch key {
		case "READY":
			msg.Ready = value == "1"
		case "STOPPING":
			msg.Stopping = value == "1"
		case "RELOADING":
			msg.Reloading = value == "1"
		case "WATCHDOG":
			msg.Watchdog = value == "1"
		case "STATUS":
			if hasValue {
				msg.Status = value
			}
		case "MAINPID":
			if n, err := strconv.Atoi(value); err == nil {
				msg.MainPID = n
				msg.HasPID = true
			}
		case "FDSTORE":
			msg.FDStore = value == "1"
		case "ERRNO":
			if n, err := strconv.Atoi(value); err == nil {
				msg.Errno = n
				msg.HasErrno = true
			}
		}
	}
	return msg
}

// Credentials identifies the sender of a notify datagram, read off the
// socket's SCM_CREDENTIALS ancillary message (SO_PASSCRED).
type Credentials struct {
	PID int
	UID uint32
	GID uint32
}

// AcceptMainPIDReassignment reports whether MAINPID=<n> from sender should
// be honored for u: only the unit's current main or control PID, or UID 0,
// may reassign it (spec §4.4).
func AcceptMainPIDReassignment(sender Credentials, mainPID, controlPID int) bool {
	if sender.UID == 0 {
		return true
	}
	return sender.PID == mainPID || sender.PID == controlPID
}
