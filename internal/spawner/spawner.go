// ============================================================================
// sysmasterd Exec Spawner
// ============================================================================
//
// Package: internal/spawner
// File: spawner.go
// Purpose: The consumed collaborator from spec §2/§4.6 that turns a unit's
//          ExecStart-style command line into a running child process: the
//          Spawner interface plus a default os/exec-based implementation.
//
// Grounded on original_source/core/coms/service/src/spawn.rs's
// ServiceSpawn.start_service: build an environment (PATH, MAINPID,
// NOTIFY_SOCKET), pass along any pending socket fds, start the child, and
// hand its pid back to the caller for the lifecycle package's PID table —
// this package is that method's params-building plus os/exec.Cmd.Start in
// place of sysMaster's own exec_spawn syscall wrapper.
//
// ============================================================================

package spawner

import (
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"syscall"
)

// Spec describes one process to start, translated from a unit's exec
// command line and runtime context by the caller (internal/submanager).
type Spec struct {
	Path             string   // absolute path or bare name resolved via PATH
	Args             []string // argv[1:]
	WorkingDirectory string
	Env              []string // additional KEY=VALUE pairs, appended to a base PATH
	User             string   // empty keeps the manager's own uid
	Group            string   // empty keeps the manager's own gid
	MainPID          int      // 0 if none yet; exported as MAINPID for Type=notify units
	NotifySocket     string   // path exported as NOTIFY_SOCKET when non-empty
	ExtraFiles       []*os.File
	Stdout           *os.File // nil inherits the manager's own stdout
	Stderr           *os.File
}

// Spawner starts a process described by Spec and returns its pid. It does
// not wait for the process; completion is learned later through the
// lifecycle package's SIGCHLD reaping.
type Spawner interface {
	Spawn(spec Spec) (pid int, err error)
}

// ErrEmptyPath is returned when Spec.Path is empty.
var ErrEmptyPath = fmt.Errorf("spawner: empty command path")

// ExecSpawner is the default Spawner, built on os/exec.
type ExecSpawner struct{}

// New returns the default os/exec-backed Spawner.
func New() *ExecSpawner { return &ExecSpawner{} }

// Spawn starts spec as a child process and returns its pid.
func (s *ExecSpawner) Spawn(spec Spec) (int, error) {
	if spec.Path == "" {
		return 0, ErrEmptyPath
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.WorkingDirectory
	cmd.Env = buildEnv(spec)
	cmd.ExtraFiles = spec.ExtraFiles
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	}

	attr, err := credentialAttr(spec.User, spec.Group)
	if err != nil {
		return 0, fmt.Errorf("spawner: resolving credentials for %q: %w", spec.Path, err)
	}
	cmd.SysProcAttr = attr

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("spawner: starting %q: %w", spec.Path, err)
	}
	return cmd.Process.Pid, nil
}

func buildEnv(spec Spec) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
	}
	env := append([]string{"PATH=" + path}, spec.Env...)
	if spec.MainPID > 0 {
		env = append(env, "MAINPID="+strconv.Itoa(spec.MainPID))
	}
	if spec.NotifySocket != "" {
		env = append(env, "NOTIFY_SOCKET="+spec.NotifySocket)
	}
	return env
}

// credentialAttr resolves username/groupname into a syscall.SysProcAttr
// with Credential set, or nil when both are empty (inherit the manager's
// own uid/gid, the common case for system services run as root).
func credentialAttr(userName, groupName string) (*syscall.SysProcAttr, error) {
	if userName == "" && groupName == "" {
		return nil, nil
	}

	var uid, gid uint32
	if userName != "" {
		u, err := user.Lookup(userName)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(u.Uid, 10, 32)
		if err != nil {
			return nil, err
		}
		uid = uint32(n)
		if groupName == "" {
			gn, err := strconv.ParseUint(u.Gid, 10, 32)
			if err != nil {
				return nil, err
			}
			gid = uint32(gn)
		}
	}
	if groupName != "" {
		g, err := user.LookupGroup(groupName)
		if err != nil {
			return nil, err
		}
		n, err := strconv.ParseUint(g.Gid, 10, 32)
		if err != nil {
			return nil, err
		}
		gid = uint32(n)
	}

	return &syscall.SysProcAttr{Credential: &syscall.Credential{Uid: uid, Gid: gid}}, nil
}
