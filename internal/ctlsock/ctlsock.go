// ============================================================================
// sysmasterd Control Socket
// ============================================================================
//
// Package: internal/ctlsock
// File: ctlsock.go
// Purpose: The control-socket server from spec §6: a SOCK_STREAM unix
//          socket accepting framed requests (8-byte little-endian length
//          prefix + length-delimited payload) and dispatching each to the
//          Handler method for its request kind, authenticating privileged
//          operations against the peer's SO_PEERCRED uid.
//
// The wire protocol itself is out of scope (spec §1's control-tool/IPC
// collaborator boundary); only the framing and dispatch live here. Per
// SPEC_FULL.md §6, the payload is JSON rather than protocol-buffers -
// the teacher's api/proto/v1 generated package was not retrieved, and
// hand-authoring protoreflect-backed code without running protoc would
// not be genuine generated code, so the framing is kept exactly as
// specified and only the encoding swaps to encoding/json.
//
// Grounded on internal/server.Server (the teacher's gRPC service adapter:
// thin translation layer between wire requests and a single collaborator,
// here internal/lifecycle+jobengine+registry instead of a controller) and
// golang.org/x/sys/unix for the SO_PEERCRED credential read, the same
// package internal/lifecycle/pid.go already uses for unix.WaitStatus.
//
// ============================================================================

package ctlsock

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

var log = slog.With("component", "ctlsock")

// DefaultSocketPath is the well-known control-socket path from spec §6.
const DefaultSocketPath = "/run/sysmasterd/sctl.sock"

// maxFrameSize bounds a single request payload to guard against a
// malformed or hostile length prefix driving an unbounded allocation.
const maxFrameSize = 16 << 20 // 16 MiB

// Action families, from spec §6.
type (
	UnitAction           string
	UnitFileAction       string
	JobAction            string
	MngrAction           string
	SysAction            string
)

const (
	UnitStatus      UnitAction = "Status"
	UnitStart       UnitAction = "Start"
	UnitStop        UnitAction = "Stop"
	UnitRestart     UnitAction = "Restart"
	UnitReload      UnitAction = "Reload"
	UnitIsolate     UnitAction = "Isolate"
	UnitKill        UnitAction = "Kill"
	UnitResetFailed UnitAction = "ResetFailed"

	FileCat        UnitFileAction = "Cat"
	FileEnable     UnitFileAction = "Enable"
	FileDisable    UnitFileAction = "Disable"
	FileMask       UnitFileAction = "Mask"
	FileUnmask     UnitFileAction = "Unmask"
	FileGetDefault UnitFileAction = "GetDefault"
	FileSetDefault UnitFileAction = "SetDefault"

	JobList   JobAction = "List"
	JobCancel JobAction = "Cancel"

	MngrReload    MngrAction = "Reload"
	MngrReexec    MngrAction = "Reexec"
	MngrListUnits MngrAction = "ListUnits"

	SysReboot    SysAction = "Reboot"
	SysShutdown  SysAction = "Shutdown"
	SysHalt      SysAction = "Halt"
	SysSuspend   SysAction = "Suspend"
	SysPoweroff  SysAction = "Poweroff"
	SysHibernate SysAction = "Hibernate"
)

// Request is the envelope every frame decodes into; exactly one of the
// Comm fields is expected to be populated. dispatch routes on the first
// non-nil Comm field in declaration order and does not read Kind.
type Request struct {
	Kind string `json:"kind"`

	UnitComm           *UnitCommRequest           `json:"unit_comm,omitempty"`
	UnitFile           *UnitFileRequest           `json:"unit_file,omitempty"`
	JobComm            *JobCommRequest            `json:"job_comm,omitempty"`
	MngrComm           *MngrCommRequest           `json:"mngr_comm,omitempty"`
	SysComm            *SysCommRequest            `json:"sys_comm,omitempty"`
	SwitchRootComm     *SwitchRootCommRequest     `json:"switch_root_comm,omitempty"`
	TransientUnitComm  *TransientUnitCommRequest  `json:"transient_unit_comm,omitempty"`
}

type UnitCommRequest struct {
	Action UnitAction `json:"action"`
	Units  []string   `json:"units"`
}

type UnitFileRequest struct {
	Action UnitFileAction `json:"action"`
	Units  []string       `json:"units"`
}

type JobCommRequest struct {
	Action JobAction `json:"action"`
	JobID  string    `json:"job_id"`
}

type MngrCommRequest struct {
	Action MngrAction `json:"action"`
}

type SysCommRequest struct {
	Action SysAction `json:"action"`
	Force  bool      `json:"force"`
}

type SwitchRootCommRequest struct {
	Init []string `json:"init"`
}

type TransientUnitCommRequest struct {
	JobMode    string            `json:"job_mode"`
	UnitConfig map[string]string `json:"unit_config"`
	AuxUnits   []string          `json:"aux_units"`
}

// Response is the HTTP-like envelope from spec §6.
type Response struct {
	Status    uint32 `json:"status"`     // 2xx/4xx/5xx
	ErrorCode uint32 `json:"error_code"` // 0 on success
	Message   string `json:"message"`
}

// Handler is the narrow application-level contract: one method per
// request-kind family. Implementations translate each call into calls
// against internal/registry, internal/lifecycle, and internal/jobengine.
type Handler interface {
	HandleUnitComm(req UnitCommRequest) Response
	HandleUnitFile(req UnitFileRequest) Response
	HandleJobComm(req JobCommRequest) Response
	HandleMngrComm(req MngrCommRequest) Response
	HandleSysComm(req SysCommRequest) Response
	HandleSwitchRootComm(req SwitchRootCommRequest) Response
	HandleTransientUnitComm(req TransientUnitCommRequest) Response
}

// ErrUnknownKind is returned (as a Response with status 400) for a frame
// with no Comm field populated.
var ErrUnknownKind = errors.New("ctlsock: unrecognized request kind")

// Server accepts connections on a unix socket and dispatches framed
// requests to Handler.
type Server struct {
	handler Handler

	mu       sync.Mutex
	listener *net.UnixListener
	path     string
}

// NewServer creates a Server bound to no socket yet; call Listen to start
// accepting connections.
func NewServer(handler Handler) *Server {
	return &Server{handler: handler}
}

// Listen opens the unix socket at path (removing any stale socket file
// first), sets mode 0666 per spec §6's SO_PASSCRED-world-writable design
// (authentication happens per-connection via SO_PEERCRED, not via socket
// permission bits), and returns once bound.
func (s *Server) Listen(path string) error {
	if path == "" {
		path = DefaultSocketPath
	}
	_ = os.Remove(path)

	addr, err := net.ResolveUnixAddr("unix", path)
	if err != nil {
		return fmt.Errorf("ctlsock: resolve %s: %w", path, err)
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("ctlsock: listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		return fmt.Errorf("ctlsock: chmod %s: %w", path, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.path = path
	s.mu.Unlock()
	return nil
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	_ = os.Remove(s.path)
	s.listener = nil
	return err
}

// Serve accepts connections in a loop until the listener is closed,
// handling each on its own goroutine. Callers typically run it via
// internal/dispatch.Dispatcher.RegisterIO, feeding it through a ready
// channel backed by an accept loop; here it is a direct blocking loop
// for the simpler embedding case (e.g. running ctlsock on its own
// goroutine from cmd/sysmasterd).
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ctlsock: Serve called before Listen")
	}
	for {
		conn, err := ln.AcceptUnix()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ctlsock: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn *net.UnixConn) {
	defer conn.Close()

	uid, err := peerUID(conn)
	if err != nil {
		log.Warn("could not read peer credentials", "err", err)
		return
	}

	for {
		req, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("frame read ended", "err", err)
			}
			return
		}

		resp := s.dispatch(req, uid)

		if err := writeFrame(conn, resp); err != nil {
			log.Warn("frame write failed", "err", err)
			return
		}
	}
}

func isPrivileged(req Request) bool {
	switch {
	case req.MngrComm != nil:
		return true
	case req.SysComm != nil:
		return true
	case req.SwitchRootComm != nil:
		return true
	case req.UnitFile != nil:
		switch req.UnitFile.Action {
		case FileEnable, FileDisable, FileMask, FileUnmask, FileSetDefault:
			return true
		}
	}
	return false
}

func (s *Server) dispatch(req Request, uid uint32) Response {
	if isPrivileged(req) && uid != 0 {
		return Response{Status: 403, ErrorCode: 1, Message: "privileged operation requires uid 0"}
	}

	switch {
	case req.UnitComm != nil:
		return s.handler.HandleUnitComm(*req.UnitComm)
	case req.UnitFile != nil:
		return s.handler.HandleUnitFile(*req.UnitFile)
	case req.JobComm != nil:
		return s.handler.HandleJobComm(*req.JobComm)
	case req.MngrComm != nil:
		return s.handler.HandleMngrComm(*req.MngrComm)
	case req.SysComm != nil:
		return s.handler.HandleSysComm(*req.SysComm)
	case req.SwitchRootComm != nil:
		return s.handler.HandleSwitchRootComm(*req.SwitchRootComm)
	case req.TransientUnitComm != nil:
		return s.handler.HandleTransientUnitComm(*req.TransientUnitComm)
	default:
		return Response{Status: 400, ErrorCode: 1, Message: ErrUnknownKind.Error()}
	}
}

// readFrame reads one length-prefixed JSON request from r.
func readFrame(r io.Reader) (Request, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Request{}, err
	}
	size := binary.LittleEndian.Uint64(lenBuf[:])
	if size > maxFrameSize {
		return Request{}, fmt.Errorf("ctlsock: frame size %d exceeds limit", size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Request{}, err
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		return Request{}, fmt.Errorf("ctlsock: decode request: %w", err)
	}
	return req, nil
}

// writeFrame writes one length-prefixed JSON response to w.
func writeFrame(w io.Writer, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("ctlsock: encode response: %w", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// peerUID reads the connecting process's uid via SO_PEERCRED.
func peerUID(conn *net.UnixConn) (uint32, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var ucred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		ucred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return 0, err
	}
	if sockErr != nil {
		return 0, sockErr
	}
	return ucred.Uid, nil
}
