// ============================================================================
// sysmasterd Socket Sub-Manager
// ============================================================================
//
// Package: internal/submanager/socket
// File: socket.go
// Purpose: The socket kind's sub-manager (spec §4.6): owns every configured
//          listen address and the net.Listener backing it, so the
//          associated service can be started on first connection
//          (Accept=false: pass the fd straight through; Accept=true: the
//          core itself accepts and spawns per-connection).
//
// Grounded on original_source/coms/socket/src/socket_config.rs's
// SocketConf fields (ListenStream, ListenDatagram, Accept, Service,
// SocketMode) and on internal/restation/pending.go's close-on-exec
// discipline: a listener handed to a service via ExtraFiles must first be
// retained (FD_CLOEXEC cleared) through the pending-fd table, which is the
// caller's job, not this package's - this package only owns net.Listener
// lifecycle, not fd survival across re-exec.
//
// ============================================================================

package socket

import (
	"fmt"
	"net"
	"sync"

	"github.com/ChuLiYu/sysmasterd/internal/restation"
)

// Config is one unit's Socket section.
type Config struct {
	ListenStream   string // "tcp:host:port" or "unix:/path"
	ListenDatagram string
	Accept         bool
	Service        string // associated service unit id; empty means "<name>.service"
	SocketMode     uint32
}

// Manager is the socket kind's sub-manager.
type Manager struct {
	restation.NoopStation

	mu        sync.Mutex
	configs   map[string]Config
	listeners map[string]net.Listener
}

// New creates the socket sub-manager. Sockets have no persisted rentry
// state of their own - a listener is either open (because this process
// opened it) or not, and that fact does not survive process exit, so
// there is nothing useful to store in the reliability store for this kind.
func New() *Manager {
	return &Manager{
		configs:   make(map[string]Config),
		listeners: make(map[string]net.Listener),
	}
}

// SetConfig installs or replaces unitID's Socket section.
func (m *Manager) SetConfig(unitID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[unitID] = cfg
}

func (m *Manager) EnumeratePerpetual() []string { return nil }
func (m *Manager) Enumerate() ([]string, error) { return nil, nil }
func (m *Manager) PrivateSection() string       { return "Socket" }

// ErrNoConfig is returned by Open when unitID has no Socket config.
var ErrNoConfig = fmt.Errorf("submanager/socket: no config for unit")

// ErrNoListenAddress is returned when neither ListenStream nor
// ListenDatagram names an address.
var ErrNoListenAddress = fmt.Errorf("submanager/socket: no listen address configured")

// Open binds unitID's configured ListenStream address and keeps the
// resulting listener for Close/Listener.
func (m *Manager) Open(unitID string) (net.Listener, error) {
	m.mu.Lock()
	cfg, ok := m.configs[unitID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoConfig
	}
	if cfg.ListenStream == "" {
		return nil, ErrNoListenAddress
	}

	network, address, err := splitListen(cfg.ListenStream)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("submanager/socket: listen %s: %w", cfg.ListenStream, err)
	}

	m.mu.Lock()
	m.listeners[unitID] = ln
	m.mu.Unlock()
	return ln, nil
}

// Listener returns the currently open listener for unitID, if any.
func (m *Manager) Listener(unitID string) (net.Listener, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ln, ok := m.listeners[unitID]
	return ln, ok
}

// Close closes and forgets unitID's listener.
func (m *Manager) Close(unitID string) error {
	m.mu.Lock()
	ln, ok := m.listeners[unitID]
	delete(m.listeners, unitID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return ln.Close()
}

// splitListen turns a "tcp:host:port" / "unix:/path" address string into
// the (network, address) pair net.Listen expects. Bare "host:port" or
// "/path" strings default to tcp/unix respectively, matching how a
// ListenStream= value is written in a unit file.
func splitListen(addr string) (network, address string, err error) {
	if len(addr) > 0 && addr[0] == '/' {
		return "unix", addr, nil
	}
	for i := 0; i < len(addr); i++ {
		if addr[i] == ':' {
			prefix := addr[:i]
			if prefix == "tcp" || prefix == "tcp4" || prefix == "tcp6" || prefix == "unix" || prefix == "unixpacket" {
				return prefix, addr[i+1:], nil
			}
			break
		}
	}
	return "tcp", addr, nil
}
