// ============================================================================
// sysmasterd Mount Sub-Manager
// ============================================================================
//
// Package: internal/submanager/mount
// File: mount.go
// Purpose: The mount kind's sub-manager (spec §4.6): the one kind whose
//          Enumerate actually scans a live kernel source rather than just
//          unit files, per spec §4.6's own example ("/proc/self/mountinfo
//          for mounts").
//
// Grounded on original_source/coms/mount/src/mount_comm.rs's MountState/
// MountUnitComm shape (a rentry keyed by unit id mirroring kernel mount
// state) and on the real /proc/<pid>/mountinfo line format.
//
// ============================================================================

package mount

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/ChuLiYu/sysmasterd/internal/restation"
)

// Config is one unit's Mount section.
type Config struct {
	What    string // device or source path
	Where   string // mount point
	FSType  string
	Options string
}

// mountState is the persisted, per-unit piece of recovery-relevant state:
// whether the kernel currently reports this mount point as mounted.
type mountState struct {
	Mounted bool
}

// Manager is the mount kind's sub-manager.
type Manager struct {
	restation.NoopStation

	mu            sync.Mutex
	configs       map[string]Config
	rentry        *restation.Table[mountState]
	mountinfoPath string
}

// New creates the mount sub-manager, registering its rentry table
// ("mnt-mng") against store.
func New(store *restation.Store) (*Manager, error) {
	t, err := restation.RegisterTable[mountState](store, "mnt-mng")
	if err != nil {
		return nil, fmt.Errorf("submanager/mount: %w", err)
	}
	return &Manager{
		configs:       make(map[string]Config),
		rentry:        t,
		mountinfoPath: "/proc/self/mountinfo",
	}, nil
}

// SetConfig installs or replaces unitID's Mount section.
func (m *Manager) SetConfig(unitID string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[unitID] = cfg
}

// EnumeratePerpetual: "-.mount" is the kernel's own root mount, always
// present regardless of any unit file, per spec §4.6's own example.
func (m *Manager) EnumeratePerpetual() []string { return []string{"-.mount"} }

// Enumerate reads /proc/self/mountinfo and returns one synthesized unit
// name per currently-mounted path, escaping "/" to "-" the way a mount
// point's unit name is derived from its path.
func (m *Manager) Enumerate() ([]string, error) {
	f, err := os.Open(m.mountinfoPath)
	if err != nil {
		return nil, fmt.Errorf("submanager/mount: open %s: %w", m.mountinfoPath, err)
	}
	defer f.Close()
	return parseMountinfo(f)
}

func parseMountinfo(r io.Reader) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		// mountinfo's fixed fields: id, parent, dev, root, mount-point, ...
		if len(fields) < 5 {
			continue
		}
		names = append(names, UnitNameForPath(fields[4]))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// UnitNameForPath derives a mount unit's name from its mount-point path,
// the same escaping a systemd-style mount unit uses: "/" becomes "-" and
// the root path itself becomes "-.mount".
func UnitNameForPath(path string) string {
	if path == "/" {
		return "-.mount"
	}
	trimmed := strings.Trim(path, "/")
	escaped := strings.ReplaceAll(trimmed, "/", "-")
	return escaped + ".mount"
}

func (m *Manager) PrivateSection() string { return "Mount" }

// MarkMounted records unitID as currently mounted (or not) in the rentry
// table, called after an actual mount(2)/umount(2) by the caller.
func (m *Manager) MarkMounted(unitID string, mounted bool) {
	m.rentry.Insert(unitID, mountState{Mounted: mounted})
}

// IsMounted reports the last recorded mount state for unitID.
func (m *Manager) IsMounted(unitID string) bool {
	st, ok := m.rentry.Get(unitID)
	return ok && st.Mounted
}

// DBCompensateHistory reconciles every recorded mount state against the
// live kernel list, since a crash between mount(2) and the rentry write
// (or vice versa) can leave the two disagreeing.
func (m *Manager) DBCompensateHistory() {
	live, err := m.Enumerate()
	if err != nil {
		return
	}
	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}
	for unitID := range m.rentry.Entries() {
		m.rentry.Insert(unitID, mountState{Mounted: liveSet[unitID]})
	}
}
