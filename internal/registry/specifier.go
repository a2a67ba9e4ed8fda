// ============================================================================
// sysmasterd Unit Registry
// ============================================================================
//
// Package: internal/registry
// File: specifier.go
// Purpose: Builds the per-unit pkg/unit.SpecifierContext used to expand %i,
//          %n, %H, and friends in a loaded unit's configuration values
//          (spec §4.2). The registry is the natural owner of this wiring
//          because %i/%N/%p derive from the unit id it already holds, and
//          %H/%m/%v/%t derive from host facts it resolves once and caches.
//
// ============================================================================

package registry

import (
	"bufio"
	"os"
	"os/user"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

// hostFacts are the specifiers that never vary across units in a single
// process lifetime, resolved lazily and cached.
type hostFacts struct {
	once     sync.Once
	hostname string
	machine  string
	kernel   string
	arch     string
}

var facts hostFacts

func (h *hostFacts) resolve() {
	h.once.Do(func() {
		if name, err := os.Hostname(); err == nil {
			h.hostname = name
		}
		if id, err := readFirstLine("/etc/machine-id"); err == nil {
			h.machine = id
		}
		var uts unix.Utsname
		if err := unix.Uname(&uts); err == nil {
			h.kernel = cString(uts.Release[:])
		}
		h.arch = runtime.GOARCH
	})
}

func readFirstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	if sc.Scan() {
		return strings.TrimSpace(sc.Text()), nil
	}
	return "", sc.Err()
}

func cString(b []byte) string {
	i := strings.IndexByte(string(b), 0)
	if i < 0 {
		return string(b)
	}
	return string(b[:i])
}

// SpecifierContextFor builds the %-escape context for u: identity fields
// from the unit id, host facts resolved once per process, and the invoking
// user's passwd entry.
func SpecifierContextFor(u *unit.Unit) unit.SpecifierContext {
	facts.resolve()

	stem := unit.Stem(u.ID)
	instance := stem
	nameNoSuffix := stem
	if i := strings.IndexByte(stem, '@'); i >= 0 {
		nameNoSuffix = stem[:i]
		instance = stem[i+1:]
	}

	ctx := unit.SpecifierContext{
		Instance:         instance,
		InstanceUnescape: unescapeTemplate(instance),
		FullName:         u.ID,
		NameNoSuffix:     nameNoSuffix,
		Prefix:           nameNoSuffix,
		PrefixUnescape:   unescapeTemplate(nameNoSuffix),
		Filename:         u.FragmentPath,
		CGroupPath:       u.CGroupPath,
		Hostname:         facts.hostname,
		ShortHostname:    shortHostname(facts.hostname),
		MachineID:        facts.machine,
		KernelRelease:    facts.kernel,
		Arch:             facts.arch,
		Tempdir:          "/tmp",
		RuntimeRoot:      "/run",
		StateRoot:        "/var/lib",
		CacheRoot:        "/var/cache",
		LogRoot:          "/var/log",
		ConfigRoot:       "/etc",
	}

	if cur, err := user.Current(); err == nil {
		ctx.User = cur.Username
		ctx.UID = cur.Uid
		ctx.GID = cur.Gid
		ctx.Home = cur.HomeDir
		if g, err := userGroupName(cur.Gid); err == nil {
			ctx.Group = g
		}
	}
	ctx.Shell = os.Getenv("SHELL")

	return ctx
}

func shortHostname(full string) string {
	if i := strings.IndexByte(full, '.'); i >= 0 {
		return full[:i]
	}
	return full
}

func userGroupName(gid string) (string, error) {
	g, err := user.LookupGroupId(gid)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}

// unescapeTemplate reverses systemd-style template escaping ("-" -> "/") for
// %I/%P; a bare instance with no escaped separators is returned unchanged.
func unescapeTemplate(s string) string {
	return strings.ReplaceAll(s, "-", "/")
}

// ExpandForUnit expands text using u's specifier context, a convenience
// wrapper so callers (internal/submanager kind packages) don't need to
// import pkg/unit directly just to call Expand.
func ExpandForUnit(u *unit.Unit, text string) string {
	ctx := SpecifierContextFor(u)
	return ctx.Expand(text)
}
