// ============================================================================
// sysmasterd Unit Model
// ============================================================================
//
// Package: pkg/unit
// File: specifier.go
// Purpose: %-escape expansion for unit file value strings (spec §4.2).
//
// Ported from the specifier scanner in the original implementation
// (specifier_escape): scan the text one rune at a time, track whether the
// previous rune was an unconsumed '%', and on a recognized letter call the
// matching lookup function. An unrecognized-but-plausible specifier letter
// produces a logged warning and expands to the empty string rather than an
// error, since spec §4.2 says missing specifiers resolve to "" with a
// warning, not a hard failure.
//
// ============================================================================

package unit

import (
	"log/slog"
	"strings"
)

// SpecifierContext supplies the values substituted for each % escape.
type SpecifierContext struct {
	Instance         string // %i
	InstanceUnescape string // %I
	FullName         string // %n
	NameNoSuffix     string // %N
	Prefix           string // %p
	PrefixUnescape   string // %P
	Filename         string // %f
	CGroupPath       string // %c
	User             string // %u
	UID              string // %U
	Group            string // %g
	GID              string // %G
	Home             string // %h
	Shell            string // %s
	Hostname         string // %H
	ShortHostname    string // %q
	MachineID        string // %m
	BootID           string // %b
	KernelRelease    string // %v
	Arch             string // %a
	OSID             string // %o
	OSVersionID      string // %w
	OSBuildID        string // %B
	OSVariantID      string // %W
	Tempdir          string // %T
	PersistentTmp    string // %V
	ConfigRoot       string // %E
	CacheRoot        string // %C
	LogRoot          string // %L
	StateRoot        string // %S
	RuntimeRoot      string // %t
}

// lookup returns the substitution for a specifier letter and whether the
// letter is recognized at all (used to distinguish "known, empty" from
// "not a specifier, keep the literal %x").
func (c *SpecifierContext) lookup(r rune) (string, bool) {
	switch r {
	case 'i':
		return c.Instance, true
	case 'I':
		return c.InstanceUnescape, true
	case 'n':
		return c.FullName, true
	case 'N':
		return c.NameNoSuffix, true
	case 'p':
		return c.Prefix, true
	case 'P':
		return c.PrefixUnescape, true
	case 'f':
		return c.Filename, true
	case 'c':
		return c.CGroupPath, true
	case 'u':
		return c.User, true
	case 'U':
		return c.UID, true
	case 'g':
		return c.Group, true
	case 'G':
		return c.GID, true
	case 'h':
		return c.Home, true
	case 's':
		return c.Shell, true
	case 'H':
		return c.Hostname, true
	case 'q':
		return c.ShortHostname, true
	case 'm':
		return c.MachineID, true
	case 'b':
		return c.BootID, true
	case 'v':
		return c.KernelRelease, true
	case 'a':
		return c.Arch, true
	case 'o':
		return c.OSID, true
	case 'w':
		return c.OSVersionID, true
	case 'B':
		return c.OSBuildID, true
	case 'W':
		return c.OSVariantID, true
	case 'T':
		return c.Tempdir, true
	case 'V':
		return c.PersistentTmp, true
	case 'E':
		return c.ConfigRoot, true
	case 'C':
		return c.CacheRoot, true
	case 'L':
		return c.LogRoot, true
	case 'S':
		return c.StateRoot, true
	case 't':
		return c.RuntimeRoot, true
	default:
		return "", false
	}
}

// possibleSpecifiers are letters that are plausibly specifiers even when
// this context doesn't define one, so a miss is "missing specifier"
// (warn, empty) rather than "not a specifier at all" (keep literal %x).
const possibleSpecifiers = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ%"

// Expand resolves every % escape in text against c.
func (c *SpecifierContext) Expand(text string) string {
	var b strings.Builder
	percent := false
	for _, r := range text {
		if percent {
			percent = false
			if r == '%' {
				b.WriteByte('%')
				continue
			}
			if v, ok := c.lookup(r); ok {
				b.WriteString(v)
				continue
			}
			if strings.ContainsRune(possibleSpecifiers, r) {
				slog.Warn("unit: missing specifier", "specifier", string(r), "text", text)
				continue
			}
			b.WriteByte('%')
			b.WriteRune(r)
			continue
		}
		if r == '%' {
			percent = true
			continue
		}
		b.WriteRune(r)
	}
	if percent {
		b.WriteByte('%')
	}
	return b.String()
}
