// ============================================================================
// sysmasterd Reliability Store
// ============================================================================
//
// Package: internal/restation
// File: store.go
// Purpose: The A/B directory-swap persistent store from spec §4.1/§6/§9.
//
// On disk: <root>/a/*.json and <root>/b/*.json, one file per registered
// table, plus <root>/b.effect, an empty flag file whose presence selects
// side "b" (spec §6). Readers always resolve the "current" side by
// checking for the flag file; Commit writes every registered table's full
// cache to the *other* side, fsyncs the directory, and only then flips the
// flag file
// (create it to switch a->b, remove it to switch b->a) - so a crash mid-
// commit leaves the flag file pointing at the still-consistent old side.
//
// ============================================================================

package restation

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const flagFileName = "b.effect"

// Store is the reliability store: a registry of tables plus the last-
// frame/last-unit breadcrumb.
type Store struct {
	mu     sync.Mutex
	root   string
	tables map[string]flushable

	last *Last
}

// Open opens (creating if absent) the persistent directory at root. Per
// spec §4.1, failing to open it is fatal at startup - callers should treat
// a non-nil error here as cause to abort manager startup.
func Open(root string) (*Store, error) {
	for _, side := range []string{"a", "b"} {
		if err := os.MkdirAll(filepath.Join(root, side), 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpenFailed, err)
		}
	}
	s := &Store{
		root:   root,
		tables: make(map[string]flushable),
	}
	s.last = newLast(s)
	return s, nil
}

// currentSide returns "b" if the flag file is present, else "a".
func (s *Store) currentSide() string {
	if _, err := os.Stat(filepath.Join(s.root, flagFileName)); err == nil {
		return "b"
	}
	return "a"
}

func (s *Store) otherSide(side string) string {
	if side == "a" {
		return "b"
	}
	return "a"
}

func (s *Store) sideDir(side string) string {
	return filepath.Join(s.root, side)
}

// RegisterTable registers a table so it participates in Commit/Import/
// Clear, and loads any existing state for it from the current side. Table
// registration itself is not generic-method-friendly in Go, hence the
// free function (spec's register(table_name, handle)).
func RegisterTable[V any](s *Store, name string) (*Table[V], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tables[name]; exists {
		return nil, fmt.Errorf("restation: table %q already registered", name)
	}
	t := newTable[V](name)
	if err := t.readFrom(s.sideDir(s.currentSide())); err != nil {
		return nil, err
	}
	s.tables[name] = t
	return t, nil
}

// Commit flushes every registered table to the inactive side, fsyncs it,
// then atomically flips the flag file. This is the only place the store
// touches disk for table data; Insert/Remove only ever touch the cache.
func (s *Store) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.currentSide()
	target := s.otherSide(current)
	targetDir := s.sideDir(target)

	// The inactive side may be stale relative to the active one (e.g. it
	// was never written since the last swap); bring every table's value
	// across regardless of dirtiness by writing the full current cache,
	// not just deltas, so target always matches current afterward.
	for _, t := range s.tables {
		if err := t.writeTo(targetDir); err != nil {
			return err
		}
	}

	dir, err := os.Open(targetDir)
	if err != nil {
		return fmt.Errorf("restation: open %s for fsync: %w", targetDir, err)
	}
	syncErr := dir.Sync()
	dir.Close()
	if syncErr != nil {
		return fmt.Errorf("restation: fsync %s: %w", targetDir, syncErr)
	}

	return s.flip(current, target)
}

func (s *Store) flip(from, to string) error {
	flag := filepath.Join(s.root, flagFileName)
	if to == "b" {
		f, err := os.OpenFile(flag, os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("restation: create flag file: %w", err)
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return fmt.Errorf("restation: sync flag file: %w", err)
		}
		return f.Close()
	}
	if err := os.Remove(flag); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("restation: remove flag file: %w", err)
	}
	return nil
}

// Clear empties every registered table, in memory only; callers that want
// this durable must follow with Commit.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		t.clearCache()
	}
}

// Last exposes the last-frame/last-unit breadcrumb.
func (s *Store) Last() *Last { return s.last }

// Compensate runs the startup recovery sequence from spec §4.1: map every
// station's cached state into live objects, then dispatch history and
// last-frame compensation, then re-execute whatever the breadcrumb implies
// was interrupted, and finally reestablish external entries. Called once
// at startup, after Open, with hub holding every registered station.
func (s *Store) Compensate(hub *Hub) {
	hub.DBMap(false)

	frame, hasFrame := s.last.Frame()
	unit, _ := s.last.Unit()

	var framePtr *Frame
	if hasFrame {
		framePtr = &frame
	}

	hub.DBCompensate(framePtr, unit)
	hub.MakeConsistent(framePtr, unit)
	hub.EntryColdplug()

	s.last.ClearFrame()
	s.last.ClearUnit()
}
