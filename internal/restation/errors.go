// ============================================================================
// sysmasterd Reliability Store
// ============================================================================
//
// Package: internal/restation
// File: errors.go
// Purpose: Sentinel errors for the reliability store, in the teacher's
//          per-package sentinel-error style (internal/storage/wal/errors.go).
//
// ============================================================================

package restation

import "errors"

var (
	// ErrCorrupted indicates a table segment file failed to parse.
	ErrCorrupted = errors.New("restation: table segment is corrupted")
	// ErrChecksumMismatch indicates a record's checksum did not match its payload.
	ErrChecksumMismatch = errors.New("restation: checksum mismatch")
	// ErrStoreClosed indicates an operation was attempted after Close.
	ErrStoreClosed = errors.New("restation: store is closed")
	// ErrTableNotRegistered indicates a table name was never registered.
	ErrTableNotRegistered = errors.New("restation: table not registered")
	// ErrOpenFailed is returned when the persistent directory cannot be
	// opened at startup; per spec §4.1 this is fatal.
	ErrOpenFailed = errors.New("restation: failed to open persistent directory")
)
