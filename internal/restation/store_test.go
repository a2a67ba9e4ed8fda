package restation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
	N    int    `json:"n"`
}

func TestRegisterTable_RoundTripPersistence(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	require.NoError(t, err)

	widgets, err := RegisterTable[widget](s, "widgets")
	require.NoError(t, err)

	widgets.Insert("a", widget{Name: "a", N: 1})
	widgets.Insert("b", widget{Name: "b", N: 2})
	widgets.Remove("a")

	require.NoError(t, s.Commit())

	// Reopen from scratch and confirm the on-disk snapshot matches the
	// in-memory state at commit time (export -> import round trip).
	s2, err := Open(dir)
	require.NoError(t, err)
	widgets2, err := RegisterTable[widget](s2, "widgets")
	require.NoError(t, err)

	entries := widgets2.Entries()
	assert.Len(t, entries, 1)
	assert.Equal(t, widget{Name: "b", N: 2}, entries["b"])
}

func TestCommit_FlipsFlagFile(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	assert.Equal(t, "a", s.currentSide())

	widgets, err := RegisterTable[widget](s, "widgets")
	require.NoError(t, err)
	widgets.Insert("x", widget{Name: "x", N: 1})

	require.NoError(t, s.Commit())
	assert.Equal(t, "b", s.currentSide())

	// the data must also have landed on side b on disk
	assert.FileExists(t, filepath.Join(dir, "b", "widgets.json"))

	widgets.Insert("y", widget{Name: "y", N: 2})
	require.NoError(t, s.Commit())
	assert.Equal(t, "a", s.currentSide())
}

// TestCommit_CarriesCleanTablesAcrossRepeatedFlips guards against a torn
// snapshot: a table untouched since its last successful write must still
// land on the new target side on every Commit, not just the side it was
// last written to.
func TestCommit_CarriesCleanTablesAcrossRepeatedFlips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	alpha, err := RegisterTable[widget](s, "alpha")
	require.NoError(t, err)
	beta, err := RegisterTable[widget](s, "beta")
	require.NoError(t, err)

	// round 1: only alpha is touched, flips a -> b.
	alpha.Insert("a1", widget{Name: "a1", N: 1})
	require.NoError(t, s.Commit())
	assert.Equal(t, "b", s.currentSide())

	// round 2: only beta is touched; alpha is untouched since round 1 but
	// must still be carried onto side "a" when the flip reverses.
	beta.Insert("b1", widget{Name: "b1", N: 2})
	require.NoError(t, s.Commit())
	assert.Equal(t, "a", s.currentSide())

	s2, err := Open(dir)
	require.NoError(t, err)
	alpha2, err := RegisterTable[widget](s2, "alpha")
	require.NoError(t, err)
	beta2, err := RegisterTable[widget](s2, "beta")
	require.NoError(t, err)

	assert.Equal(t, widget{Name: "a1", N: 1}, alpha2.Entries()["a1"],
		"alpha must survive a commit round it wasn't dirtied in")
	assert.Equal(t, widget{Name: "b1", N: 2}, beta2.Entries()["b1"])
}

func TestLastFrame_PushPopAndCompensate(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	s.Last().SetUnit("h.service")
	s.Last().SetFrame(DomainJobManager, "DispatchJob", "Start")

	f, ok := s.Last().Frame()
	require.True(t, ok)
	assert.Equal(t, DomainJobManager, f.F1)

	unit, ok := s.Last().Unit()
	require.True(t, ok)
	assert.Equal(t, "h.service", unit)

	s.Last().ClearFrame()
	_, ok = s.Last().Frame()
	assert.False(t, ok)
}

type recordingStation struct {
	NoopStation
	mapped      bool
	compensated bool
	lastFrame   Frame
	lastUnit    string
}

func (r *recordingStation) DBMap(reload bool) { r.mapped = true }
func (r *recordingStation) DoCompensateLast(frame Frame, unit string) {
	r.compensated = true
	r.lastFrame = frame
	r.lastUnit = unit
}

func TestCompensate_DispatchesLastFrameToStations(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	s.Last().SetUnit("h.service")
	s.Last().SetFrame(DomainJobManager, "DispatchJob", "Start")

	hub := NewHub()
	rec := &recordingStation{}
	hub.Register("jobengine", Level2, rec)

	s.Compensate(hub)

	assert.True(t, rec.mapped)
	assert.True(t, rec.compensated)
	assert.Equal(t, DomainJobManager, rec.lastFrame.F1)
	assert.Equal(t, "h.service", rec.lastUnit)

	_, ok := s.Last().Frame()
	assert.False(t, ok, "compensate should clear the breadcrumb once handled")
}
