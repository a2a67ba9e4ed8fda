package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/internal/restation"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

func loadedUnit(t *testing.T, id string) *unit.Unit {
	t.Helper()
	u, err := unit.New(id)
	require.NoError(t, err)
	u.LoadState = unit.LoadLoaded
	return u
}

func TestTransition_RejectsUnloadedUnit(t *testing.T) {
	m := New(nil, nil, nil)
	u, err := unit.New("nginx.service")
	require.NoError(t, err)

	err = m.Transition(u, unit.Activating, "start")
	assert.Error(t, err)
}

func TestTransition_RejectsIllegalEdge(t *testing.T) {
	m := New(nil, nil, nil)
	u := loadedUnit(t, "nginx.service")

	err := m.Transition(u, unit.Reloading, "reload")
	assert.Error(t, err, "Inactive has no direct edge to Reloading")
}

func TestTransition_WalksStartSequence(t *testing.T) {
	m := New(nil, nil, nil)
	u := loadedUnit(t, "nginx.service")

	require.NoError(t, m.Transition(u, unit.Activating, "start"))
	assert.Equal(t, unit.Activating, u.Active)

	require.NoError(t, m.Transition(u, unit.Active, "start"))
	assert.Equal(t, unit.Active, u.Active)
}

func TestFail_BypassesLoadGuard(t *testing.T) {
	m := New(nil, nil, nil)
	u, err := unit.New("nginx.service")
	require.NoError(t, err)
	u.LoadState = unit.LoadStub
	u.Active = unit.Activating

	require.NoError(t, m.Fail(u, "exec failed"))
	assert.Equal(t, unit.Failed, u.Active)
	assert.Equal(t, "exec failed", u.StatusText)
}

type recordingPropagator struct {
	calls []string
}

func (r *recordingPropagator) OnUnitStateChanged(unitID string, from, to unit.ActiveState) {
	r.calls = append(r.calls, unitID+":"+string(from)+"->"+string(to))
}

func TestTransition_PropagatesToJobEngine(t *testing.T) {
	prop := &recordingPropagator{}
	m := New(nil, nil, prop)
	u := loadedUnit(t, "nginx.service")

	require.NoError(t, m.Transition(u, unit.Activating, "start"))
	assert.Equal(t, []string{"nginx.service:inactive->activating"}, prop.calls)
}

type recordingObserver struct {
	calls int
}

func (r *recordingObserver) OnUnitStateChanged(u *unit.Unit, from, to unit.ActiveState) {
	r.calls++
}

func TestTransition_DispatchesToSubManagerObserver(t *testing.T) {
	m := New(nil, nil, nil)
	obs := &recordingObserver{}
	m.RegisterObserver(unit.KindService, obs)

	u := loadedUnit(t, "nginx.service")
	require.NoError(t, m.Transition(u, unit.Activating, "start"))
	assert.Equal(t, 1, obs.calls)
}

func TestTransition_WritesAndClearsBreadcrumb(t *testing.T) {
	dir := t.TempDir()
	store, err := restation.Open(dir)
	require.NoError(t, err)

	reg := registry.New()
	m := New(reg, store.Last(), nil)
	u := loadedUnit(t, "nginx.service")

	require.NoError(t, m.Transition(u, unit.Activating, "start"))

	_, ok := store.Last().Frame()
	assert.False(t, ok, "breadcrumb should be cleared once the transition completes")
}

func TestParseNotifyMessage_RecognizesAllKeys(t *testing.T) {
	msg := ParseNotifyMessage([]byte("READY=1\nSTATUS=running fine\nMAINPID=4242\nWATCHDOG=1\n"))
	assert.True(t, msg.Ready)
	assert.Equal(t, "running fine", msg.Status)
	assert.True(t, msg.HasPID)
	assert.Equal(t, 4242, msg.MainPID)
	assert.True(t, msg.Watchdog)
}

func TestParseNotifyMessage_IgnoresMalformedMainPID(t *testing.T) {
	msg := ParseNotifyMessage([]byte("MAINPID=not-a-number\nSTOPPING=1\n"))
	assert.False(t, msg.HasPID)
	assert.True(t, msg.Stopping)
}

func TestAcceptMainPIDReassignment(t *testing.T) {
	assert.True(t, AcceptMainPIDReassignment(Credentials{UID: 0, PID: 999}, 111, 222))
	assert.True(t, AcceptMainPIDReassignment(Credentials{UID: 1000, PID: 111}, 111, 222))
	assert.False(t, AcceptMainPIDReassignment(Credentials{UID: 1000, PID: 999}, 111, 222))
}

func TestResolveEmergencyAction_DefaultsToNone(t *testing.T) {
	actions := unit.EmergencyActions{Failure: unit.ActionRebootForce}
	assert.Equal(t, unit.ActionNone, ResolveEmergencyAction(actions, TriggerSuccess))
	assert.Equal(t, unit.ActionRebootForce, ResolveEmergencyAction(actions, TriggerFailure))
	assert.True(t, IsReboot(unit.ActionRebootForce))
	assert.True(t, IsForce(unit.ActionRebootForce))
	assert.False(t, IsImmediate(unit.ActionRebootForce))
}

func TestPIDTable_TrackLookupUntrack(t *testing.T) {
	tbl := NewPIDTable()
	tbl.Track(42, "nginx.service", RoleMain)

	unitID, role, ok := tbl.Lookup(42)
	require.True(t, ok)
	assert.Equal(t, "nginx.service", unitID)
	assert.Equal(t, RoleMain, role)

	tbl.Untrack(42)
	_, _, ok = tbl.Lookup(42)
	assert.False(t, ok)
}
