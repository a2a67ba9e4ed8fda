package daemon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sysmasterd/internal/ctlsock"
	"github.com/ChuLiYu/sysmasterd/internal/jobengine"
	"github.com/ChuLiYu/sysmasterd/internal/submanager/service"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

func serviceStartTrueConfig() service.Config {
	return service.Config{
		ExecStart: []string{"/bin/true"},
		Type:      service.TypeOneshot,
	}
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := New(Config{
		StoreRoot:       t.TempDir(),
		ControlSockPath: "", // not listened in these tests
	})
	require.NoError(t, err)
	return m
}

func addLoadedUnit(t *testing.T, m *Manager, id string) *unit.Unit {
	t.Helper()
	u, err := m.reg.Add(id)
	require.NoError(t, err)
	u.LoadState = unit.LoadLoaded
	return u
}

func TestExecute_StartTransitionsServiceToActive(t *testing.T) {
	m := newTestManager(t)
	u := addLoadedUnit(t, m, "a.service")
	m.svc.SetConfig("a.service", serviceStartTrueConfig())

	err := m.Execute(&jobengine.Job{UnitID: "a.service", Kind: jobengine.KindStart})
	require.NoError(t, err)
	assert.Equal(t, unit.Active, u.Active)
}

func TestExecute_StopTransitionsServiceToInactive(t *testing.T) {
	m := newTestManager(t)
	u := addLoadedUnit(t, m, "a.service")
	m.svc.SetConfig("a.service", serviceStartTrueConfig())
	require.NoError(t, m.Execute(&jobengine.Job{UnitID: "a.service", Kind: jobengine.KindStart}))

	err := m.Execute(&jobengine.Job{UnitID: "a.service", Kind: jobengine.KindStop})
	require.NoError(t, err)
	assert.Equal(t, unit.Inactive, u.Active)
}

func TestExecute_UnknownUnitErrors(t *testing.T) {
	m := newTestManager(t)
	err := m.Execute(&jobengine.Job{UnitID: "ghost.service", Kind: jobengine.KindStart})
	assert.Error(t, err)
}

func TestExecute_VerifyAndNopAreNoOps(t *testing.T) {
	m := newTestManager(t)
	addLoadedUnit(t, m, "a.service")
	assert.NoError(t, m.Execute(&jobengine.Job{UnitID: "a.service", Kind: jobengine.KindVerify}))
	assert.NoError(t, m.Execute(&jobengine.Job{UnitID: "a.service", Kind: jobengine.KindNop}))
}

func TestHandleUnitComm_StatusListsAllUnitsWhenNoneNamed(t *testing.T) {
	m := newTestManager(t)
	addLoadedUnit(t, m, "a.service")
	addLoadedUnit(t, m, "b.service")

	resp := m.HandleUnitComm(ctlsock.UnitCommRequest{Action: ctlsock.UnitStatus})
	assert.Equal(t, uint32(200), resp.Status)
	assert.Contains(t, resp.Message, "a.service")
	assert.Contains(t, resp.Message, "b.service")
}

func TestHandleUnitComm_StatusReportsNotLoadedForUnknownUnit(t *testing.T) {
	m := newTestManager(t)
	resp := m.HandleUnitComm(ctlsock.UnitCommRequest{Action: ctlsock.UnitStatus, Units: []string{"ghost.service"}})
	assert.Contains(t, resp.Message, "not loaded")
}

func TestHandleUnitComm_StartSubmitsAJob(t *testing.T) {
	m := newTestManager(t)
	addLoadedUnit(t, m, "a.service")
	m.svc.SetConfig("a.service", serviceStartTrueConfig())

	resp := m.HandleUnitComm(ctlsock.UnitCommRequest{Action: ctlsock.UnitStart, Units: []string{"a.service"}})
	assert.Equal(t, uint32(200), resp.Status)

	m.engine.Tick(time.Now())
	u, _ := m.reg.Get("a.service")
	assert.Equal(t, unit.Active, u.Active)
}

func TestHandleJobComm_CancelUnknownJobReturns404(t *testing.T) {
	m := newTestManager(t)
	resp := m.HandleJobComm(ctlsock.JobCommRequest{Action: ctlsock.JobCancel, JobID: "ghost"})
	assert.Equal(t, uint32(404), resp.Status)
}

func TestHandleMngrComm_ListUnitsDelegatesToStatus(t *testing.T) {
	m := newTestManager(t)
	addLoadedUnit(t, m, "a.service")
	resp := m.HandleMngrComm(ctlsock.MngrCommRequest{Action: ctlsock.MngrListUnits})
	assert.Contains(t, resp.Message, "a.service")
}

func TestHandleSwitchRootComm_ReturnsNotImplemented(t *testing.T) {
	m := newTestManager(t)
	resp := m.HandleSwitchRootComm(ctlsock.SwitchRootCommRequest{Init: []string{"/sbin/init"}})
	assert.Equal(t, uint32(501), resp.Status)
}

func TestHandleTransientUnitComm_RejectsEmptyAuxUnits(t *testing.T) {
	m := newTestManager(t)
	resp := m.HandleTransientUnitComm(ctlsock.TransientUnitCommRequest{})
	assert.Equal(t, uint32(400), resp.Status)
}
