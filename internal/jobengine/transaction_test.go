package jobengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/sysmasterd/internal/registry"
	"github.com/ChuLiYu/sysmasterd/pkg/depgraph"
	"github.com/ChuLiYu/sysmasterd/pkg/unit"
)

func loadedRegistry(t *testing.T, ids ...string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, id := range ids {
		_, err := reg.Add(id)
		require.NoError(t, err)
		u, _ := reg.Get(id)
		u.LoadState = unit.LoadLoaded
	}
	return reg
}

func TestBuildTransaction_ExpandsRequiresAsStart(t *testing.T) {
	g := depgraph.New()
	g.Insert("web.service", depgraph.Requires, "db.service", depgraph.MaskFile)
	reg := loadedRegistry(t, "web.service", "db.service")

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart}}, ModeFail)
	require.NoError(t, err)

	jobs := tx.Jobs()
	assert.Len(t, jobs, 2)

	byUnit := map[string]*Job{}
	for _, j := range jobs {
		byUnit[j.UnitID] = j
	}
	assert.Equal(t, KindStart, byUnit["web.service"].Kind)
	assert.Equal(t, KindStart, byUnit["db.service"].Kind)
	assert.True(t, byUnit["web.service"].Anchor)
	assert.False(t, byUnit["db.service"].Anchor)
}

func TestBuildTransaction_OrdersByBeforeEdge(t *testing.T) {
	g := depgraph.New()
	g.Insert("web.service", depgraph.Requires, "db.service", depgraph.MaskFile)
	g.Insert("db.service", depgraph.Before, "web.service", depgraph.MaskFile)
	reg := loadedRegistry(t, "web.service", "db.service")

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart}}, ModeFail)
	require.NoError(t, err)

	var webJob, dbJob *Job
	for _, j := range tx.Jobs() {
		switch j.UnitID {
		case "web.service":
			webJob = j
		case "db.service":
			dbJob = j
		}
	}
	require.NotNil(t, webJob)
	require.NotNil(t, dbJob)
	assert.Contains(t, webJob.DependsOn, dbJob.ID, "web must wait on db per the Before edge")
}

func TestBuildTransaction_FailModeRejectsConflict(t *testing.T) {
	g := depgraph.New()
	reg := loadedRegistry(t, "web.service")

	// simulate an already-pending Stop by building with two intents that
	// conflict directly.
	_, err := BuildTransaction(g, reg, []Intent{
		{UnitID: "web.service", Kind: KindStart},
		{UnitID: "web.service", Kind: KindStop},
	}, ModeFail)
	assert.ErrorIs(t, err, ErrUnmergeable)
}

func TestBuildTransaction_ReplaceModeResolvesConflict(t *testing.T) {
	g := depgraph.New()
	reg := loadedRegistry(t, "web.service")

	tx, err := BuildTransaction(g, reg, []Intent{
		{UnitID: "web.service", Kind: KindStart},
		{UnitID: "web.service", Kind: KindStop},
	}, ModeReplace)
	require.NoError(t, err)

	jobs := tx.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, KindStop, jobs[0].Kind)
}

func TestBuildTransaction_ValidateFailsUnloadedUnit(t *testing.T) {
	g := depgraph.New()
	reg := registry.New()
	_, err := reg.Add("web.service")
	require.NoError(t, err)
	// left at LoadStub, not Loaded, with no loader registered
	reg.DrainLoadQueue() // resolves to LoadNotFound since no loader

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart}}, ModeFail)
	require.NoError(t, err)

	jobs := tx.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StateFinished, jobs[0].State)
	assert.Equal(t, ResultDependency, jobs[0].Result)
}

func TestBuildTransaction_NoRelevancySkipsValidationFailure(t *testing.T) {
	g := depgraph.New()
	reg := registry.New()
	_, err := reg.Add("web.service")
	require.NoError(t, err)
	reg.DrainLoadQueue()

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart, Attrs: Attrs{NoRelevancy: true}}}, ModeFail)
	require.NoError(t, err)

	jobs := tx.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, StateInit, jobs[0].State)
}

func TestBuildTransaction_IsolateStopsUnreachableActiveUnits(t *testing.T) {
	g := depgraph.New()
	reg := loadedRegistry(t, "web.service", "stray.service")
	strayUnit, _ := reg.Get("stray.service")
	strayUnit.Active = unit.Active

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart}}, ModeIsolate)
	require.NoError(t, err)

	var strayJob *Job
	for _, j := range tx.Jobs() {
		if j.UnitID == "stray.service" {
			strayJob = j
		}
	}
	require.NotNil(t, strayJob)
	assert.Equal(t, KindStop, strayJob.Kind)
}

func TestBuildTransaction_IgnoreDepsSkipsExpansion(t *testing.T) {
	g := depgraph.New()
	g.Insert("web.service", depgraph.Requires, "db.service", depgraph.MaskFile)
	reg := loadedRegistry(t, "web.service", "db.service")

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "web.service", Kind: KindStart}}, ModeIgnoreDeps)
	require.NoError(t, err)
	assert.Len(t, tx.Jobs(), 1)
}

func TestBuildTransaction_CycleBrokenByDroppingNonAnchorEdge(t *testing.T) {
	g := depgraph.New()
	// a requires b requires a, with a Before cycle a->b->a; a is the anchor.
	g.Insert("a.service", depgraph.Requires, "b.service", depgraph.MaskFile)
	g.Insert("b.service", depgraph.Requires, "a.service", depgraph.MaskFile)
	g.Insert("a.service", depgraph.Before, "b.service", depgraph.MaskFile)
	g.Insert("b.service", depgraph.Before, "a.service", depgraph.MaskFile)
	reg := loadedRegistry(t, "a.service", "b.service")

	tx, err := BuildTransaction(g, reg, []Intent{{UnitID: "a.service", Kind: KindStart}}, ModeFail)
	require.NoError(t, err)
	assert.Len(t, tx.Jobs(), 2)
}
