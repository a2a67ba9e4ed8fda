package jobengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeKinds_IdempotentSameKind(t *testing.T) {
	k, err := mergeKinds(KindStart, KindStart)
	assert.NoError(t, err)
	assert.Equal(t, KindStart, k)
}

func TestMergeKinds_StartReloadBecomesRestart(t *testing.T) {
	k, err := mergeKinds(KindStart, KindReload)
	assert.NoError(t, err)
	assert.Equal(t, KindRestart, k)

	k, err = mergeKinds(KindReload, KindStart)
	assert.NoError(t, err)
	assert.Equal(t, KindRestart, k)
}

func TestMergeKinds_StopRestartBecomesStop(t *testing.T) {
	k, err := mergeKinds(KindStop, KindRestart)
	assert.NoError(t, err)
	assert.Equal(t, KindStop, k)
}

func TestMergeKinds_VerifyAndNopAbsorbed(t *testing.T) {
	k, err := mergeKinds(KindVerify, KindStart)
	assert.NoError(t, err)
	assert.Equal(t, KindStart, k)

	k, err = mergeKinds(KindStop, KindNop)
	assert.NoError(t, err)
	assert.Equal(t, KindStop, k)
}

func TestMergeKinds_StartStopConflicts(t *testing.T) {
	_, err := mergeKinds(KindStart, KindStop)
	assert.ErrorIs(t, err, ErrUnmergeable)
}

func TestKindExpand_CompoundKinds(t *testing.T) {
	assert.Equal(t, KindReload, KindTryReload.expand())
	assert.Equal(t, KindRestart, KindTryRestart.expand())
	assert.Equal(t, KindReload, KindReloadOrStart.expand())
	assert.Equal(t, KindStart, KindStart.expand())
}

func TestAttrs_MergeIsOR(t *testing.T) {
	a := Attrs{Force: true}
	b := Attrs{Irreversible: true}
	merged := a.merge(b)
	assert.True(t, merged.Force)
	assert.True(t, merged.Irreversible)
}
