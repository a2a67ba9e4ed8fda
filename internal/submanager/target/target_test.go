package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumeratePerpetual_IncludesWellKnownTargets(t *testing.T) {
	m := New()
	targets := m.EnumeratePerpetual()
	assert.Contains(t, targets, "basic.target")
	assert.Contains(t, targets, "multi-user.target")
	assert.Contains(t, targets, "emergency.target")
}

func TestEnumerate_ReturnsNothing(t *testing.T) {
	m := New()
	units, err := m.Enumerate()
	require.NoError(t, err)
	assert.Nil(t, units)
}

func TestPrivateSection_IsTarget(t *testing.T) {
	assert.Equal(t, "Target", New().PrivateSection())
}
