package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ParsesKindFromID(t *testing.T) {
	u, err := New("nginx.service")
	require.NoError(t, err)
	assert.Equal(t, KindService, u.Kind)
	assert.Equal(t, LoadStub, u.LoadState)
	assert.Equal(t, Inactive, u.Active)
}

func TestNew_RejectsUnknownKind(t *testing.T) {
	_, err := New("nginx.bogus")
	assert.Error(t, err)
}

func TestNew_RejectsMissingSuffix(t *testing.T) {
	_, err := New("nginx")
	assert.Error(t, err)
}

func TestStem(t *testing.T) {
	assert.Equal(t, "nginx", Stem("nginx.service"))
	assert.Equal(t, "getty@tty1", Stem("getty@tty1.service"))
}

func TestCanTransitionLifecycle(t *testing.T) {
	u, err := New("a.service")
	require.NoError(t, err)
	assert.False(t, u.CanTransitionLifecycle())

	u.LoadState = LoadLoaded
	assert.True(t, u.CanTransitionLifecycle())

	u.LoadState = LoadError
	u.Active = Failed
	assert.True(t, u.CanTransitionLifecycle())
}

func TestSpecifierContext_Expand(t *testing.T) {
	c := &SpecifierContext{
		Instance: "tty1",
		FullName: "getty@tty1.service",
		Hostname: "host1",
	}

	assert.Equal(t, "tty1", c.Expand("%i"))
	assert.Equal(t, "getty@tty1.service on host1", c.Expand("%n on %H"))
	assert.Equal(t, "100%", c.Expand("100%%"))
	// unknown-but-plausible specifier resolves to empty, with a warning
	assert.Equal(t, "[]", c.Expand("[%x]"))
	// not a specifier letter at all: kept literal
	assert.Equal(t, "50%+", c.Expand("50%+"))
	// trailing unconsumed percent is kept literal
	assert.Equal(t, "abc%", c.Expand("abc%"))
}
