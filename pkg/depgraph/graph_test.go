package depgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsert_SymmetricPairInsertedAtomically(t *testing.T) {
	g := New()
	g.Insert("b.service", Requires, "c.service", MaskFile)

	assert.Contains(t, g.Gets("b.service", Requires), "c.service")
	assert.Contains(t, g.Gets("c.service", RequiresBy), "b.service")
}

func TestInsert_DuplicateEdgesCollapseMaskOR(t *testing.T) {
	g := New()
	g.Insert("a.service", Wants, "b.service", MaskFile)
	g.Insert("a.service", Wants, "b.service", MaskImplicit)

	g.mu.RLock()
	mask := g.fwd["a.service"][Wants]["b.service"]
	g.mu.RUnlock()

	assert.Equal(t, MaskFile|MaskImplicit, mask)
}

func TestGetsAtom_FollowsAnyRelationWithThatAtom(t *testing.T) {
	g := New()
	g.Insert("d.service", Requires, "e.service", MaskFile)
	g.Insert("d.service", After, "e.service", MaskFile)

	assert.True(t, g.IsDepAtomWith("d.service", AtomPullInStart, "e.service"))
	assert.True(t, g.IsDepAtomWith("d.service", AtomAfter, "e.service"))
	assert.False(t, g.IsDepAtomWith("d.service", AtomOnSuccess, "e.service"))

	neighbors := g.GetsAtom("d.service", AtomPullInStart)
	assert.Equal(t, []string{"e.service"}, neighbors)
}

func TestRemove_DropsUnitFromBothDirections(t *testing.T) {
	g := New()
	g.Insert("f.service", Conflicts, "g.service", MaskFile)
	g.Remove("g.service")

	assert.Empty(t, g.Gets("f.service", Conflicts))
	assert.Empty(t, g.Gets("g.service", ConflictedBy))
}

func TestAtomsOf_UnknownRelationIsZero(t *testing.T) {
	assert.Equal(t, Atom(0), AtomsOf(Relation(999)))
}
