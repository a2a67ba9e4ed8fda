// ============================================================================
// sysmasterd Dependency Graph
// ============================================================================
//
// Package: pkg/depgraph
// File: relation.go
// Purpose: Typed directed dependency relations between units (spec §3) and
//          the atom bitmask each relation implies for the job engine.
//
// Grounded on the original implementation's UnitRelations/UnitRelationAtom
// enums (core/libcore/src/unit/deps.rs): the atom bit positions below carry
// the same meaning, renumbered only because Go has no native bitflags! macro
// - each constant is 1<<iota, so its bit position is fixed by its place in
// the declaration list.
//
// ============================================================================

package depgraph

// Relation is a directed, typed dependency edge kind.
type Relation int

const (
	Requires Relation = iota
	RequiresBy
	Wants
	WantsBy
	BindsTo
	BoundBy
	PartOf
	ConsistsOf
	Requisite
	RequisiteOf
	Conflicts
	ConflictedBy
	Before
	After
	OnSuccess
	OnSuccessOf
	OnFailure
	OnFailureOf
	Triggers
	TriggeredBy
	PropagatesReloadTo
	ReloadPropagatedFrom
	PropagatesStopTo
	StopPropagatedFrom
	References
	ReferencedBy
	JoinsNamespaceOf
	InSlice
	SliceOf
)

var relationNames = map[Relation]string{
	Requires: "Requires", RequiresBy: "RequiresBy",
	Wants: "Wants", WantsBy: "WantsBy",
	BindsTo: "BindsTo", BoundBy: "BoundBy",
	PartOf: "PartOf", ConsistsOf: "ConsistsOf",
	Requisite: "Requisite", RequisiteOf: "RequisiteOf",
	Conflicts: "Conflicts", ConflictedBy: "ConflictedBy",
	Before: "Before", After: "After",
	OnSuccess: "OnSuccess", OnSuccessOf: "OnSuccessOf",
	OnFailure: "OnFailure", OnFailureOf: "OnFailureOf",
	Triggers: "Triggers", TriggeredBy: "TriggeredBy",
	PropagatesReloadTo: "PropagatesReloadTo", ReloadPropagatedFrom: "ReloadPropagatedFrom",
	PropagatesStopTo: "PropagatesStopTo", StopPropagatedFrom: "StopPropagatedFrom",
	References: "References", ReferencedBy: "ReferencedBy",
	JoinsNamespaceOf: "JoinsNamespaceOf",
	InSlice:          "InSlice", SliceOf: "SliceOf",
}

func (r Relation) String() string {
	if s, ok := relationNames[r]; ok {
		return s
	}
	return "Unknown"
}

// symmetricPairs maps every relation with an inverse to that inverse. A
// relation not present here (only JoinsNamespaceOf in this set) is an
// inverse-less edge.
var symmetricPairs = map[Relation]Relation{
	Requires: RequiresBy, RequiresBy: Requires,
	Wants: WantsBy, WantsBy: Wants,
	BindsTo: BoundBy, BoundBy: BindsTo,
	PartOf: ConsistsOf, ConsistsOf: PartOf,
	Requisite: RequisiteOf, RequisiteOf: Requisite,
	Conflicts: ConflictedBy, ConflictedBy: Conflicts,
	Before: After, After: Before,
	OnSuccess: OnSuccessOf, OnSuccessOf: OnSuccess,
	OnFailure: OnFailureOf, OnFailureOf: OnFailure,
	Triggers: TriggeredBy, TriggeredBy: Triggers,
	PropagatesReloadTo: ReloadPropagatedFrom, ReloadPropagatedFrom: PropagatesReloadTo,
	PropagatesStopTo: StopPropagatedFrom, StopPropagatedFrom: PropagatesStopTo,
	References: ReferencedBy, ReferencedBy: References,
	InSlice: SliceOf, SliceOf: InSlice,
	// JoinsNamespaceOf has no declared inverse in spec §3's list.
}

// Symmetric returns the inverse relation, and false if r has none (it is
// inserted one-directional, e.g. JoinsNamespaceOf).
func (r Relation) Symmetric() (Relation, bool) {
	inv, ok := symmetricPairs[r]
	return inv, ok
}

// Mask records why an edge exists, so defaults can be recomputed on reload.
type Mask int

const (
	MaskFile Mask = 1 << iota
	MaskImplicit
	MaskDefault
)

// Atom is a bitmask derived from edge types, consumed by the job engine.
type Atom uint64

const (
	AtomPullInStart Atom = 1 << iota
	AtomPullInStartIgnored
	AtomPullInVerify
	AtomPullInStop
	AtomPullInStopIgnored
	AtomAddStopWhenUnneededQueue
	AtomPinsStopWhenUnneeded
	AtomCannotBeActiveWithout
	AtomAddCannotBeActiveWithoutQueue
	AtomStartSteadily
	AtomAddStartWhenUpheldQueue
	AtomRetroActiveStartReplace
	AtomRetroActiveStartFail
	AtomRetroActiveStopOnStart
	AtomRetroActiveStopOnStop
	AtomPropagateStartFailure
	AtomPropagateStopFailure
	AtomPropagateInactiveStartAsFailure
	AtomPropagateStop
	AtomPropagateRestart
	AtomAddDefaultTargetDependencyQueue
	AtomDefaultTargetDependencies
	AtomBefore
	AtomAfter
	AtomOnSuccess
	AtomOnFailure
	AtomTriggers
	AtomTriggeredBy
	AtomPropagatesReloadTo
	AtomJoinsNamespaceOf
	AtomReferences
	AtomReferencedBy
	AtomInSlice
	AtomSliceOf
)

// relationAtoms is the table the job engine's transaction builder consults:
// which atoms does an outgoing edge of relation r contribute to its source
// unit's atom set.
var relationAtoms = map[Relation]Atom{
	Requires:   AtomPullInStart | AtomRetroActiveStartFail | AtomPropagateStartFailure | AtomPropagateStopFailure,
	Requisite:  AtomPullInVerify,
	Wants:      AtomPullInStartIgnored,
	BindsTo:    AtomPullInStart | AtomRetroActiveStartFail | AtomPropagateStartFailure | AtomPropagateStopFailure | AtomPropagateStop,
	PartOf:     AtomPropagateRestart | AtomPropagateStop,
	Conflicts:  AtomRetroActiveStartReplace | AtomRetroActiveStopOnStart,
	Before:     AtomBefore,
	After:      AtomAfter,
	OnSuccess:  AtomOnSuccess,
	OnFailure:  AtomOnFailure,
	Triggers:   AtomTriggers,
	TriggeredBy: AtomTriggeredBy,
	PropagatesReloadTo: AtomPropagatesReloadTo,
	PropagatesStopTo:   AtomPropagateStop,
	JoinsNamespaceOf:   AtomJoinsNamespaceOf,
	References:         AtomReferences,
	ReferencedBy:       AtomReferencedBy,
	InSlice:            AtomInSlice,
	SliceOf:            AtomSliceOf,
}

// AtomsOf returns the atom bits a relation of kind r contributes.
func AtomsOf(r Relation) Atom {
	return relationAtoms[r]
}

// Has reports whether the atom set a contains every bit in want.
func (a Atom) Has(want Atom) bool {
	return a&want == want
}

// Any reports whether a shares any bit with want.
func (a Atom) Any(want Atom) bool {
	return a&want != 0
}
