package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleGraph(t *testing.T) *Graph {
	t.Helper()
	roots := []StateSpec{
		{Name: "running", Initial: "picking", Children: []StateSpec{
			{Name: "picking"},
			{Name: "placing"},
		}},
		{Name: "homing"},
	}
	transitions := []TransitionSpec{
		{Trigger: "place", Source: "picking", Destination: "placing"},
		{Trigger: "pick", Source: "placing", Destination: "picking"},
		{Trigger: "home", Source: "*", Destination: "homing"},
	}
	g, err := buildGraph(roots, "running", transitions)
	require.NoError(t, err)
	return g
}

func TestBuildGraphAddsDistinguishedStates(t *testing.T) {
	g := simpleGraph(t)
	assert.Contains(t, g.nodes, StateReady)
	assert.Contains(t, g.nodes, StateFault)
}

func TestResolveUserTransition(t *testing.T) {
	g := simpleGraph(t)
	rt, err := g.resolve("place", "picking")
	require.NoError(t, err)
	assert.Equal(t, State("placing"), rt.destination)
}

func TestResolveWildcardSourceFromLeaf(t *testing.T) {
	g := simpleGraph(t)
	// "home" was declared with wildcard source, so it must resolve directly
	// from the leaf "picking" as well as from "placing".
	rt, err := g.resolve("home", "picking")
	require.NoError(t, err)
	assert.Equal(t, State("homing"), rt.destination)
}

func TestResolveUnknownTriggerIsNotAllowed(t *testing.T) {
	g := simpleGraph(t)
	_, err := g.resolve("nonexistent", "picking")
	require.Error(t, err)
	var notAllowed *ErrNotAllowed
	require.ErrorAs(t, err, &notAllowed)
}

func TestStartTriggerGoesFromReadyToStartState(t *testing.T) {
	g := simpleGraph(t)
	rt, err := g.resolve(TriggerStart, StateReady)
	require.NoError(t, err)
	assert.Equal(t, State("running"), rt.destination)
}

func TestToFaultAvailableFromEveryNonFaultState(t *testing.T) {
	g := simpleGraph(t)
	for _, s := range []State{StateReady, "picking", "placing", "homing"} {
		rt, err := g.resolve(TriggerToFault, s)
		require.NoError(t, err, "state %s", s)
		assert.Equal(t, StateFault, rt.destination)
	}
}

func TestResetOnlyFromFault(t *testing.T) {
	g := simpleGraph(t)
	rt, err := g.resolve(TriggerReset, StateFault)
	require.NoError(t, err)
	assert.Equal(t, StateReady, rt.destination)

	_, err = g.resolve(TriggerReset, "picking")
	require.Error(t, err)
}

func TestRecoverTriggersWiredForEveryNonDistinguishedLeaf(t *testing.T) {
	g := simpleGraph(t)
	rt, err := g.resolve(RecoverTrigger("picking"), StateReady)
	require.NoError(t, err)
	assert.Equal(t, State("picking"), rt.destination)

	rt, err = g.resolve(RecoverTrigger("homing"), StateReady)
	require.NoError(t, err)
	assert.Equal(t, State("homing"), rt.destination)
}

func TestUserTransitionTakesPrecedenceOverDistinguishedWiring(t *testing.T) {
	roots := []StateSpec{{Name: "running"}}
	custom := TransitionSpec{Trigger: TriggerToFault, Source: "running", Destination: "running"}
	g, err := buildGraph(roots, "running", []TransitionSpec{custom})
	require.NoError(t, err)
	rt, err := g.resolve(TriggerToFault, "running")
	require.NoError(t, err)
	assert.Equal(t, State("running"), rt.destination, "user-declared to_fault override must win")
}

func TestExitEnterPathAcrossSiblings(t *testing.T) {
	g := simpleGraph(t)
	exitPath, enterPath, newLeaf := g.exitEnterPath("picking", "placing")
	assert.Equal(t, []State{"picking"}, exitPath)
	assert.Equal(t, []State{"placing"}, enterPath)
	assert.Equal(t, State("placing"), newLeaf)
}

func TestExitEnterPathIntoCompositeDescendsToInitial(t *testing.T) {
	g := simpleGraph(t)
	exitPath, enterPath, newLeaf := g.exitEnterPath(StateReady, "running")
	assert.Equal(t, []State{StateReady}, exitPath)
	assert.Equal(t, []State{"running", "picking"}, enterPath, "enter path must be outermost first")
	assert.Equal(t, State("picking"), newLeaf)
}

func TestExitEnterPathToFaultExitsWholeBranch(t *testing.T) {
	g := simpleGraph(t)
	exitPath, _, newLeaf := g.exitEnterPath("picking", StateFault)
	assert.Equal(t, []State{"picking", "running"}, exitPath, "must exit innermost first, then the composite ancestor")
	assert.Equal(t, StateFault, newLeaf)
}

func TestLeaves(t *testing.T) {
	g := simpleGraph(t)
	leaves := g.leaves()
	assert.Contains(t, leaves, State("picking"))
	assert.Contains(t, leaves, State("placing"))
	assert.Contains(t, leaves, State("homing"))
	assert.Contains(t, leaves, StateReady)
	assert.Contains(t, leaves, StateFault)
	assert.NotContains(t, leaves, State("running"))
}

func TestDuplicateStateNameRejected(t *testing.T) {
	roots := []StateSpec{{Name: "a"}, {Name: "a"}}
	_, err := buildGraph(roots, "a", nil)
	require.Error(t, err)
}

func TestReservedStateNameRejected(t *testing.T) {
	roots := []StateSpec{{Name: string(StateReady)}}
	_, err := buildGraph(roots, string(StateReady), nil)
	require.Error(t, err)
}

func TestCompositeWithoutInitialRejected(t *testing.T) {
	roots := []StateSpec{{Name: "running", Children: []StateSpec{{Name: "picking"}}}}
	_, err := buildGraph(roots, "running", nil)
	require.Error(t, err)
}
