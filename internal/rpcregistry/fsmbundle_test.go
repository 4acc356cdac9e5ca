package rpcregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vention.dev/cellrt/internal/fsm"
)

func buildTestCellDefinition(t *testing.T) *fsm.Definition {
	t.Helper()
	roots := []fsm.StateSpec{
		{Name: "running", Initial: "picking", Children: []fsm.StateSpec{
			{Name: "picking"},
			{Name: "placing"},
		}},
	}
	def, err := fsm.NewBuilder(roots, "running").
		AddTransition(fsm.TransitionSpec{Trigger: "place", Source: "picking", Destination: "placing"}).
		AddTransition(fsm.TransitionSpec{Trigger: "pick", Source: "placing", Destination: "picking"}).
		Build()
	require.NoError(t, err)
	return def
}

func findAction(bundle RpcBundle, name string) (ActionEntry, bool) {
	for _, a := range bundle.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return ActionEntry{}, false
}

func TestFSMBundleExposesOneTriggerActionPerDeclaredTrigger(t *testing.T) {
	def := buildTestCellDefinition(t)
	inst := fsm.NewInstance("cell-bundle-1", def, nil, nil)
	defer inst.Stop()

	bundle := FSMBundle(inst, 100)

	_, ok := findAction(bundle, "Trigger_Place")
	assert.True(t, ok)
	_, ok = findAction(bundle, "Trigger_Pick")
	assert.True(t, ok)
	_, ok = findAction(bundle, "Trigger_Start")
	assert.True(t, ok)
	_, ok = findAction(bundle, "Trigger_ToFault")
	assert.True(t, ok)
	_, ok = findAction(bundle, "Trigger_Reset")
	assert.True(t, ok)
}

func TestTriggerActionAdvancesInstanceAndReportsTransition(t *testing.T) {
	def := buildTestCellDefinition(t)
	inst := fsm.NewInstance("cell-bundle-2", def, nil, nil)
	defer inst.Stop()
	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))

	bundle := FSMBundle(inst, 100)
	place, ok := findAction(bundle, "Trigger_Place")
	require.True(t, ok)

	out, err := place.Func(ctx, nil)
	require.NoError(t, err)
	result := out.(TriggerResult)
	assert.True(t, result.Result)
	assert.Equal(t, "picking", result.PreviousState)
	assert.Equal(t, "placing", result.NewState)
	assert.Equal(t, fsm.State("placing"), inst.CurrentState())
}

func TestTriggerActionNotAllowedReturnsError(t *testing.T) {
	def := buildTestCellDefinition(t)
	inst := fsm.NewInstance("cell-bundle-3", def, nil, nil)
	defer inst.Stop()
	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))

	bundle := FSMBundle(inst, 100)
	pick, ok := findAction(bundle, "Trigger_Pick")
	require.True(t, ok)

	_, err := pick.Func(ctx, nil)
	require.Error(t, err)
	var notAllowed *fsm.ErrNotAllowed
	assert.ErrorAs(t, err, &notAllowed)
}

func TestGetStateActionReportsCurrentAndLastRecoverable(t *testing.T) {
	def := buildTestCellDefinition(t)
	inst := fsm.NewInstance("cell-bundle-4", def, nil, nil)
	defer inst.Stop()
	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))

	bundle := FSMBundle(inst, 100)
	getState, ok := findAction(bundle, "GetState")
	require.True(t, ok)

	out, err := getState.Func(ctx, nil)
	require.NoError(t, err)
	result := out.(GetStateResult)
	assert.Equal(t, "picking", result.State)
	require.NotNil(t, result.LastState)
	assert.Equal(t, "picking", *result.LastState)
}

func TestGetHistoryActionReportsBufferSizeAndEntries(t *testing.T) {
	def := buildTestCellDefinition(t)
	inst := fsm.NewInstance("cell-bundle-5", def, nil, nil)
	defer inst.Stop()
	ctx := context.Background()
	require.NoError(t, inst.Start(ctx))
	require.NoError(t, inst.Trigger(ctx, "place"))

	bundle := FSMBundle(inst, 42)
	getHistory, ok := findAction(bundle, "GetHistory")
	require.True(t, ok)

	out, err := getHistory.Func(ctx, nil)
	require.NoError(t, err)
	result := out.(GetHistoryResult)
	assert.Equal(t, 42, result.BufferSize)
	assert.GreaterOrEqual(t, len(result.History), 2)
	assert.NotNil(t, result.History[0].DurationMs)
}

func TestTriggerPascalCaseHandlesSnakeAndDoubleUnderscore(t *testing.T) {
	assert.Equal(t, "ToFault", triggerPascalCase("to_fault"))
	assert.Equal(t, "RecoverPlacing", triggerPascalCase("recover__placing"))
	assert.Equal(t, "Start", triggerPascalCase("start"))
}
