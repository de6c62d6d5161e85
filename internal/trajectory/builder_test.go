package trajectory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/claimhawk/trajector/api/schemas"
	"github.com/claimhawk/trajector/internal/action"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder("Click on Chrome icon in dock", Config{MemoryCapacity: 2}, nil, nil, zap.NewNop())
}

func TestAddStepAssignsSequentialIndices(t *testing.T) {
	b := newTestBuilder(t)

	require.NoError(t, b.AddStep("s0.png", "find the icon", "click(point='<point>1710 100</point>')", ""))
	require.NoError(t, b.AddStep("s1.png", "type the url", "type(content='google.com')", "address bar focused"))
	require.NoError(t, b.AddStep("s2.png", "", "press(key='enter')", ""))

	traj, err := b.Finalize()
	require.NoError(t, err)

	require.Len(t, traj.Steps, 3)
	for i, s := range traj.Steps {
		assert.Equal(t, i, s.Index)
	}
	assert.Equal(t, schemas.ActionClick, traj.Steps[0].Action.Kind)
	assert.Equal(t, "click(point='<point>1710 100</point>')", traj.Steps[0].ActionRaw)
	assert.Equal(t, "address bar focused", traj.Steps[1].Observation)
}

func TestAddStepRejectsMalformedAction(t *testing.T) {
	b := newTestBuilder(t)

	err := b.AddStep("s0.png", "thought", "click(point='<point>abc 100</point>')", "")
	var parseErr *action.ParseError
	require.ErrorAs(t, err, &parseErr)

	// A failed AddStep must leave no trace: not in the step sequence, not in
	// memory.
	assert.Equal(t, 0, b.Len())
	snap := b.MemorySnapshot()
	assert.Empty(t, snap.WorkingMemory)
	assert.Empty(t, snap.EpisodicMemory)
}

func TestSuccessComputation(t *testing.T) {
	t.Run("FalseWithoutFinished", func(t *testing.T) {
		b := newTestBuilder(t)
		require.NoError(t, b.AddStep("a.png", "", "click(point='<point>1 2</point>')", ""))
		require.NoError(t, b.AddStep("b.png", "", "type(content='x')", ""))
		require.NoError(t, b.AddStep("c.png", "", "press(key='enter')", ""))

		traj, err := b.Finalize()
		require.NoError(t, err)
		assert.False(t, traj.Success)
		assert.Equal(t, 3, traj.TotalSteps)
	})

	t.Run("TrueWithFinished", func(t *testing.T) {
		b := newTestBuilder(t)
		require.NoError(t, b.AddStep("a.png", "", "click(point='<point>1 2</point>')", ""))
		require.NoError(t, b.AddStep("b.png", "", "type(content='x')", ""))
		require.NoError(t, b.AddStep("c.png", "", "press(key='enter')", ""))
		require.NoError(t, b.AddStep("d.png", "", "finished(content='done')", ""))

		traj, err := b.Finalize()
		require.NoError(t, err)
		assert.True(t, traj.Success)
		assert.Equal(t, 4, traj.TotalSteps)
		assert.True(t, traj.Finalized)
	})
}

func TestLifecycleGuards(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.AddStep("a.png", "", "finished(content='done')", ""))

	_, err := b.Finalize()
	require.NoError(t, err)
	assert.True(t, b.Finalized())

	t.Run("AddStepAfterFinalize", func(t *testing.T) {
		err := b.AddStep("b.png", "", "press(key='enter')", "")
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("DoubleFinalize", func(t *testing.T) {
		_, err := b.Finalize()
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestEmptyTrajectory(t *testing.T) {
	t.Run("RejectedByDefault", func(t *testing.T) {
		b := newTestBuilder(t)
		_, err := b.Finalize()
		assert.ErrorIs(t, err, ErrEmptyTrajectory)

		// A failed Finalize leaves the builder Open.
		assert.False(t, b.Finalized())
		require.NoError(t, b.AddStep("a.png", "", "finished(content='done')", ""))
		_, err = b.Finalize()
		assert.NoError(t, err)
	})

	t.Run("PermittedWhenConfigured", func(t *testing.T) {
		b := NewBuilder("negative example", Config{AllowEmpty: true}, nil, nil, zap.NewNop())
		traj, err := b.Finalize()
		require.NoError(t, err)
		assert.False(t, traj.Success)
		assert.Equal(t, 0, traj.TotalSteps)
		assert.Empty(t, traj.Steps)
	})
}

func TestMemoryIntegration(t *testing.T) {
	b := newTestBuilder(t) // capacity 2

	actions := []string{
		"click(point='<point>0 0</point>')",
		"click(point='<point>1 1</point>')",
		"click(point='<point>2 2</point>')",
		"finished(content='done')",
	}
	for i, a := range actions {
		require.NoError(t, b.AddStep("x.png", "", a, ""))
		snap := b.MemorySnapshot()
		assert.LessOrEqual(t, len(snap.WorkingMemory), 2)
		assert.Equal(t, i+1, len(snap.WorkingMemory)+len(snap.EpisodicMemory))
	}

	snap := b.MemorySnapshot()
	require.Len(t, snap.EpisodicMemory, 2)
	assert.Equal(t, 0, snap.EpisodicMemory[0].SourceIndex)
	assert.Equal(t, 1, snap.EpisodicMemory[1].SourceIndex)
	assert.Equal(t, 2, snap.WorkingMemory[0].Index)
	assert.Equal(t, 3, snap.WorkingMemory[1].Index)
}

func TestNormalizedVariantBuilder(t *testing.T) {
	b := NewBuilder("search", Config{Variant: action.VariantNormalized}, nil, nil, zap.NewNop())

	require.NoError(t, b.AddStep("a.png", "click the field",
		`click(start_box="<|box_start|>(500, 40)<|box_end|>")`, ""))
	err := b.AddStep("b.png", "", `click(start_box="<|box_start|>(1200, 40)<|box_end|>")`, "")
	var parseErr *action.ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, b.Len())
}

func TestFinalizedTrajectoryIsDetached(t *testing.T) {
	b := newTestBuilder(t)
	require.NoError(t, b.AddStep("a.png", "", "finished(content='done')", ""))
	traj, err := b.Finalize()
	require.NoError(t, err)

	// Mutating the returned record must not alias builder internals.
	traj.Steps[0].Thought = "tampered"
	snap := b.MemorySnapshot()
	assert.Equal(t, "", snap.WorkingMemory[0].Thought)
}
