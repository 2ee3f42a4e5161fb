package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycle_HappyPath(t *testing.T) {
	c := newCycle()
	for _, s := range []CycleState{StateStarted, StatePlanning, StatePlanValidated, StateExecuting, StateStopped} {
		require.NoError(t, c.transition(s), "moving to %s", s)
	}
	assert.Equal(t, []CycleState{
		StateIdle, StateStarted, StatePlanning, StatePlanValidated, StateExecuting, StateStopped,
	}, c.History())
}

func TestCycle_RejectsInvalidTransitions(t *testing.T) {
	c := newCycle()

	err := c.transition(StateExecuting)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StateIdle, c.State())

	require.NoError(t, c.transition(StateStarted))
	require.NoError(t, c.transition(StatePlanning))
	require.NoError(t, c.transition(StatePlanRejected))
	assert.ErrorIs(t, c.transition(StateExecuting), ErrInvalidTransition, "a rejected plan cannot be executed")
	assert.NoError(t, c.transition(StatePlanning), "the caller may plan again")
}

func TestCycle_AbortAndStop(t *testing.T) {
	t.Run("abort from any live state", func(t *testing.T) {
		c := newCycle()
		require.NoError(t, c.transition(StateStarted))
		require.NoError(t, c.transition(StateAborted))

		assert.ErrorIs(t, c.transition(StatePlanning), ErrAborted)
		assert.Error(t, c.transition(StateAborted), "a second abort is a no-op")
		assert.NoError(t, c.transition(StateStopped))
	})

	t.Run("stopped is terminal", func(t *testing.T) {
		c := newCycle()
		require.NoError(t, c.transition(StateStopped))
		assert.ErrorIs(t, c.transition(StateStarted), ErrInvalidTransition)
		assert.ErrorIs(t, c.transition(StateAborted), ErrInvalidTransition)
		assert.Equal(t, StateStopped, c.State())
	})
}
