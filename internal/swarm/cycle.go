package swarm

import (
	"fmt"
	"sync"
)

// CycleState is the coordinator's position in a plan/execute cycle.
type CycleState string

const (
	StateIdle          CycleState = "IDLE"
	StateStarted       CycleState = "STARTED"
	StatePlanning      CycleState = "PLANNING"
	StatePlanValidated CycleState = "PLAN_VALIDATED"
	StatePlanRejected  CycleState = "PLAN_REJECTED"
	StateExecuting     CycleState = "EXECUTING"
	StateStopped       CycleState = "STOPPED"
	StateAborted       CycleState = "ABORTED"
)

// transitions lists the forward moves. ABORTED is reachable from every state
// but STOPPED, and STOPPED from every state.
var transitions = map[CycleState][]CycleState{
	StateIdle:          {StateStarted},
	StateStarted:       {StatePlanning},
	StatePlanning:      {StatePlanValidated, StatePlanRejected},
	StatePlanValidated: {StateExecuting, StatePlanning},
	StatePlanRejected:  {StatePlanning},
}

type cycle struct {
	mu      sync.Mutex
	state   CycleState
	history []CycleState
}

func newCycle() *cycle {
	return &cycle{state: StateIdle, history: []CycleState{StateIdle}}
}

func (c *cycle) State() CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *cycle) History() []CycleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]CycleState(nil), c.history...)
}

// transition moves to next or fails with ErrInvalidTransition. An aborted
// cycle reports ErrAborted instead.
func (c *cycle) transition(next CycleState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !allowed(c.state, next) {
		if c.state == StateAborted {
			return ErrAborted
		}
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, next)
	}
	c.state = next
	c.history = append(c.history, next)
	return nil
}

func allowed(from, to CycleState) bool {
	switch {
	case from == StateStopped:
		return false
	case to == StateStopped:
		return true
	case to == StateAborted:
		return from != StateAborted
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
