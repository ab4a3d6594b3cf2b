package statemachine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/felixgeelhaar/promote/domain/promotion"
)

// Interpreter wraps a statekit interpreter positioned at one review level.
type Interpreter struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewInterpreter creates an interpreter for machine and restores it to the
// state holding a request at level.
func NewInterpreter(machine *statekit.MachineConfig[*Context], ctx *Context, level promotion.Level) (*Interpreter, error) {
	state, ok := stateForLevel(level)
	if !ok {
		return nil, fmt.Errorf("no review state for level %q", level)
	}

	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})

	snapshot := statekit.Snapshot[*Context]{
		MachineID:    machineID,
		CurrentState: state,
		Context:      ctx,
		CreatedAt:    time.Now(),
	}
	if err := interp.Restore(snapshot); err != nil {
		return nil, fmt.Errorf("failed to restore state: %w", err)
	}

	return &Interpreter{interp: interp, ctx: ctx}, nil
}

// Send delivers event and reports whether a transition ran.
func (i *Interpreter) Send(event statekit.EventType) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired, err = false, fmt.Errorf("event %s rejected: %v", event, r)
		}
	}()

	i.ctx.Fired = ""
	i.interp.Send(statekit.Event{Type: event})
	return i.ctx.Fired == event, nil
}

// State returns the current chart state.
func (i *Interpreter) State() statekit.StateID {
	return statekit.StateID(i.interp.State().Value)
}

// IsTerminal returns true once the request left review.
func (i *Interpreter) IsTerminal() bool {
	return i.interp.Done()
}

// Stop stops the interpreter.
func (i *Interpreter) Stop() {
	i.interp.Stop()
}
