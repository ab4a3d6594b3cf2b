package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardEscalate allows ESCALATE only when the policy asked for it.
// Guards receive the *Context directly.
func guardEscalate(ctx *Context, _ statekit.Event) bool {
	return ctx != nil && ctx.Escalate
}
