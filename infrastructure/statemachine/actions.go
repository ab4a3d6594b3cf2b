package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// recordFired notes which event's transition ran. Actions receive a
// pointer to the context, so **Context here.
func recordFired(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Fired = event.Type
}
