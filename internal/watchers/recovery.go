package watchers

import (
	"fmt"
	"runtime/debug"

	"github.com/lewisedginton/chatwatch/pkg/logger"
)

// recoverEvent stops a panic raised while handling an event from reaching the source.
// It must be deferred directly.
func (e *Engine) recoverEvent(event string) {
	r := recover()
	if r == nil {
		return
	}
	e.log.Error("Event handler panic recovered",
		logger.StringField("event", event),
		logger.StringField("panic_error", fmt.Sprintf("%v", r)),
		logger.StringField("stack_trace", string(debug.Stack())))
	if e.cfg.Messages.DebugToFile {
		e.debug.Push(fmt.Sprintf("ERROR: %v", r))
	}
}
