package timing

import (
	"reflect"

	"github.com/fredsys/fred/sim/hooking"
	log "github.com/sirupsen/logrus"
)

// EventLogger is a hook that traces every event before it is handled.
type EventLogger struct {
	logger log.FieldLogger
}

// NewEventLogger returns a new EventLogger which will write into the logger
// at trace level.
func NewEventLogger(logger log.FieldLogger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Func writes the event information into the logger.
func (h *EventLogger) Func(ctx hooking.HookCtx) {
	if ctx.Pos != HookPosBeforeEvent {
		return
	}

	evt, ok := ctx.Item.(*ScheduledEvent)
	if !ok {
		return
	}

	fields := log.Fields{
		"time":  evt.Time,
		"event": reflect.TypeOf(evt.Event),
	}

	if named, ok := evt.Handler.(Named); ok {
		fields["handler"] = named.Name()
	}

	h.logger.WithFields(fields).Trace("event")
}
