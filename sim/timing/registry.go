package timing

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fredsys/fred/sim/hooking"
	"github.com/fredsys/fred/sim/id"
	log "github.com/sirupsen/logrus"
)

type registration struct {
	id        uint64
	handler   Handler
	priority  Priority
	ownership Ownership
	detached  bool
}

// handlerRegistry tracks the handlers an engine knows about. Unregistered
// handlers can still receive events; they are treated as high priority and
// not owned.
type handlerRegistry struct {
	lock    sync.Mutex
	ids     *id.SequentialGenerator
	entries map[Handler]*registration
	logger  log.FieldLogger
}

func newHandlerRegistry(logger log.FieldLogger) *handlerRegistry {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &handlerRegistry{
		ids:     id.NewSequentialGenerator(),
		entries: make(map[Handler]*registration),
		logger:  logger,
	}
}

func (r *handlerRegistry) register(
	h Handler,
	priority Priority,
	ownership Ownership,
) uint64 {
	r.lock.Lock()
	defer r.lock.Unlock()

	if reg, found := r.entries[h]; found && !reg.detached {
		panic(fmt.Sprintf("handler %d registered twice", reg.id))
	}

	reg := &registration{
		id:        r.ids.Next(),
		handler:   h,
		priority:  priority,
		ownership: ownership,
	}
	r.entries[h] = reg

	r.logger.Debugf("registered %s", describe(reg))

	return reg.id
}

func (r *handlerRegistry) isSecondary(h Handler) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, found := r.entries[h]

	return found && reg.priority == PriorityNormal
}

func (r *handlerRegistry) isDetached(h Handler) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	reg, found := r.entries[h]

	return found && reg.detached
}

// deliver hands the event to its handler and applies the return contract.
// It reports whether the handler got detached.
func (r *handlerRegistry) deliver(evt *ScheduledEvent) (bool, error) {
	if evt.Handler == nil || r.isDetached(evt.Handler) {
		return false, nil
	}

	err := evt.Handler.Handle(evt.Event)
	if err == nil {
		return false, nil
	}

	if errors.Is(err, ErrDetach) {
		r.detach(evt.Handler, err)
		return true, nil
	}

	return false, fmt.Errorf("%s: %w", r.name(evt.Handler), err)
}

func (r *handlerRegistry) name(h Handler) string {
	r.lock.Lock()
	reg, found := r.entries[h]
	r.lock.Unlock()

	if !found {
		return describe(&registration{handler: h})
	}

	return describe(reg)
}

func (r *handlerRegistry) detach(h Handler, cause error) {
	r.lock.Lock()
	reg, found := r.entries[h]
	if !found {
		reg = &registration{handler: h, detached: true}
		r.entries[h] = reg
		r.lock.Unlock()

		r.logger.Debugf("detached %s: %v", describe(reg), cause)

		return
	}

	alreadyDetached := reg.detached
	reg.detached = true
	r.lock.Unlock()

	if alreadyDetached {
		return
	}

	r.logger.Debugf("detached %s: %v", describe(reg), cause)

	if reg.ownership == Owned {
		r.close(reg)
	}
}

// shutdown closes every owned handler that is still attached, in
// registration order.
func (r *handlerRegistry) shutdown() {
	r.lock.Lock()
	toClose := make([]*registration, 0, len(r.entries))
	for _, reg := range r.entries {
		if reg.detached {
			continue
		}

		reg.detached = true
		if reg.ownership == Owned {
			toClose = append(toClose, reg)
		}
	}
	r.lock.Unlock()

	sort.Slice(toClose, func(i, j int) bool {
		return toClose[i].id < toClose[j].id
	})

	for _, reg := range toClose {
		r.close(reg)
	}
}

func (r *handlerRegistry) close(reg *registration) {
	closer, ok := reg.handler.(io.Closer)
	if !ok {
		return
	}

	if err := closer.Close(); err != nil {
		r.logger.Warnf("closing %s: %v", describe(reg), err)
	}
}

func describe(reg *registration) string {
	name := fmt.Sprintf("%T", reg.handler)
	if named, ok := reg.handler.(Named); ok {
		name = named.Name()
	}

	if reg.id == 0 {
		return name
	}

	return fmt.Sprintf("%s (handler %d)", name, reg.id)
}

// dispatch delivers one event, invoking the engine hooks around it.
func dispatch(
	domain hooking.Hookable,
	hooks *hooking.HookableBase,
	handlers *handlerRegistry,
	evt *ScheduledEvent,
) error {
	hookCtx := hooking.HookCtx{
		Domain: domain,
		Pos:    HookPosBeforeEvent,
		Item:   evt,
	}
	hooks.InvokeHook(hookCtx)

	detached, err := handlers.deliver(evt)

	hookCtx.Pos = HookPosAfterEvent
	hooks.InvokeHook(hookCtx)

	if detached {
		hooks.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    HookPosDetach,
			Item:   evt.Handler,
		})
	}

	if err != nil {
		hooks.InvokeHook(hooking.HookCtx{
			Domain: domain,
			Pos:    HookPosFatal,
			Item:   err,
		})
	}

	return err
}
