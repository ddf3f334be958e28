// Package hooking lets observers attach to the engine and the scheduler
// without those components knowing about them.
package hooking

// HookPos names a point in a component where hooks are invoked. Positions
// are compared by pointer.
type HookPos struct {
	Name string
}

func (p *HookPos) String() string {
	return p.Name
}

// HookCtx describes one hook invocation. Item is the object the position is
// about (an event, a request, an error) and Detail carries position
// specific data.
type HookCtx struct {
	Domain Hookable
	Pos    *HookPos
	Item   any
	Detail any
}

// Hookable is a component that observers can attach to.
type Hookable interface {
	AcceptHook(hook Hook)
	NumHooks() int
	Hooks() []Hook
}

// Hook is invoked synchronously, on the thread of the hooked component.
type Hook interface {
	Func(ctx HookCtx)
}

type posHook struct {
	fn  func(ctx HookCtx)
	pos []*HookPos
}

// OnPos returns a hook that calls fn only at the given positions. Each call
// returns a distinct hook.
func OnPos(fn func(ctx HookCtx), positions ...*HookPos) Hook {
	return &posHook{fn: fn, pos: positions}
}

func (h *posHook) Func(ctx HookCtx) {
	for _, p := range h.pos {
		if p == ctx.Pos {
			h.fn(ctx)
			return
		}
	}
}

// HookableBase keeps the hooks of a component, in registration order.
type HookableBase struct {
	hookList []Hook
}

// NewHookableBase creates a HookableBase with no hooks.
func NewHookableBase() *HookableBase {
	return &HookableBase{}
}

// NumHooks returns the number of hooks registered.
func (h *HookableBase) NumHooks() int {
	return len(h.hookList)
}

// Hooks returns the registered hooks.
func (h *HookableBase) Hooks() []Hook {
	return h.hookList
}

// AcceptHook registers a hook. Registering the same hook twice panics.
func (h *HookableBase) AcceptHook(hook Hook) {
	for _, existing := range h.hookList {
		if existing == hook {
			panic("hook already registered")
		}
	}

	h.hookList = append(h.hookList, hook)
}

// InvokeHook calls every hook with ctx.
func (h *HookableBase) InvokeHook(ctx HookCtx) {
	for _, hook := range h.hookList {
		hook.Func(ctx)
	}
}
