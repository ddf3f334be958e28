package hooking

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("HookableBase", func() {
	var (
		mockCtrl *gomock.Controller
		base     *HookableBase
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		base = NewHookableBase()
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should invoke hooks in registration order", func() {
		h1 := NewMockHook(mockCtrl)
		h2 := NewMockHook(mockCtrl)
		pos := &HookPos{Name: "Test"}
		ctx := HookCtx{Pos: pos, Item: 42}

		base.AcceptHook(h1)
		base.AcceptHook(h2)

		gomock.InOrder(
			h1.EXPECT().Func(ctx),
			h2.EXPECT().Func(ctx),
		)

		base.InvokeHook(ctx)

		Expect(base.NumHooks()).To(Equal(2))
		Expect(base.Hooks()).To(ConsistOf(h1, h2))
	})

	It("should panic on a duplicated hook", func() {
		h := NewMockHook(mockCtrl)
		base.AcceptHook(h)

		Expect(func() { base.AcceptHook(h) }).To(Panic())
	})
})

var _ = Describe("OnPos", func() {
	It("should only forward the selected positions", func() {
		wanted := &HookPos{Name: "Wanted"}
		other := &HookPos{Name: "Other"}
		base := NewHookableBase()

		var seen []any
		base.AcceptHook(OnPos(func(ctx HookCtx) {
			seen = append(seen, ctx.Item)
		}, wanted))

		base.InvokeHook(HookCtx{Pos: other, Item: 1})
		base.InvokeHook(HookCtx{Pos: wanted, Item: 2})

		Expect(seen).To(Equal([]any{2}))
		Expect(wanted.String()).To(Equal("Wanted"))
	})

	It("should give each call its own hook", func() {
		pos := &HookPos{Name: "P"}
		fn := func(HookCtx) {}
		base := NewHookableBase()

		base.AcceptHook(OnPos(fn, pos))
		base.AcceptHook(OnPos(fn, pos))

		Expect(base.NumHooks()).To(Equal(2))
	})
})
