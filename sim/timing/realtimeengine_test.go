package timing

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
)

type syncHandler struct {
	lock    sync.Mutex
	handled []any
	closed  bool
	fail    error
}

func (h *syncHandler) Handle(event any) error {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.handled = append(h.handled, event)

	return h.fail
}

func (h *syncHandler) Close() error {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.closed = true

	return nil
}

func (h *syncHandler) events() []any {
	h.lock.Lock()
	defer h.lock.Unlock()

	return append([]any(nil), h.handled...)
}

func (h *syncHandler) isClosed() bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	return h.closed
}

var _ = Describe("RealTimeEngine", func() {
	var (
		engine *RealTimeEngine
		ctx    context.Context
		cancel context.CancelFunc
		done   chan error
	)

	BeforeEach(func() {
		engine = NewRealTimeEngine(log.StandardLogger())
		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan error, 1)
	})

	AfterEach(func() {
		cancel()
	})

	run := func() {
		go func() {
			done <- engine.Run(ctx)
		}()
	}

	It("should deliver events scheduled from other goroutines", func() {
		handler := &syncHandler{}
		run()

		go engine.Schedule(ScheduledEvent{
			Event:   "irq",
			Time:    engine.CurrentTime(),
			Handler: handler,
		})

		Eventually(handler.events).Should(Equal([]any{"irq"}))
	})

	It("should wait for future events", func() {
		handler := &syncHandler{}
		run()

		engine.Schedule(ScheduledEvent{
			Event:   "timeout",
			Time:    engine.CurrentTime() + 20*time.Millisecond,
			Handler: handler,
		})

		Consistently(handler.events, 10*time.Millisecond).Should(BeEmpty())
		Eventually(handler.events).Should(Equal([]any{"timeout"}))
	})

	It("should close owned handlers when the context is cancelled", func() {
		handler := &syncHandler{}
		engine.RegisterHandler(handler, PriorityNormal, Owned)
		run()

		cancel()

		Eventually(done).Should(Receive(BeNil()))
		Expect(handler.isClosed()).To(BeTrue())
	})

	It("should return fatal handler errors", func() {
		handler := &syncHandler{fail: errors.New("rcfg desync")}
		owned := &syncHandler{}
		engine.RegisterHandler(owned, PriorityNormal, Owned)
		run()

		engine.Schedule(ScheduledEvent{Event: "done", Time: 0, Handler: handler})

		var err error
		Eventually(done).Should(Receive(&err))
		Expect(err).To(MatchError(ContainSubstring("rcfg desync")))
		Expect(owned.isClosed()).To(BeTrue())
	})

	It("should detach handlers that ask for it", func() {
		handler := &syncHandler{fail: ErrDetach}
		engine.RegisterHandler(handler, PriorityNormal, Owned)
		run()

		engine.Schedule(ScheduledEvent{Event: 1, Time: 0, Handler: handler})

		Eventually(handler.isClosed).Should(BeTrue())

		engine.Schedule(ScheduledEvent{Event: 2, Time: 0, Handler: handler})
		Consistently(handler.events, 20*time.Millisecond).Should(Equal([]any{1}))
	})

	It("should stop while paused with events due", func() {
		handler := &syncHandler{}
		engine.Pause()
		engine.Schedule(ScheduledEvent{Event: 1, Time: 0, Handler: handler})
		run()

		Consistently(handler.events, 50*time.Millisecond).Should(BeEmpty())

		cancel()

		Eventually(done, 2*time.Second).Should(Receive(BeNil()))
		Expect(handler.events()).To(BeEmpty())
	})

	It("should dispatch held events after Continue", func() {
		handler := &syncHandler{}
		run()
		engine.Pause()

		engine.Schedule(ScheduledEvent{Event: "held", Time: 0, Handler: handler})
		Consistently(handler.events, 30*time.Millisecond).Should(BeEmpty())

		engine.Continue()

		Eventually(handler.events).Should(Equal([]any{"held"}))
	})
})
