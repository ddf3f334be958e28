package accel

import (
	"errors"
	"time"

	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

var _ = Describe("Request", func() {
	var (
		mockCtrl *gomock.Controller
		notifier *MockNotifier
		task     *hwtask.HwTask
		req      *Request
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		notifier = NewMockNotifier(mockCtrl)

		var err error
		task, err = hwtask.New(1, "sobel", 0,
			[]hw.Bitstream{{Addr: 0x1000, Size: 1}}, nil, time.Second)
		Expect(err).NotTo(HaveOccurred())

		req = NewRequest(notifier)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should start unbound", func() {
		Expect(req.HwTask()).To(BeNil())
		Expect(req.Slot()).To(Equal(NoSlot))
		Expect(req.ID()).NotTo(BeEmpty())
		Expect(NewRequest(nil).ID()).NotTo(Equal(req.ID()))
	})

	It("should bind and unbind", func() {
		Expect(req.Bind(task, []uintptr{1, 2})).To(Succeed())
		req.SetSlot(3)
		req.SetSkipRcfg(true)

		Expect(req.HwTask()).To(BeIdenticalTo(task))
		Expect(req.Args()).To(Equal([]uintptr{1, 2}))
		Expect(req.String()).To(ContainSubstring("sobel"))

		req.Unbind()

		Expect(req.HwTask()).To(BeNil())
		Expect(req.Args()).To(BeEmpty())
		Expect(req.Slot()).To(Equal(NoSlot))
		Expect(req.SkipRcfg()).To(BeFalse())
	})

	It("should reject too many arguments", func() {
		err := req.Bind(task, make([]uintptr, hw.MaxArgs+1))

		Expect(err).To(HaveOccurred())
	})

	It("should order by timestamp", func() {
		other := NewRequest(nil)
		req.Stamp(time.Millisecond)
		other.Stamp(2 * time.Millisecond)

		Expect(req.Before(other)).To(BeTrue())
		Expect(other.Before(req)).To(BeFalse())

		other.Stamp(time.Millisecond)
		Expect(req.Before(other)).To(BeFalse())
	})

	It("should forward notifications", func() {
		notifier.EXPECT().Notify(req, NotifyOverrun).Return(errors.New("broken pipe"))

		Expect(req.Notify(NotifyOverrun)).To(MatchError("broken pipe"))
	})

	It("should ignore notifications without a notifier", func() {
		Expect(NewRequest(nil).Notify(NotifyDone)).To(Succeed())
	})

	It("should name notify messages", func() {
		Expect(NotifyDone.String()).To(Equal("done"))
		Expect(NotifyOverrun.String()).To(Equal("overrun"))
	})
})
