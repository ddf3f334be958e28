package slot

import (
	"errors"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

func newTask(id uint32, name string) *hwtask.HwTask {
	t, err := hwtask.New(id, name, 0,
		[]hw.Bitstream{{Addr: uintptr(id) << 12, Size: 1}}, nil, time.Second)
	Expect(err).NotTo(HaveOccurred())
	return t
}

var _ = Describe("Slot", func() {
	var (
		mockCtrl *gomock.Controller
		drv      *MockSlotDriver
		dec      *MockDecoupler
		listener *MockCompletionListener
		s        *Slot
		task     *hwtask.HwTask
		req      *accel.Request
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		drv = NewMockSlotDriver(mockCtrl)
		dec = NewMockDecoupler(mockCtrl)
		listener = NewMockCompletionListener(mockCtrl)

		s = New("slot_p0_s0", 0, drv, dec, nil)
		s.SetListener(listener)

		task = newTask(1, "sobel")
		req = accel.NewRequest(nil)
		Expect(req.Bind(task, []uintptr{0x100})).To(Succeed())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	configure := func() {
		dec.EXPECT().Decouple()
		drv.EXPECT().BeforeRcfg()
		dec.EXPECT().Couple()
		drv.EXPECT().AfterRcfg()

		s.Reserve()
		s.PrepareForRcfg()
		s.SetHwTask(task)
		s.ReinitAfterRcfg()
	}

	It("should start blank and available", func() {
		Expect(s.State()).To(Equal(Blank))
		Expect(s.IsAvailable()).To(BeTrue())
		Expect(s.MatchHwTask(task)).To(BeFalse())
		Expect(s.Name()).To(Equal("slot_p0_s0"))
		Expect(s.Index()).To(Equal(0))
	})

	It("should go through a full reconfiguration and execution", func() {
		gomock.InOrder(
			dec.EXPECT().Decouple(),
			drv.EXPECT().BeforeRcfg(),
			dec.EXPECT().Couple(),
			drv.EXPECT().AfterRcfg(),
			drv.EXPECT().StartCompute([]uintptr{0x100}),
			drv.EXPECT().AfterCompute(),
		)

		s.Reserve()
		Expect(s.State()).To(Equal(Rsrv))
		Expect(s.IsAvailable()).To(BeFalse())

		s.PrepareForRcfg()
		Expect(s.State()).To(Equal(Rcfg))

		s.SetHwTask(task)
		s.ReinitAfterRcfg()
		Expect(s.State()).To(Equal(Ready))

		Expect(s.StartCompute(req)).To(Succeed())
		Expect(s.State()).To(Equal(Exec))
		Expect(s.Current()).To(BeIdenticalTo(req))

		s.ClearAfterCompute()
		Expect(s.State()).To(Equal(Idle))
		Expect(s.Current()).To(BeNil())
		Expect(s.HwTask()).To(BeIdenticalTo(task))
		Expect(s.MatchHwTask(task)).To(BeTrue())
		Expect(s.MatchHwTask(newTask(2, "fir"))).To(BeFalse())
	})

	It("should start compute straight from reserved", func() {
		configure()
		drv.EXPECT().StartCompute(gomock.Any()).Times(2)
		drv.EXPECT().AfterCompute()

		Expect(s.StartCompute(req)).To(Succeed())
		s.ClearAfterCompute()

		s.Reserve()
		Expect(s.StartCompute(req)).To(Succeed())
		Expect(s.State()).To(Equal(Exec))
	})

	It("should report a busy accelerator", func() {
		configure()
		drv.EXPECT().StartCompute(gomock.Any()).Return(hw.ErrAcceleratorBusy)

		err := s.StartCompute(req)

		Expect(errors.Is(err, hw.ErrAcceleratorBusy)).To(BeTrue())
		Expect(s.State()).To(Equal(Ready))
		Expect(s.Current()).To(BeNil())
	})

	It("should go blank after a timeout", func() {
		configure()
		drv.EXPECT().StartCompute(gomock.Any())
		Expect(s.StartCompute(req)).To(Succeed())

		dec.EXPECT().Decouple()
		s.DisableAfterTimeout()

		Expect(s.State()).To(Equal(Blank))
		Expect(s.MatchHwTask(task)).To(BeFalse())
		Expect(s.IsAvailable()).To(BeTrue())
	})

	It("should panic on invalid transitions", func() {
		Expect(func() { s.PrepareForRcfg() }).To(Panic())
		Expect(func() { s.ReinitAfterRcfg() }).To(Panic())
		Expect(func() { _ = s.StartCompute(req) }).To(Panic())
		Expect(func() { s.ClearAfterCompute() }).To(Panic())
		Expect(func() { s.DisableAfterTimeout() }).To(Panic())
		Expect(func() { s.SetHwTask(task) }).To(Panic())

		s.Reserve()
		Expect(func() { s.Reserve() }).To(Panic())
	})

	It("should check the loaded hw-task id", func() {
		configure()

		drv.EXPECT().ID().Return(uint32(1))
		Expect(s.CheckHwTaskConsistency()).To(BeTrue())

		drv.EXPECT().ID().Return(uint32(9))
		Expect(s.CheckHwTaskConsistency()).To(BeFalse())
	})

	It("should forward completions while executing", func() {
		configure()
		drv.EXPECT().StartCompute(gomock.Any())
		Expect(s.StartCompute(req)).To(Succeed())

		listener.EXPECT().SlotComplete(req).Return(nil)

		Expect(s.Handle(&hw.ComputeDone{})).To(Succeed())
	})

	It("should drop stale completions", func() {
		Expect(s.Handle(&hw.ComputeDone{})).To(Succeed())

		configure()
		drv.EXPECT().StartCompute(gomock.Any())
		Expect(s.StartCompute(req)).To(Succeed())

		Expect(s.Handle(&hw.ComputeDone{Cancelled: true})).To(Succeed())
	})

	It("should reject unknown events", func() {
		Expect(s.Handle("noise")).NotTo(Succeed())
	})

	It("should attach the driver and close both drivers", func() {
		drv.EXPECT().Attach(nil, s)
		s.Attach(nil)

		drv.EXPECT().Close().Return(nil)
		dec.EXPECT().Close().Return(errors.New("unmap failed"))

		Expect(s.Close()).To(MatchError("unmap failed"))
	})
})
