package client

import (
	"bytes"
	"errors"
	"io"
	"time"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hw/nulldrv"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	log "github.com/sirupsen/logrus"
	"go.uber.org/mock/gomock"
)

type fakeConn struct {
	bytes.Buffer
	closed  bool
	failing bool
}

func (c *fakeConn) Write(p []byte) (int, error) {
	if c.failing {
		return 0, errors.New("broken pipe")
	}

	return c.Buffer.Write(p)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

type taskTable map[uint32]*hwtask.HwTask

func (t taskTable) HwTask(id uint32) (*hwtask.HwTask, bool) {
	task, found := t[id]
	return task, found
}

var _ = Describe("Client", func() {
	var (
		mockCtrl *gomock.Controller
		pusher   *MockPusher
		alloc    *nulldrv.Allocator
		conn     *fakeConn
		aes      *hwtask.HwTask
		c        *Client
	)

	send := func(head Head, arg uint32) error {
		return c.Handle(&messageEvent{msg: Message{head, arg}})
	}

	reply := func() Message {
		msg, err := ReadMessage(conn)
		Expect(err).NotTo(HaveOccurred())
		return msg
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		pusher = NewMockPusher(mockCtrl)
		alloc = nulldrv.NewAllocator(0)
		conn = &fakeConn{}

		var err error
		aes, err = hwtask.New(1, "aes", 0, []hw.Bitstream{{}},
			[]uint64{4096, 100}, time.Second)
		Expect(err).NotTo(HaveOccurred())

		c = newClient(conn, pusher, taskTable{1: aes}, alloc, log.StandardLogger())
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should acknowledge INIT once", func() {
		Expect(send(MsgInit, 0)).To(Succeed())
		Expect(reply()).To(Equal(Message{MsgAck, 0}))
		Expect(c.State()).To(Equal(Ready))

		Expect(send(MsgInit, 0)).To(Succeed())
		Expect(reply()).To(Equal(Message{MsgError, 0}))
	})

	It("should reject requests before INIT", func() {
		Expect(send(MsgBind, 1)).To(Succeed())
		Expect(reply()).To(Equal(Message{MsgError, 0}))

		Expect(send(MsgRun, 1)).To(Succeed())
		Expect(reply()).To(Equal(Message{MsgError, 0}))
	})

	It("should reject unknown messages", func() {
		Expect(send(MsgInit, 0)).To(Succeed())
		reply()

		Expect(send(MsgDone, 0)).To(Succeed())
		Expect(reply()).To(Equal(Message{MsgError, 0}))
	})

	Context("when ready", func() {
		BeforeEach(func() {
			Expect(send(MsgInit, 0)).To(Succeed())
			reply()
		})

		It("should allocate buffers on BIND", func() {
			Expect(send(MsgBind, 1)).To(Succeed())

			Expect(reply()).To(Equal(Message{MsgBuffs, 2}))
			descs, err := ReadBuffers(conn, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(descs[0].Length).To(Equal(uint64(4096)))
			Expect(descs[0].Name()).To(Equal("/dev/fred/buff0"))
			Expect(descs[1].Length).To(Equal(uint64(100)))
			Expect(alloc.InUse()).To(Equal(uint64(4196)))
		})

		It("should reuse the buffers of a bound hw-task", func() {
			Expect(send(MsgBind, 1)).To(Succeed())
			Expect(send(MsgBind, 1)).To(Succeed())

			Expect(alloc.InUse()).To(Equal(uint64(4196)))
		})

		It("should reject unknown and banned hw-tasks on BIND", func() {
			Expect(send(MsgBind, 9)).To(Succeed())
			Expect(reply()).To(Equal(Message{MsgError, 0}))

			aes.Ban()
			Expect(send(MsgBind, 1)).To(Succeed())
			Expect(reply()).To(Equal(Message{MsgError, 0}))
			Expect(alloc.InUse()).To(BeZero())
		})

		It("should detach when buffers cannot be allocated", func() {
			c.alloc = nulldrv.NewAllocator(1000)

			err := send(MsgBind, 1)

			Expect(errors.Is(err, timing.ErrDetach)).To(BeTrue())
		})

		It("should reject RUN of an unbound hw-task", func() {
			Expect(send(MsgRun, 1)).To(Succeed())
			Expect(reply()).To(Equal(Message{MsgError, 0}))
		})

		Context("with a bound hw-task", func() {
			BeforeEach(func() {
				Expect(send(MsgBind, 1)).To(Succeed())
				reply()
				_, err := ReadBuffers(conn, 2)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should push a request with the buffer addresses", func() {
				var pushed *accel.Request
				pusher.EXPECT().PushAccelReq(gomock.Any()).
					DoAndReturn(func(req *accel.Request) error {
						pushed = req
						return nil
					})

				Expect(send(MsgRun, 1)).To(Succeed())

				Expect(pushed.HwTask()).To(BeIdenticalTo(aes))
				Expect(pushed.Args()).To(Equal([]uintptr{0x4000_0000, 0x4000_1000}))
				Expect(conn.Len()).To(BeZero())
			})

			It("should reject RUN while a request is in flight", func() {
				pusher.EXPECT().PushAccelReq(gomock.Any()).Return(nil)
				Expect(send(MsgRun, 1)).To(Succeed())

				Expect(send(MsgRun, 1)).To(Succeed())

				Expect(reply()).To(Equal(Message{MsgError, 0}))
			})

			It("should write DONE and OVERRUN notifications", func() {
				var pushed *accel.Request
				pusher.EXPECT().PushAccelReq(gomock.Any()).
					DoAndReturn(func(req *accel.Request) error {
						pushed = req
						return nil
					}).Times(2)

				Expect(send(MsgRun, 1)).To(Succeed())
				Expect(pushed.Notify(accel.NotifyDone)).To(Succeed())
				Expect(reply()).To(Equal(Message{MsgDone, 0}))

				Expect(send(MsgRun, 1)).To(Succeed())
				Expect(pushed.Notify(accel.NotifyOverrun)).To(Succeed())
				Expect(reply()).To(Equal(Message{MsgOverrun, 0}))
			})

			It("should reject RUN of a banned hw-task", func() {
				aes.Ban()

				Expect(send(MsgRun, 1)).To(Succeed())

				Expect(reply()).To(Equal(Message{MsgError, 0}))
			})

			It("should free its buffers on close", func() {
				closed := false
				c.onClose = func(*Client) { closed = true }

				Expect(c.Close()).To(Succeed())

				Expect(alloc.InUse()).To(BeZero())
				Expect(conn.closed).To(BeTrue())
				Expect(closed).To(BeTrue())
				Expect(c.Crit()).To(Succeed())
				Expect(conn.Len()).To(BeZero())
			})
		})
	})

	It("should detach on hangup", func() {
		err := c.Handle(&hangupEvent{err: io.EOF})

		Expect(errors.Is(err, timing.ErrDetach)).To(BeTrue())
	})

	It("should detach when the client cannot be reached", func() {
		conn.failing = true

		err := send(MsgInit, 0)

		Expect(errors.Is(err, timing.ErrDetach)).To(BeTrue())
	})

	It("should fail on unknown events", func() {
		err := c.Handle("tick")

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, timing.ErrDetach)).To(BeFalse())
	})

	It("should have a unique id", func() {
		other := newClient(&fakeConn{}, pusher, taskTable{}, alloc, log.StandardLogger())

		Expect(c.ID()).NotTo(Equal(other.ID()))
		Expect(c.Name()).To(HavePrefix("client "))
	})
})
