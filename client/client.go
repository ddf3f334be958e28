// Package client serves the software tasks that submit acceleration
// requests over a unix socket.
package client

import (
	"errors"
	"fmt"
	"io"

	"github.com/fredsys/fred/accel"
	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/hwtask"
	"github.com/fredsys/fred/sim/timing"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// ErrBannedHwTask is logged when a client asks for a banned hardware task.
var ErrBannedHwTask = errors.New("hw-task is banned")

// MaxHwTasks bounds the number of hardware tasks a client can bind.
const MaxHwTasks = 128

// Pusher accepts acceleration requests.
type Pusher interface {
	PushAccelReq(req *accel.Request) error
}

// HwTaskTable looks hardware tasks up by id.
type HwTaskTable interface {
	HwTask(id uint32) (*hwtask.HwTask, bool)
}

// State is the protocol state of a client.
type State int

// A client is Empty until it sends INIT.
const (
	Empty State = iota
	Ready
)

type messageEvent struct {
	msg Message
}

type hangupEvent struct {
	err error
}

type binding struct {
	task    *hwtask.HwTask
	buffers []hw.Buffer
}

// Client is the server side of one connection. All methods but the reader
// run on the engine thread.
type Client struct {
	id     string
	conn   io.ReadWriteCloser
	sched  Pusher
	tasks  HwTaskTable
	alloc  hw.BufferAllocator
	logger log.FieldLogger

	state    State
	bindings []binding
	req      *accel.Request
	inFlight bool
	closed   bool
	onClose  func(*Client)
}

func newClient(
	conn io.ReadWriteCloser,
	sched Pusher,
	tasks HwTaskTable,
	alloc hw.BufferAllocator,
	logger log.FieldLogger,
) *Client {
	c := &Client{
		id:    uuid.NewString(),
		conn:  conn,
		sched: sched,
		tasks: tasks,
		alloc: alloc,
	}
	c.logger = logger.WithField("client", c.id)
	c.req = accel.NewRequest(c)

	return c
}

// ID returns the unique id of the connection.
func (c *Client) ID() string {
	return c.id
}

// Name returns the name used in logs.
func (c *Client) Name() string {
	return "client " + c.id
}

// State returns the protocol state.
func (c *Client) State() State {
	return c.state
}

// readLoop posts every message of the connection to the engine until the
// connection fails.
func (c *Client) readLoop(engine timing.EventScheduler) {
	for {
		msg, err := ReadMessage(c.conn)
		if err != nil {
			engine.Schedule(timing.ScheduledEvent{
				Event:   &hangupEvent{err: err},
				Time:    engine.CurrentTime(),
				Handler: c,
			})

			return
		}

		engine.Schedule(timing.ScheduledEvent{
			Event:   &messageEvent{msg: msg},
			Time:    engine.CurrentTime(),
			Handler: c,
		})
	}
}

// Handle processes the messages of the client. Any failure that concerns
// only this client detaches it.
func (c *Client) Handle(event any) error {
	switch e := event.(type) {
	case *messageEvent:
		return c.process(e.msg)
	case *hangupEvent:
		if errors.Is(e.err, io.EOF) {
			return fmt.Errorf("%w: disconnected", timing.ErrDetach)
		}
		return fmt.Errorf("%w: %w", timing.ErrDetach, e.err)
	default:
		return fmt.Errorf("client: unknown event type: %T", event)
	}
}

func (c *Client) process(msg Message) error {
	c.logger.Debugf("received %s %d", msg.Head, msg.Arg)

	switch {
	case msg.Head == MsgInit && c.state == Empty:
		c.state = Ready
		return c.send(MsgAck, 0)
	case msg.Head == MsgBind && c.state == Ready:
		return c.bind(msg.Arg)
	case msg.Head == MsgRun && c.state == Ready:
		return c.run(msg.Arg)
	default:
		return c.send(MsgError, 0)
	}
}

func (c *Client) bind(id uint32) error {
	t, found := c.tasks.HwTask(id)
	if !found {
		c.logger.Warnf("bind: unknown hw-task id %d", id)
		return c.send(MsgError, 0)
	}

	if t.Banned() {
		c.logger.Warnf("bind %s: %v", t, ErrBannedHwTask)
		return c.send(MsgError, 0)
	}

	if b := c.binding(id); b != nil {
		return c.sendBuffers(b.buffers)
	}

	if len(c.bindings) >= MaxHwTasks-1 {
		c.logger.Warnf("bind %s: too many hw-tasks", t)
		return c.send(MsgError, 0)
	}

	b := binding{task: t}
	for _, size := range t.BufferSizes() {
		buf, err := c.alloc.Alloc(size)
		if err != nil {
			c.free(b.buffers)
			return fmt.Errorf("%w: allocating buffers for %s: %w",
				timing.ErrDetach, t, err)
		}
		b.buffers = append(b.buffers, buf)
	}

	c.bindings = append(c.bindings, b)
	c.logger.Infof("bound %s", t)

	return c.sendBuffers(b.buffers)
}

func (c *Client) run(id uint32) error {
	b := c.binding(id)
	if b == nil {
		c.logger.Warnf("run: hw-task %d not bound", id)
		return c.send(MsgError, 0)
	}

	if b.task.Banned() {
		c.logger.Warnf("run %s: %v", b.task, ErrBannedHwTask)
		return c.send(MsgError, 0)
	}

	if c.inFlight {
		c.logger.Warnf("run %s: previous request still running", b.task)
		return c.send(MsgError, 0)
	}

	args := make([]uintptr, len(b.buffers))
	for i, buf := range b.buffers {
		args[i] = buf.PhysAddr
	}

	c.req.Unbind()
	if err := c.req.Bind(b.task, args); err != nil {
		return err
	}

	c.inFlight = true

	return c.sched.PushAccelReq(c.req)
}

// Notify tells the client its request completed or overran.
func (c *Client) Notify(req *accel.Request, msg accel.NotifyMsg) error {
	c.inFlight = false

	if c.closed {
		return fmt.Errorf("%s closed", c.Name())
	}

	head := MsgDone
	if msg == accel.NotifyOverrun {
		head = MsgOverrun
	}

	return c.send(head, 0)
}

// Crit warns the client the server is going down.
func (c *Client) Crit() error {
	if c.closed {
		return nil
	}

	return c.send(MsgCrit, 0)
}

func (c *Client) binding(id uint32) *binding {
	for i := range c.bindings {
		if c.bindings[i].task.ID() == id {
			return &c.bindings[i]
		}
	}

	return nil
}

func (c *Client) send(head Head, arg uint32) error {
	if err := WriteMessage(c.conn, Message{head, arg}); err != nil {
		return fmt.Errorf("%w: sending %s: %w", timing.ErrDetach, head, err)
	}

	return nil
}

func (c *Client) sendBuffers(bufs []hw.Buffer) error {
	if err := WriteBuffers(c.conn, bufs); err != nil {
		return fmt.Errorf("%w: sending buffers: %w", timing.ErrDetach, err)
	}

	return nil
}

func (c *Client) free(bufs []hw.Buffer) {
	for _, b := range bufs {
		if err := c.alloc.Free(b); err != nil {
			c.logger.Warnf("freeing %s: %v", b.DevName, err)
		}
	}
}

// Close releases the buffers and the connection.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	for _, b := range c.bindings {
		c.free(b.buffers)
	}
	c.bindings = nil

	if c.onClose != nil {
		c.onClose(c)
	}

	c.logger.Info("detached")

	return c.conn.Close()
}
