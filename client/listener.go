package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/fredsys/fred/hw"
	"github.com/fredsys/fred/sim/hooking"
	"github.com/fredsys/fred/sim/timing"
	log "github.com/sirupsen/logrus"
)

// Listener accepts client connections on a unix socket and attaches each of
// them to the engine. It warns all clients with CRIT when the engine stops
// on a fatal error.
type Listener struct {
	path   string
	engine timing.Engine
	sched  Pusher
	tasks  HwTaskTable
	alloc  hw.BufferAllocator
	logger log.FieldLogger

	ln net.Listener

	lock    sync.Mutex
	clients map[*Client]struct{}
}

// NewListener creates a listener for the socket at path.
func NewListener(
	path string,
	engine timing.Engine,
	sched Pusher,
	tasks HwTaskTable,
	alloc hw.BufferAllocator,
	logger log.FieldLogger,
) *Listener {
	if logger == nil {
		logger = log.StandardLogger()
	}

	return &Listener{
		path:    path,
		engine:  engine,
		sched:   sched,
		tasks:   tasks,
		alloc:   alloc,
		logger:  logger.WithField("component", "listener"),
		clients: make(map[*Client]struct{}),
	}
}

// Listen opens the socket, replacing a stale one left by a previous run.
func (l *Listener) Listen() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return err
	}

	l.ln = ln
	l.engine.AcceptHook(hooking.OnPos(l.critAll, timing.HookPosFatal))
	l.logger.Infof("listening on %s", l.path)

	return nil
}

// Serve accepts connections until ctx is done or the listener is closed.
func (l *Listener) Serve(ctx context.Context) error {
	if l.ln == nil {
		return errors.New("listener is not listening")
	}

	stop := make(chan struct{})
	defer close(stop)

	go func() {
		select {
		case <-ctx.Done():
			l.ln.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return fmt.Errorf("accept: %w", err)
		}

		l.attach(conn)
	}
}

func (l *Listener) attach(conn net.Conn) {
	c := newClient(conn, l.sched, l.tasks, l.alloc, l.logger)
	c.onClose = l.remove

	l.lock.Lock()
	l.clients[c] = struct{}{}
	l.lock.Unlock()

	l.engine.RegisterHandler(c, timing.PriorityNormal, timing.Owned)
	l.logger.Infof("client %s connected", c.ID())

	go c.readLoop(l.engine)
}

func (l *Listener) remove(c *Client) {
	l.lock.Lock()
	delete(l.clients, c)
	l.lock.Unlock()
}

// NumClients returns the number of attached clients.
func (l *Listener) NumClients() int {
	l.lock.Lock()
	defer l.lock.Unlock()

	return len(l.clients)
}

// critAll sends CRIT to every client once the engine reports a fatal error.
func (l *Listener) critAll(hooking.HookCtx) {
	l.lock.Lock()
	clients := make([]*Client, 0, len(l.clients))
	for c := range l.clients {
		clients = append(clients, c)
	}
	l.lock.Unlock()

	for _, c := range clients {
		if err := c.Crit(); err != nil {
			l.logger.Warnf("%s: %v", c.Name(), err)
		}
	}
}

// Close stops accepting connections and removes the socket.
func (l *Listener) Close() error {
	if l.ln == nil {
		return nil
	}

	err := l.ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}

	return err
}
