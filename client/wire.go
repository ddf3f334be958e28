package client

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fredsys/fred/hw"
)

// Head identifies the kind of a message.
type Head int32

// Requests are sent by clients, replies and notices by the server.
const (
	MsgInit    Head = 101
	MsgBind    Head = 201
	MsgRun     Head = 301
	MsgDone    Head = 401
	MsgOverrun Head = 402
	MsgAck     Head = 501
	MsgBuffs   Head = 601
	MsgError   Head = 701
	MsgCrit    Head = 801
)

func (h Head) String() string {
	switch h {
	case MsgInit:
		return "INIT"
	case MsgBind:
		return "BIND"
	case MsgRun:
		return "RUN"
	case MsgDone:
		return "DONE"
	case MsgOverrun:
		return "OVERRUN"
	case MsgAck:
		return "ACK"
	case MsgBuffs:
		return "BUFFS"
	case MsgError:
		return "ERROR"
	case MsgCrit:
		return "CRIT"
	default:
		return fmt.Sprintf("Head(%d)", int32(h))
	}
}

// Message is the fixed size unit of the protocol.
type Message struct {
	Head Head
	Arg  uint32
}

// DevNameLen is the size of the device name field of a buffer descriptor.
const DevNameLen = 64

// BufferDescriptor tells a client which device to map for a data buffer.
type BufferDescriptor struct {
	Length  uint64
	DevName [DevNameLen]byte
}

// Name returns the device name without padding.
func (d BufferDescriptor) Name() string {
	n := 0
	for n < len(d.DevName) && d.DevName[n] != 0 {
		n++
	}

	return string(d.DevName[:n])
}

// NewBufferDescriptor converts a buffer to its descriptor. Names are truncated to
// leave room for a terminating zero.
func NewBufferDescriptor(b hw.Buffer) BufferDescriptor {
	d := BufferDescriptor{Length: b.Size}
	copy(d.DevName[:DevNameLen-1], b.DevName)

	return d
}

// ReadMessage reads one message.
func ReadMessage(r io.Reader) (Message, error) {
	var m Message
	err := binary.Read(r, binary.LittleEndian, &m)

	return m, err
}

// WriteMessage writes one message.
func WriteMessage(w io.Writer, m Message) error {
	return binary.Write(w, binary.LittleEndian, m)
}

// WriteBuffers writes a BUFFS reply followed by the buffer descriptors.
func WriteBuffers(w io.Writer, bufs []hw.Buffer) error {
	descs := make([]BufferDescriptor, len(bufs))
	for i, b := range bufs {
		descs[i] = NewBufferDescriptor(b)
	}

	if err := WriteMessage(w, Message{MsgBuffs, uint32(len(bufs))}); err != nil {
		return err
	}

	return binary.Write(w, binary.LittleEndian, descs)
}

// ReadBuffers reads the n descriptors following a BUFFS reply.
func ReadBuffers(r io.Reader, n uint32) ([]BufferDescriptor, error) {
	descs := make([]BufferDescriptor, n)
	err := binary.Read(r, binary.LittleEndian, descs)

	return descs, err
}
