package wire

import (
	"context"
	"fmt"

	"github.com/cuemby/oneloop/pkg/errkind"
)

// chanBufferSize bounds the in-flight message count on each
// direction of a worker's control channel.
const chanBufferSize = 4

// Conn is the control-channel transport abstraction: today backed
// by an in-memory byte-channel pair,
// but shaped so a future subprocess-pipe or TCP implementation is a
// drop-in substitute; nothing above this interface inspects the
// transport.
type Conn interface {
	Send(ctx context.Context, e Envelope) error
	Recv(ctx context.Context) (Envelope, error)
	Close() error
}

// ChannelPair is a pair of Conns that talk to each other, one held by
// the master and one by the worker. Messages cross as encoded bytes,
// not live Go values, so every payload crosses a real serialization
// boundary.
type ChannelPair struct {
	toWorker chan []byte
	toMaster chan []byte
}

// NewChannelPair allocates a connected master/worker Conn pair.
func NewChannelPair() (master Conn, worker Conn) {
	p := &ChannelPair{
		toWorker: make(chan []byte, chanBufferSize),
		toMaster: make(chan []byte, chanBufferSize),
	}
	return &masterConn{pair: p}, &workerConn{pair: p}
}

type masterConn struct {
	pair   *ChannelPair
	closed bool
}

func (c *masterConn) Send(ctx context.Context, e Envelope) error {
	data, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	select {
	case c.pair.toWorker <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *masterConn) Recv(ctx context.Context) (Envelope, error) {
	select {
	case data, ok := <-c.pair.toMaster:
		if !ok {
			return Envelope{}, errkind.Wrap(errkind.Protocol, fmt.Errorf("control channel closed"))
		}
		return DecodeEnvelope(data)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *masterConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.pair.toWorker)
	return nil
}

type workerConn struct {
	pair   *ChannelPair
	closed bool
}

func (c *workerConn) Send(ctx context.Context, e Envelope) error {
	data, err := EncodeEnvelope(e)
	if err != nil {
		return err
	}
	select {
	case c.pair.toMaster <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *workerConn) Recv(ctx context.Context) (Envelope, error) {
	select {
	case data, ok := <-c.pair.toWorker:
		if !ok {
			return Envelope{}, errkind.Wrap(errkind.Protocol, fmt.Errorf("control channel closed"))
		}
		return DecodeEnvelope(data)
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *workerConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.pair.toMaster)
	return nil
}
