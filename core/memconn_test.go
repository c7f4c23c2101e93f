package core

import (
	"net"
	"sync"
	"time"
)

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }

type datagram struct {
	b    []byte
	addr net.Addr
}

// memConn is an in-process net.PacketConn. Writes are recorded; reads are
// served from inbox and block until Close.
type memConn struct {
	local net.Addr
	inbox chan datagram

	mu       sync.Mutex
	written  []datagram
	writeErr error
	closed   chan struct{}
	closes   int
}

func newMemConn(name string) *memConn {
	return &memConn{
		local:  memAddr(name),
		inbox:  make(chan datagram, 64),
		closed: make(chan struct{}),
	}
}

func (c *memConn) ReadFrom(b []byte) (int, net.Addr, error) {
	select {
	case d := <-c.inbox:
		return copy(b, d.b), d.addr, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *memConn) WriteTo(b []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return 0, net.ErrClosed
	default:
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.written = append(c.written, datagram{append([]byte(nil), b...), addr})
	return len(b), nil
}

func (c *memConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	if c.closes == 1 {
		close(c.closed)
	}
	return nil
}

func (c *memConn) LocalAddr() net.Addr                { return c.local }
func (c *memConn) SetDeadline(t time.Time) error      { return nil }
func (c *memConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *memConn) Written() []datagram {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]datagram(nil), c.written...)
}

func (c *memConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
