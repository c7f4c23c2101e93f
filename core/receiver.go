package core

import (
	"errors"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/secureudp/go-secureudp/internal"
	"github.com/secureudp/go-secureudp/packet"
)

// Handler receives the plaintext of each authenticated frame. It owns
// payload. Unless Config.QueueSize is set it runs on the receive loop, so a
// slow Handler delays every later datagram. Handler must not call Stop on
// its own Receiver.
type Handler func(payload []byte)

// Receiver authenticates incoming frames and hands their payloads to a
// Handler.
type Receiver struct {
	cfg   Config
	codec *codec
	acks  *codec
	conn  net.PacketConn
	log   *zap.Logger
	seen  *internal.BloomRing // nil unless DropDuplicates

	mu      sync.Mutex
	started bool
	stopped bool
	handler Handler
	queue   chan []byte

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// ListenReceiver binds a UDP socket on laddr. Bind failures are returned
// here, before the Receiver is usable.
func ListenReceiver(laddr string, cfg Config) (*Receiver, error) {
	c, err := listenPacket(laddr)
	if err != nil {
		return nil, err
	}
	r, err := NewReceiver(c, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	return r, nil
}

// NewReceiver returns a Receiver reading from c. The Receiver owns c and
// closes it in Stop.
func NewReceiver(c net.PacketConn, cfg Config) (*Receiver, error) {
	cfg = cfg.withDefaults()
	cd, err := newCodec(&cfg)
	if err != nil {
		return nil, err
	}
	acks, err := cd.ackCodec()
	if err != nil {
		return nil, err
	}
	r := &Receiver{
		cfg:   cfg,
		codec: cd,
		acks:  acks,
		conn:  c,
		log:   cfg.Logger.With(zap.String("component", "receiver"), zap.Stringer("local", c.LocalAddr())),
		stop:  make(chan struct{}),
	}
	if cfg.DropDuplicates {
		r.seen = internal.NewBloomRing(internal.DefaultSlots, int(internal.DefaultCapacity), internal.DefaultFPR)
	}
	return r, nil
}

// Start launches the receive loop delivering to h.
func (r *Receiver) Start(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrReceiverStopped
	}
	if r.started {
		return ErrReceiverStarted
	}
	r.started = true

	if h == nil {
		h = func([]byte) {}
	}
	r.handler = h
	if r.cfg.QueueSize > 0 {
		r.queue = make(chan []byte, r.cfg.QueueSize)
		r.wg.Add(1)
		go r.deliverLoop()
	}
	r.wg.Add(1)
	go r.receiveLoop()
	return nil
}

// LocalAddr returns the address the Receiver is bound to.
func (r *Receiver) LocalAddr() net.Addr { return r.conn.LocalAddr() }

// Stop closes the socket, which unblocks the pending read, and waits for the
// loops to exit. The Handler is not called after Stop returns. Stop is safe
// to call more than once.
func (r *Receiver) Stop() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		r.mu.Unlock()

		close(r.stop)
		if err := r.conn.Close(); err != nil {
			r.log.Warn("close failed", zap.Error(err))
		}
		r.wg.Wait()
	})
}

func (r *Receiver) receiveLoop() {
	defer r.wg.Done()

	buf := make([]byte, packet.MaxFrameSize)
	for {
		n, addr, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			r.log.Warn("read failed", zap.Error(err))
			continue
		}
		if n <= 0 {
			continue
		}
		if !r.handle(buf[:n], addr) {
			return
		}
	}
}

// handle processes one datagram. It returns false once the Receiver is
// stopping.
func (r *Receiver) handle(b []byte, from net.Addr) bool {
	p, plaintext, err := r.codec.open(b)
	if err == packet.ErrMalformedPacket {
		packetsDropped.WithLabelValues(reasonMalformed).Inc()
		r.log.Debug("dropped malformed datagram", zap.Int("len", len(b)), zap.Stringer("from", from))
		return true
	}
	if err != nil {
		packetsDropped.WithLabelValues(reasonAuth).Inc()
		r.log.Warn("decryption failed", zap.Uint32("seq", p.Seq), zap.Stringer("from", from))
		return true
	}

	if r.cfg.Ack {
		r.ack(p.Seq, from)
	}
	if r.seen != nil && r.seen.TestAndAdd(p.Nonce[:]) {
		packetsDropped.WithLabelValues(reasonDuplicate).Inc()
		r.log.Debug("dropped duplicate", zap.Uint32("seq", p.Seq))
		return true
	}

	if r.queue == nil {
		r.deliver(plaintext)
		return true
	}
	select {
	case r.queue <- plaintext:
		return true
	case <-r.stop:
		return false
	}
}

func (r *Receiver) deliver(plaintext []byte) {
	packetsDelivered.Inc()
	r.handler(plaintext)
}

func (r *Receiver) deliverLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.stop:
			return
		case b := <-r.queue:
			r.deliver(b)
		}
	}
}

func (r *Receiver) ack(seq uint32, to net.Addr) {
	frame, err := r.acks.seal(seq, packet.EncodeAckPayload(seq))
	if err != nil {
		r.log.Error("seal ack failed", zap.Uint32("seq", seq), zap.Error(err))
		return
	}
	if _, err := r.conn.WriteTo(frame, to); err != nil {
		transmitErrors.Inc()
		r.log.Warn("ack failed", zap.Uint32("seq", seq), zap.Error(err))
		return
	}
	transmissions.Inc()
}
