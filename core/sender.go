package core

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"
	"go.uber.org/zap"

	"github.com/secureudp/go-secureudp/packet"
)

type pendingPacket struct {
	seq      uint32
	frame    []byte
	attempts int
}

// Sender seals messages into frames and keeps retransmitting each frame
// every Interval until it is acknowledged, given up on, or the Sender is
// stopped.
type Sender struct {
	cfg   Config
	codec *codec
	acks  *codec
	conn  net.PacketConn
	raddr net.Addr
	log   *zap.Logger

	seq atomic.Uint32

	mu      sync.Mutex
	stopped bool
	pending *simplelru.LRU // seq -> *pendingPacket, oldest first
	wake    chan struct{}  // written under mu

	stop      chan struct{}
	stopOnce  sync.Once
	retransWG sync.WaitGroup
	ackWG     sync.WaitGroup
}

// DialSender binds a UDP socket on cfg.LocalAddr and returns a Sender
// transmitting to raddr.
func DialSender(raddr string, cfg Config) (*Sender, error) {
	addr, err := resolve(raddr)
	if err != nil {
		return nil, err
	}
	c, err := listenPacket(cfg.LocalAddr)
	if err != nil {
		return nil, err
	}
	s, err := NewSender(c, addr, cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	return s, nil
}

// NewSender returns a Sender writing to raddr through c. The Sender owns c
// and closes it in Stop.
func NewSender(c net.PacketConn, raddr net.Addr, cfg Config) (*Sender, error) {
	cfg = cfg.withDefaults()
	cd, err := newCodec(&cfg)
	if err != nil {
		return nil, err
	}
	acks, err := cd.ackCodec()
	if err != nil {
		return nil, err
	}
	pending, err := simplelru.NewLRU(cfg.MaxPending, nil)
	if err != nil {
		return nil, err
	}
	s := &Sender{
		cfg:     cfg,
		codec:   cd,
		acks:    acks,
		conn:    c,
		raddr:   raddr,
		log:     cfg.Logger.With(zap.String("component", "sender"), zap.Stringer("remote", raddr)),
		pending: pending,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	s.retransWG.Add(1)
	go s.retransmitLoop()
	s.ackWG.Add(1)
	go s.ackLoop()
	return s, nil
}

// Send seals msg, queues the frame for transmission and returns without
// waiting for the network.
func (s *Sender) Send(msg []byte) error {
	if len(msg) > packet.MaxPayload {
		return ErrPayloadTooLarge
	}
	select {
	case <-s.stop:
		return ErrSenderStopped
	default:
	}

	seq := s.seq.Add(1) - 1
	frame, err := s.codec.seal(seq, msg)
	if err != nil {
		s.log.Error("encrypt failed", zap.Uint32("seq", seq), zap.Error(err))
		return fmt.Errorf("%w: seq %d: %w", ErrEncryption, seq, err)
	}

	var evicted []uint32
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrSenderStopped
	}
	for s.pending.Len() >= s.cfg.MaxPending {
		_, v, ok := s.pending.RemoveOldest()
		if !ok {
			break
		}
		evicted = append(evicted, v.(*pendingPacket).seq)
	}
	s.pending.Add(seq, &pendingPacket{seq: seq, frame: frame})
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()

	packetsQueued.Inc()
	pendingPackets.Add(float64(1 - len(evicted)))
	for _, e := range evicted {
		s.giveUp(e, ErrEvicted)
	}
	return nil
}

// Ack removes seq from the retransmission set and reports whether it was
// pending.
func (s *Sender) Ack(seq uint32) bool {
	s.mu.Lock()
	ok := s.pending.Remove(seq)
	s.mu.Unlock()
	if ok {
		packetsAcked.Inc()
		pendingPackets.Dec()
		s.log.Debug("acked", zap.Uint32("seq", seq))
	}
	return ok
}

// Pending returns the number of frames awaiting retransmission.
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

// LocalAddr returns the address the Sender's socket is bound to.
func (s *Sender) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Stop ends the background loops and closes the socket. It is safe to call
// more than once and from any goroutine. Nothing is transmitted after Stop
// returns.
func (s *Sender) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		close(s.stop)
		s.retransWG.Wait()
		if err := s.conn.Close(); err != nil {
			s.log.Warn("close failed", zap.Error(err))
		}
		s.ackWG.Wait()

		s.mu.Lock()
		n := s.pending.Len()
		s.pending.Purge()
		s.mu.Unlock()
		pendingPackets.Sub(float64(n))
	})
}

func (s *Sender) giveUp(seq uint32, reason error) {
	label := reasonEvicted
	if reason == ErrRetryLimit {
		label = reasonRetry
	}
	packetsGivenUp.WithLabelValues(label).Inc()
	s.log.Debug("gave up", zap.Uint32("seq", seq), zap.Error(reason))
	if s.cfg.OnGiveUp != nil {
		s.cfg.OnGiveUp(seq, reason)
	}
}

func (s *Sender) retransmitLoop() {
	defer s.retransWG.Done()

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stop:
			return
		default:
		}

		if s.Pending() == 0 {
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}

		s.transmitPending()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.cfg.Interval)
		select {
		case <-timer.C:
		case <-s.stop:
			return
		}
	}
}

// transmitPending writes every pending frame once, oldest first.
func (s *Sender) transmitPending() {
	var frames [][]byte
	var exhausted []uint32

	s.mu.Lock()
	for _, k := range s.pending.Keys() {
		v, ok := s.pending.Peek(k)
		if !ok {
			continue
		}
		p := v.(*pendingPacket)
		frames = append(frames, p.frame)
		p.attempts++
		if s.cfg.MaxAttempts > 0 && p.attempts >= s.cfg.MaxAttempts {
			s.pending.Remove(k)
			exhausted = append(exhausted, p.seq)
		}
	}
	s.mu.Unlock()

	for _, f := range frames {
		if _, err := s.conn.WriteTo(f, s.raddr); err != nil {
			transmitErrors.Inc()
			s.log.Warn("transmit failed", zap.Error(err))
			continue
		}
		transmissions.Inc()
	}

	pendingPackets.Sub(float64(len(exhausted)))
	for _, seq := range exhausted {
		s.giveUp(seq, ErrRetryLimit)
	}
}

// ackLoop reads ack frames arriving on the sender's socket.
func (s *Sender) ackLoop() {
	defer s.ackWG.Done()

	buf := make([]byte, packet.MaxFrameSize)
	for {
		n, _, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debug("ack read failed", zap.Error(err))
			continue
		}

		p, plaintext, err := s.acks.open(buf[:n])
		if err != nil {
			s.log.Debug("dropped ack", zap.Uint32("seq", p.Seq), zap.Error(err))
			continue
		}
		seq, err := packet.DecodeAckPayload(plaintext)
		if err != nil || seq != p.Seq {
			s.log.Debug("dropped ack", zap.Uint32("seq", p.Seq), zap.Error(packet.ErrMalformedPacket))
			continue
		}
		s.Ack(seq)
	}
}
