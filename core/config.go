package core

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	defaultInterval   = 100 * time.Millisecond
	defaultMaxPending = 1024
)

var (
	// ErrSocket wraps failures to create, bind or resolve a socket.
	ErrSocket = errors.New("secureudp: socket error")
	// ErrEncryption means a message could not be sealed. The sequence number
	// it was given is not reused.
	ErrEncryption = errors.New("secureudp: encryption failed")
	// ErrPayloadTooLarge means the message would not fit in one frame.
	ErrPayloadTooLarge = errors.New("secureudp: payload too large")

	ErrSenderStopped   = errors.New("secureudp: sender stopped")
	ErrReceiverStarted = errors.New("secureudp: receiver already started")
	ErrReceiverStopped = errors.New("secureudp: receiver stopped")

	// Reasons passed to Config.OnGiveUp.
	ErrRetryLimit = errors.New("secureudp: retry limit reached")
	ErrEvicted    = errors.New("secureudp: evicted from pending set")
)

// Config configures a Sender or a Receiver. Fields that only apply to one
// side are ignored by the other. Config is read, never written, after
// construction; Key in particular is borrowed, not copied.
type Config struct {
	// Key is the pre-shared 256-bit key.
	Key []byte
	// Suite names the AEAD; see cipher.ListSuites. Empty selects the default.
	Suite string
	// Logger receives per-packet diagnostics. Nil discards them.
	Logger *zap.Logger

	// LocalAddr is the sender's bind address. Empty picks an ephemeral port.
	LocalAddr string
	// Interval between retransmission passes; defaults to 100ms.
	Interval time.Duration
	// MaxPending caps the retransmission set. The oldest entry is evicted
	// when a new one would exceed it. Defaults to 1024.
	MaxPending int
	// MaxAttempts drops an entry after it was transmitted this many times.
	// Zero retransmits until acknowledged, evicted or stopped.
	MaxAttempts int
	// OnGiveUp is called, outside any lock, for every entry dropped by
	// MaxPending or MaxAttempts. reason is ErrEvicted or ErrRetryLimit.
	OnGiveUp func(seq uint32, reason error)

	// Ack makes the receiver answer every authenticated frame with an ack
	// frame sent back to its source.
	Ack bool
	// DropDuplicates makes the receiver deliver each nonce at most once
	// (probabilistically, over a bounded history).
	DropDuplicates bool
	// QueueSize > 0 moves handler calls to a separate goroutine fed by a
	// queue of this size. Order is preserved.
	QueueSize int
}

func (cfg Config) withDefaults() Config {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = defaultMaxPending
	}
	return cfg
}
