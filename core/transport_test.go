package core_test

import (
	"bytes"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/secureudp/go-secureudp/cipher"
	"github.com/secureudp/go-secureudp/core"
	"github.com/secureudp/go-secureudp/packet"
)

func newKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, cipher.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		t.Fatal(err)
	}
	return key
}

func listen(t *testing.T, cfg core.Config) (*core.Receiver, chan []byte) {
	t.Helper()
	r, err := core.ListenReceiver("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(r.Stop)
	got := make(chan []byte, 64)
	if err := r.Start(func(b []byte) { got <- b }); err != nil {
		t.Fatal(err)
	}
	return r, got
}

func dial(t *testing.T, raddr string, cfg core.Config) *core.Sender {
	t.Helper()
	s, err := core.DialSender(raddr, cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Stop)
	return s
}

func TestHelloLoopback(t *testing.T) {
	for _, suite := range cipher.ListSuites() {
		t.Run(suite, func(t *testing.T) {
			const interval = 100 * time.Millisecond
			cfg := core.Config{Key: newKey(t), Suite: suite, Interval: interval}
			r, got := listen(t, cfg)
			s := dial(t, r.LocalAddr().String(), cfg)

			start := time.Now()
			if err := s.Send([]byte("hello")); err != nil {
				t.Fatal(err)
			}
			select {
			case b := <-got:
				if string(b) != "hello" {
					t.Fatalf("got %q want %q", b, "hello")
				}
				if d := time.Since(start); d > interval+50*time.Millisecond {
					t.Fatalf("delivered after %v, want within %v", d, interval)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("timeout waiting for hello")
			}
		})
	}
}

func TestCorruptedTagSkipped(t *testing.T) {
	key := newKey(t)
	r, got := listen(t, core.Config{Key: key})

	raw, err := net.Dial("udp", r.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer raw.Close()

	suite, _ := cipher.PickSuite("")
	frame := func(seq uint32, msg string) []byte {
		nonce := make([]byte, cipher.NonceSize)
		io.ReadFull(rand.Reader, nonce)
		ct, tag, err := suite.Encrypt(key, nonce, []byte(msg))
		if err != nil {
			t.Fatal(err)
		}
		return packet.Encode(seq, uint64(time.Now().UnixMilli()), nonce, ct, tag)
	}

	bad := frame(0, "corrupted")
	bad[len(bad)-1] ^= 0x80
	raw.Write(bad)
	raw.Write([]byte("too short"))
	raw.Write(frame(1, "valid"))

	select {
	case b := <-got:
		if string(b) != "valid" {
			t.Fatalf("got %q, want only the valid frame", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("receiver stopped serving after a corrupted frame")
	}
	select {
	case b := <-got:
		t.Fatalf("unexpected delivery %q", b)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSenderStopReleasesPort(t *testing.T) {
	cfg := core.Config{Key: newKey(t), LocalAddr: "127.0.0.1:0"}

	// nobody listens at the remote, so the packet stays pending
	sink, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	remote := sink.LocalAddr().String()
	sink.Close()

	s, err := core.DialSender(remote, cfg)
	if err != nil {
		t.Fatal(err)
	}
	s.Send([]byte("never acked"))
	if s.Pending() != 1 {
		t.Fatalf("pending %d, want 1", s.Pending())
	}
	local := s.LocalAddr().String()

	start := time.Now()
	s.Stop()
	if d := time.Since(start); d > 100*time.Millisecond {
		t.Fatalf("Stop took %v, longer than one interval", d)
	}

	cfg.LocalAddr = local
	s2, err := core.DialSender(remote, cfg)
	if err != nil {
		t.Fatalf("rebinding %s after Stop: %v", local, err)
	}
	s2.Stop()
}

func TestReceiverStopReleasesPort(t *testing.T) {
	cfg := core.Config{Key: newKey(t)}
	r, err := core.ListenReceiver("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.Start(nil)
	addr := r.LocalAddr().String()
	r.Stop()

	r2, err := core.ListenReceiver(addr, cfg)
	if err != nil {
		t.Fatalf("rebinding %s after Stop: %v", addr, err)
	}
	r2.Stop()
}

func TestListenBindFailure(t *testing.T) {
	cfg := core.Config{Key: newKey(t)}
	r, err := core.ListenReceiver("127.0.0.1:0", cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if _, err := core.ListenReceiver(r.LocalAddr().String(), cfg); err == nil {
		t.Fatal("second bind on the same port succeeded")
	} else if !errors.Is(err, core.ErrSocket) {
		t.Fatalf("expected ErrSocket, got %v", err)
	}
}

func TestAckClearsPending(t *testing.T) {
	key := newKey(t)
	r, got := listen(t, core.Config{Key: key, Ack: true, DropDuplicates: true})
	s := dial(t, r.LocalAddr().String(), core.Config{Key: key, Interval: 10 * time.Millisecond})

	for _, m := range []string{"one", "two", "three"} {
		if err := s.Send([]byte(m)); err != nil {
			t.Fatal(err)
		}
	}

	var msgs [][]byte
	deadline := time.After(2 * time.Second)
	for len(msgs) < 3 {
		select {
		case b := <-got:
			msgs = append(msgs, b)
		case <-deadline:
			t.Fatalf("delivered %d of 3", len(msgs))
		}
	}

	for start := time.Now(); s.Pending() != 0; time.Sleep(5 * time.Millisecond) {
		if time.Since(start) > 2*time.Second {
			t.Fatalf("pending %d after acks", s.Pending())
		}
	}

	// with dedup on, retransmissions before the ack arrived are not redelivered
	time.Sleep(50 * time.Millisecond)
	select {
	case b := <-got:
		t.Fatalf("duplicate delivery %q", b)
	default:
	}
	for _, want := range []string{"one", "two", "three"} {
		found := false
		for _, m := range msgs {
			if bytes.Equal(m, []byte(want)) {
				found = true
			}
		}
		if !found {
			t.Fatalf("%q not delivered", want)
		}
	}
}

func TestWrongKeyNotDelivered(t *testing.T) {
	r, got := listen(t, core.Config{Key: newKey(t)})
	s := dial(t, r.LocalAddr().String(), core.Config{Key: newKey(t)})
	s.Send([]byte("wrong key"))

	select {
	case b := <-got:
		t.Fatalf("delivered %q under the wrong key", b)
	case <-time.After(250 * time.Millisecond):
	}
}
