package core

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gathered(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
	}
	return sum
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatal(err)
	}
	var are prometheus.AlreadyRegisteredError
	if err := RegisterMetrics(reg); !errors.As(err, &are) {
		t.Fatalf("expected AlreadyRegisteredError, got %v", err)
	}

	queued := gathered(t, reg, "secureudp_packets_queued_total")
	delivered := gathered(t, reg, "secureudp_packets_delivered_total")

	r, c, cd := newTestReceiver(t, Config{})
	in := newInbox()
	r.Start(in.handle)
	c.inbox <- datagram{seal(t, cd, 0, "counted"), memAddr("sender")}
	in.expect(t, "counted")

	s, _ := newTestSender(t, Config{})
	if err := s.Send([]byte("counted")); err != nil {
		t.Fatal(err)
	}

	if got := gathered(t, reg, "secureudp_packets_delivered_total"); got != delivered+1 {
		t.Fatalf("delivered %v, want %v", got, delivered+1)
	}
	if got := gathered(t, reg, "secureudp_packets_queued_total"); got != queued+1 {
		t.Fatalf("queued %v, want %v", got, queued+1)
	}
}
