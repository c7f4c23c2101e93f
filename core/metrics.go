package core

import "github.com/prometheus/client_golang/prometheus"

const namespace = "secureudp"

var (
	packetsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_queued_total",
		Help:      "Messages sealed and added to a sender's pending set.",
	})
	transmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmissions_total",
		Help:      "Frames written to the network, retransmissions included.",
	})
	transmitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transmit_errors_total",
		Help:      "Frame writes that failed.",
	})
	pendingPackets = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_packets",
		Help:      "Frames currently held for retransmission.",
	})
	packetsAcked = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_acked_total",
		Help:      "Pending frames removed by an acknowledgment.",
	})
	packetsGivenUp = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_given_up_total",
		Help:      "Pending frames dropped without an acknowledgment.",
	}, []string{"reason"})
	packetsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_delivered_total",
		Help:      "Authenticated payloads handed to the application.",
	})
	packetsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Received datagrams dropped before delivery.",
	}, []string{"reason"})
)

// drop reasons
const (
	reasonMalformed = "malformed"
	reasonAuth      = "auth"
	reasonDuplicate = "duplicate"
	reasonEvicted   = "evicted"
	reasonRetry     = "retry_limit"
)

// RegisterMetrics registers the package collectors with r.
func RegisterMetrics(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		packetsQueued,
		transmissions,
		transmitErrors,
		pendingPackets,
		packetsAcked,
		packetsGivenUp,
		packetsDelivered,
		packetsDropped,
	} {
		if err := r.Register(c); err != nil {
			return err
		}
	}
	return nil
}
