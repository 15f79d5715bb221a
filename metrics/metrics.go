// Package metrics registers the prometheus collectors the session and
// dispatcher layers update, grounded on the pack's use of
// prometheus/client_golang for long-running worker pools.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Session holds every collector a Session instance reports against.
// Callers register it with Register and pass it to the Session it
// reports for.
type Session struct {
	MessagesSent     prometheus.Counter
	MessagesReceived prometheus.Counter
	RpcInFlight      prometheus.Gauge
	RpcLatency       prometheus.Histogram
	Reconnects       prometheus.Counter
	FloodWaits       prometheus.Counter
}

// NewSession constructs a Session metrics bundle. It does not register
// the collectors; call Register to do that against a specific registry.
func NewSession() *Session {
	return &Session{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gomtproto_session_messages_sent_total",
			Help: "Total MTProto messages sent on this session.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gomtproto_session_messages_received_total",
			Help: "Total MTProto messages received on this session.",
		}),
		RpcInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gomtproto_session_rpc_in_flight",
			Help: "Number of RPC requests currently awaiting a response.",
		}),
		RpcLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gomtproto_session_rpc_latency_seconds",
			Help:    "Latency between an RPC request and its rpc_result.",
			Buckets: prometheus.DefBuckets,
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gomtproto_session_reconnects_total",
			Help: "Total times this session has had to reconnect.",
		}),
		FloodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gomtproto_session_flood_waits_total",
			Help: "Total FLOOD_WAIT_N responses observed.",
		}),
	}
}

// Register adds every collector in s to reg.
func (s *Session) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		s.MessagesSent, s.MessagesReceived, s.RpcInFlight,
		s.RpcLatency, s.Reconnects, s.FloodWaits,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
