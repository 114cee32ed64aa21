// Package metrics defines the Prometheus collectors shared by the receiver
// and transmitter.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the exchange engine's counters and gauges.
type Metrics struct {
	FramesReceived  prometheus.Counter
	FramesAccepted  prometheus.Counter
	FramesRejected  prometheus.Counter
	AckFailures     prometheus.Counter
	CaptureFailures prometheus.Counter
	ActiveSessions  prometheus.Gauge

	MessagesSent prometheus.Counter
	Reconnects   prometheus.Counter
	RunsAborted  prometheus.Counter
}

// New creates the collectors and registers them with reg. A nil reg returns
// unregistered collectors, which is what tests and the CLI tools use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_frames_received_total",
			Help: "Complete MLLP frames taken off inbound connections.",
		}),
		FramesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_frames_accepted_total",
			Help: "Received messages acknowledged with AA.",
		}),
		FramesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_frames_rejected_total",
			Help: "Received messages acknowledged with AE.",
		}),
		AckFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_ack_failures_total",
			Help: "Messages for which no acknowledgment could be built or sent.",
		}),
		CaptureFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_capture_failures_total",
			Help: "Capture sink writes that reported an error.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hl7_active_sessions",
			Help: "Currently open receiver sessions.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_messages_sent_total",
			Help: "Outbound messages whose frame was fully written.",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_reconnects_total",
			Help: "Reconnections performed after a broken outbound connection.",
		}),
		RunsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hl7_delivery_runs_aborted_total",
			Help: "Delivery runs abandoned before completing every message.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.FramesReceived, m.FramesAccepted, m.FramesRejected,
			m.AckFailures, m.CaptureFailures, m.ActiveSessions,
			m.MessagesSent, m.Reconnects, m.RunsAborted,
		)
	}
	return m
}
