// Package metrics exposes prometheus counters for sync activity. A nil
// *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	eventsMerged      *prometheus.CounterVec
	duplicatesIgnored prometheus.Counter
	messagesExpired   prometheus.Counter
	writeFailures     *prometheus.CounterVec
	subscriptions     prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "events_merged_total",
			Help:      "Push events merged into local state.",
		}, []string{"table", "event"}),
		duplicatesIgnored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "duplicate_deliveries_total",
			Help:      "Message deliveries ignored because the id was already present.",
		}),
		messagesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "messages_expired_total",
			Help:      "Ephemeral messages removed by the expiry sweeper.",
		}),
		writeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatsync",
			Name:      "remote_write_failures_total",
			Help:      "Remote writes that failed, by operation.",
		}, []string{"op"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chatsync",
			Name:      "active_subscriptions",
			Help:      "Push-feed subscriptions currently open.",
		}),
	}
	reg.MustRegister(m.eventsMerged, m.duplicatesIgnored, m.messagesExpired, m.writeFailures, m.subscriptions)
	return m
}

func (m *Metrics) EventMerged(table, event string) {
	if m != nil {
		m.eventsMerged.WithLabelValues(table, event).Inc()
	}
}

func (m *Metrics) DuplicateIgnored() {
	if m != nil {
		m.duplicatesIgnored.Inc()
	}
}

func (m *Metrics) MessageExpired() {
	if m != nil {
		m.messagesExpired.Inc()
	}
}

func (m *Metrics) WriteFailed(op string) {
	if m != nil {
		m.writeFailures.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) SetSubscriptions(n int) {
	if m != nil {
		m.subscriptions.Set(float64(n))
	}
}
