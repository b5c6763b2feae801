// Package observability holds MailCrab's Prometheus metric collectors.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector MailCrab registers.
type Metrics struct {
	MessagesIngestedTotal prometheus.Counter
	MessagesRejectedTotal *prometheus.CounterVec
	MessagesStored        prometheus.Gauge
	ActiveSubscribers     prometheus.Gauge
	ActiveSMTPConnections prometheus.Gauge
	BroadcastLagTotal     prometheus.Counter
}

// NewMetrics creates and registers every collector with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesIngestedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailcrab",
			Subsystem: "smtp",
			Name:      "messages_ingested_total",
			Help:      "Total number of messages successfully parsed and captured.",
		}),
		MessagesRejectedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mailcrab",
			Subsystem: "smtp",
			Name:      "messages_rejected_total",
			Help:      "Total number of DATA buffers that were not captured, by reason (parse, no_subscribers, publish).",
		}, []string{"reason"}),
		MessagesStored: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailcrab",
			Subsystem: "store",
			Name:      "messages",
			Help:      "Number of messages currently held in memory.",
		}),
		ActiveSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailcrab",
			Subsystem: "live",
			Name:      "subscribers",
			Help:      "Number of open websocket live subscriptions.",
		}),
		ActiveSMTPConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "mailcrab",
			Subsystem: "smtp",
			Name:      "connections",
			Help:      "Number of currently open inbound SMTP connections.",
		}),
		BroadcastLagTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "mailcrab",
			Subsystem: "broadcast",
			Name:      "lagged_total",
			Help:      "Total number of times a live subscriber fell behind the broadcast ring and skipped entries.",
		}),
	}
}
