// Package metrics exposes Prometheus collectors for the engine's
// connection and command lifecycle.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collectors groups the counters and histograms a Server registers and
// updates as connections are accepted and commands dispatched.
type Collectors struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsRejected *prometheus.CounterVec
	CommandsDispatched  *prometheus.CounterVec
	STARTTLSUpgrades    prometheus.Counter
	AuthAttempts        *prometheus.CounterVec
	DataBytes           prometheus.Histogram
}

// NewCollectors builds a Collectors with the given namespace and registers
// every collector with reg. Pass prometheus.DefaultRegisterer to use the
// global registry.
func NewCollectors(namespace string, reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ConnectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_accepted_total",
			Help:      "Total TCP connections accepted.",
		}),
		ConnectionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_rejected_total",
			Help:      "Connections rejected before an SMTP session started, by reason.",
		}, []string{"reason"}),
		CommandsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_dispatched_total",
			Help:      "SMTP commands dispatched, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		STARTTLSUpgrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "starttls_upgrades_total",
			Help:      "Successful STARTTLS upgrades.",
		}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "AUTH attempts, by mechanism and outcome.",
		}, []string{"mechanism", "outcome"}),
		DataBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "data_bytes",
			Help:      "Size in bytes of accepted DATA payloads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}

	reg.MustRegister(
		c.ConnectionsAccepted,
		c.ConnectionsRejected,
		c.CommandsDispatched,
		c.STARTTLSUpgrades,
		c.AuthAttempts,
		c.DataBytes,
	)
	return c
}
