// Package telemetry exposes prometheus counters for flag sync and sessions.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/squidstack/squidflags/pkg/model"
	"github.com/squidstack/squidflags/pkg/provider"
)

const namespace = "squidflags"

type Metrics struct {
	Impressions  *prometheus.CounterVec
	Refreshes    *prometheus.CounterVec
	Publications *prometheus.CounterVec
	Sessions     *prometheus.CounterVec
}

// New registers the counters with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Impressions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_impressions_total",
			Help:      "Flag evaluations made by the backend.",
		}, []string{"flag", "reason"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flag_refreshes_total",
			Help:      "Completed flag sync cycles.",
		}, []string{"reason", "result"}),
		Publications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_publications_total",
			Help:      "Snapshots delivered to subscribers.",
		}, []string{"reason"}),
		Sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events.",
		}, []string{"event"}),
	}
	for _, c := range []prometheus.Collector{m.Impressions, m.Refreshes, m.Publications, m.Sessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Impression(imp provider.Impression) {
	m.Impressions.WithLabelValues(imp.Flag, imp.Reason).Inc()
}

func (m *Metrics) Refresh(reason string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(reason, result).Inc()
}

// Published is a snapshot subscriber.
func (m *Metrics) Published(reason string, _ model.Snapshot) {
	m.Publications.WithLabelValues(reason).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	m.Sessions.WithLabelValues(event).Inc()
}
