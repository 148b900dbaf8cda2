// Package metrics exports credential lifecycle events as Prometheus
// counters.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-authgate/boxsession/auth"
)

// Event label values.
const (
	EventCreated   = "created"
	EventRefreshed = "refreshed"
	EventFailure   = "failure"
	EventLoggedOut = "logged_out"
)

// Collector is an auth.Listener that counts events.
type Collector struct {
	events   *prometheus.CounterVec
	failures *prometheus.CounterVec
}

var _ auth.Listener = (*Collector)(nil)

// NewCollector registers the counters with reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxsession",
			Name:      "auth_events_total",
			Help:      "Credential lifecycle events by type.",
		}, []string{"event"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "boxsession",
			Name:      "auth_failures_total",
			Help:      "Authentication failures by classified kind.",
		}, []string{"kind", "fatal"}),
	}
	for _, col := range []prometheus.Collector{c.events, c.failures} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) OnAuthCreated(*auth.AuthInfo) {
	c.events.WithLabelValues(EventCreated).Inc()
}

func (c *Collector) OnRefreshed(*auth.AuthInfo) {
	c.events.WithLabelValues(EventRefreshed).Inc()
}

func (c *Collector) OnAuthFailure(_ *auth.AuthInfo, err error) {
	c.events.WithLabelValues(EventFailure).Inc()
	c.failures.WithLabelValues(auth.KindOf(err).String(), strconv.FormatBool(auth.IsFatal(err))).Inc()
}

func (c *Collector) OnLoggedOut(*auth.AuthInfo, error) {
	c.events.WithLabelValues(EventLoggedOut).Inc()
}
