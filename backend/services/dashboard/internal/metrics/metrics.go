package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "parkdash"

// Metrics groups the dashboard collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	eventsApplied   *prometheus.CounterVec
	streamState     prometheus.Gauge
	reconnects      prometheus.Counter
	rosterRefreshes *prometheus.CounterVec
	rosterCoalesced prometheus.Counter
	payments        *prometheus.CounterVec
	occupancy       prometheus.Gauge
	revenue         prometheus.Gauge
	locked          prometheus.Gauge
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "Stream events applied to the facility store, by type and outcome.",
		}, []string{"type", "outcome"}),
		streamState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_state",
			Help:      "Event stream connection state (0 disconnected, 1 connecting, 2 connected).",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Reconnect attempts scheduled after an unexpected stream close.",
		}),
		rosterRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_refreshes_total",
			Help:      "Roster snapshot fetches, by result.",
		}, []string{"result"}),
		rosterCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "roster_triggers_coalesced_total",
			Help:      "Refresh triggers folded into an already pending follow-up.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transitions_total",
			Help:      "Payment request phase transitions.",
		}, []string{"phase"}),
		occupancy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facility_occupancy",
			Help:      "Vehicles currently parked according to the stream tally.",
		}),
		revenue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facility_revenue",
			Help:      "Revenue observed in this session, in major currency units.",
		}),
		locked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "facility_locked",
			Help:      "1 while the emergency lock is active.",
		}),
	}
	reg.MustRegister(
		m.eventsApplied,
		m.streamState,
		m.reconnects,
		m.rosterRefreshes,
		m.rosterCoalesced,
		m.payments,
		m.occupancy,
		m.revenue,
		m.locked,
	)
	return m
}

func (m *Metrics) ObserveEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.eventsApplied.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) SetStreamState(state int) {
	if m == nil {
		return
	}
	m.streamState.Set(float64(state))
}

func (m *Metrics) IncReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.rosterRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.rosterCoalesced.Inc()
}

func (m *Metrics) ObservePayment(phase string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(phase).Inc()
}

// SetAggregate publishes the facility summary gauges.
func (m *Metrics) SetAggregate(occupancy int, revenue float64, locked bool) {
	if m == nil {
		return
	}
	m.occupancy.Set(float64(occupancy))
	m.revenue.Set(revenue)
	if locked {
		m.locked.Set(1)
	} else {
		m.locked.Set(0)
	}
}
