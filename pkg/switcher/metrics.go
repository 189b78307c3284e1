package switcher

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine activity. A nil *Metrics records nothing.
type Metrics struct {
	Switches        *prometheus.CounterVec
	MovedItems      prometheus.Counter
	Reloads         prometheus.Counter
	ReconcileEvents *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Switches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barswitch_switches_total",
			Help: "Collection switches by result (ok, noop, error).",
		}, []string{"result"}),
		MovedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barswitch_moved_items_total",
			Help: "Items moved between the active slot and storage folders.",
		}),
		Reloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barswitch_reloads_total",
			Help: "Registry reloads from the bookmark store.",
		}),
		ReconcileEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barswitch_reconcile_actions_total",
			Help: "Reconciler actions taken in response to store notifications.",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.Switches, m.MovedItems, m.Reloads, m.ReconcileEvents)
	}
	return m
}

func (m *Metrics) switched(result string) {
	if m != nil {
		m.Switches.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) moved() {
	if m != nil {
		m.MovedItems.Inc()
	}
}

func (m *Metrics) reloaded() {
	if m != nil {
		m.Reloads.Inc()
	}
}

func (m *Metrics) reconciled(action string) {
	if m != nil {
		m.ReconcileEvents.WithLabelValues(action).Inc()
	}
}
