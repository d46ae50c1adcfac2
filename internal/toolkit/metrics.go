package toolkit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTasksDispatched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fest",
		Name:      "toolkit_tasks_dispatched_total",
		Help:      "Tasks submitted to a toolkit dispatch loop.",
	})
	metricEventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fest",
		Name:      "toolkit_events_delivered_total",
		Help:      "Events delivered to toolkit event listeners, by event kind.",
	}, []string{"kind"})
)

func recordTaskDispatched() {
	metricTasksDispatched.Inc()
}

func recordEventDelivered(kind EventKind) {
	metricEventsDelivered.WithLabelValues(kind.String()).Inc()
}
