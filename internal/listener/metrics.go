package listener

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricEventsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fest",
		Name:      "listener_events_deferred_total",
		Help:      "Events received off the dispatch goroutine and queued for it.",
	})
	metricWeakDisposed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fest",
		Name:      "listener_weak_disposed_total",
		Help:      "Weak listeners that unregistered themselves after their target was collected.",
	})
)

func recordDeferred() {
	metricEventsDeferred.Inc()
}

func recordWeakDisposed() {
	metricWeakDisposed.Inc()
}
