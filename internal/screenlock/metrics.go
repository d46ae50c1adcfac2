package screenlock

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fest",
		Name:      "screen_lock_wait_seconds",
		Help:      "Time spent waiting to acquire the screen lock.",
		Buckets:   []float64{.001, .01, .1, 1, 10, 60, 300},
	})
	metricLockHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fest",
		Name:      "screen_lock_held",
		Help:      "1 while a screen lock is held.",
	})
)

func recordAcquire(waited time.Duration) {
	metricLockWait.Observe(waited.Seconds())
	metricLockHeld.Set(1)
}

func recordRelease() {
	metricLockHeld.Set(0)
}
