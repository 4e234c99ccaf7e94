// Package metrics exports scheduler activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/me/uthreads/pkg/model"
)

// Collector is a scheduler observer that updates Prometheus metrics.
type Collector struct {
	switches   *prometheus.CounterVec
	spawned    prometheus.Counter
	terminated prometheus.Counter
	mutexWaits prometheus.Counter
	live       prometheus.Gauge
	quantums   prometheus.Gauge
}

// New registers the uthreads metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		switches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "uthreads_context_switches_total",
			Help: "Context switches by reason",
		}, []string{"reason"}),
		spawned: f.NewCounter(prometheus.CounterOpts{
			Name: "uthreads_spawned_total",
			Help: "Threads spawned",
		}),
		terminated: f.NewCounter(prometheus.CounterOpts{
			Name: "uthreads_terminated_total",
			Help: "Threads terminated",
		}),
		mutexWaits: f.NewCounter(prometheus.CounterOpts{
			Name: "uthreads_mutex_waits_total",
			Help: "Mutex lock attempts that had to wait",
		}),
		live: f.NewGauge(prometheus.GaugeOpts{
			Name: "uthreads_live_threads",
			Help: "Live threads, thread 0 included",
		}),
		quantums: f.NewGauge(prometheus.GaugeOpts{
			Name: "uthreads_total_quantums",
			Help: "Quanta started since initialization",
		}),
	}
}

// Observe implements scheduler.Observer.
func (c *Collector) Observe(ev model.Event) {
	c.quantums.Set(float64(ev.Total))
	switch ev.Kind {
	case model.EventSwitch:
		c.switches.WithLabelValues(string(ev.Reason)).Inc()
	case model.EventSpawn:
		c.spawned.Inc()
		c.live.Inc()
	case model.EventTerminate:
		c.terminated.Inc()
		c.live.Dec()
	case model.EventLockWait:
		c.mutexWaits.Inc()
	case model.EventShutdown:
		c.live.Set(0)
	}
}

// Reset sets the live-thread gauge for a new scheduler, which starts with
// thread 0.
func (c *Collector) Reset() {
	c.live.Set(1)
	c.quantums.Set(1)
}
