// Package telemetry exposes live session activity as Prometheus metrics.
package telemetry

import (
	"net/http"
	"sync"

	"livelink/core"
	"livelink/events/live"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "livelink"

// Collector counts bus traffic. It uses its own registry so several
// collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	events         *prometheus.CounterVec
	logEntries     *prometheus.CounterVec
	realtimeInputs *prometheus.CounterVec
	closes         *prometheus.CounterVec
	audioBytes     prometheus.Counter
	sessionOpen    prometheus.Gauge

	mu   sync.Mutex
	bus  *core.EventBus
	subs []core.Subscription
}

func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Session events published, by event id.",
		}, []string{"event"}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Protocol log entries, by entry type.",
		}, []string{"type"}),
		realtimeInputs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_input_batches_total",
			Help:      "Realtime input batches sent, by media label.",
		}, []string{"media"}),
		closes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Connection closes, by initiator.",
		}, []string{"initiator"}),
		audioBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_received_bytes_total",
			Help:      "Decoded model audio bytes received.",
		}),
		sessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_open",
			Help:      "1 while a session transport is open.",
		}),
	}
	c.registry.MustRegister(c.events, c.logEntries, c.realtimeInputs, c.closes, c.audioBytes, c.sessionOpen)
	return c
}

// Bind subscribes the collector to every session event on bus.
func (c *Collector) Bind(bus *core.EventBus) {
	c.Unbind()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.bus = bus
	for _, id := range live.EventIDs {
		c.subs = append(c.subs, bus.On(id, c.observe))
	}
}

func (c *Collector) Unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		c.bus.Off(sub)
	}
	c.subs = nil
}

func (c *Collector) observe(ev core.IEvent) {
	c.events.WithLabelValues(ev.GetId()).Inc()

	switch e := ev.(type) {
	case *live.OpenEvent:
		c.sessionOpen.Set(1)
	case *live.CloseEvent:
		c.sessionOpen.Set(0)
		c.closes.WithLabelValues(e.Info.Initiator).Inc()
	case *live.AudioEvent:
		c.audioBytes.Add(float64(len(e.Data)))
	case *live.LogEvent:
		c.logEntries.WithLabelValues(e.Entry.Type).Inc()
		if e.Entry.Type == "client.realtimeInput" {
			if label, ok := e.Entry.Message.(string); ok {
				c.realtimeInputs.WithLabelValues(label).Inc()
			}
		}
	}
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
