// Package metrics exposes Prometheus counters for seeks, decodes and the
// remote channel. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the player's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	seeksTotal      *prometheus.CounterVec
	seekSeconds     prometheus.Histogram
	coalescedTotal  prometheus.Counter
	supersededTotal prometheus.Counter
	framesPresented prometheus.Counter
	framesDecoded   *prometheus.CounterVec
	loadsTotal      *prometheus.CounterVec
	remoteMessages  *prometheus.CounterVec
	malformedTotal  prometheus.Counter
	reconnectsTotal prometheus.Counter
	connectionState prometheus.Gauge
	currentFrame    prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		seeksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framecue_seeks_total",
			Help: "Seek and step requests executed against the media source, by result",
		}, []string{"result"}),
		seekSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "framecue_seek_duration_seconds",
			Help:    "Time spent decoding a requested frame",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		coalescedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framecue_scrubs_coalesced_total",
			Help: "Scrub requests overwritten in the pending slot before being decoded",
		}),
		supersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framecue_results_superseded_total",
			Help: "Decode results discarded because a newer request was displayed",
		}),
		framesPresented: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framecue_frames_presented_total",
			Help: "Frames handed to the display surface",
		}),
		framesDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framecue_frames_decoded_total",
			Help: "Pictures produced by a decoding backend, including those skipped while seeking",
		}, []string{"backend"}),
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framecue_loads_total",
			Help: "Video loads, by result",
		}, []string{"result"}),
		remoteMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "framecue_remote_messages_total",
			Help: "Messages received on the remote timecode channel, by type",
		}, []string{"type"}),
		malformedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framecue_remote_malformed_total",
			Help: "Remote messages dropped as malformed",
		}),
		reconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "framecue_remote_reconnects_total",
			Help: "Reconnect attempts of the remote timecode channel",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "framecue_remote_connection_state",
			Help: "Remote channel state (0 disconnected, 1 connecting, 2 connected, 3 registered, 4 reconnecting, 5 refused, 6 error)",
		}),
		currentFrame: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "framecue_current_frame",
			Help: "Frame number currently displayed",
		}),
	}

	registry.MustRegister(
		m.seeksTotal,
		m.seekSeconds,
		m.coalescedTotal,
		m.supersededTotal,
		m.framesPresented,
		m.framesDecoded,
		m.loadsTotal,
		m.remoteMessages,
		m.malformedTotal,
		m.reconnectsTotal,
		m.connectionState,
		m.currentFrame,
	)
	return m
}

// ObserveSeek records one executed seek.
func (m *Metrics) ObserveSeek(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.seeksTotal.WithLabelValues(result).Inc()
	m.seekSeconds.Observe(d.Seconds())
}

// IncCoalesced counts a scrub overwritten before it was decoded.
func (m *Metrics) IncCoalesced() {
	if m == nil {
		return
	}
	m.coalescedTotal.Inc()
}

// IncSuperseded counts a discarded decode result.
func (m *Metrics) IncSuperseded() {
	if m == nil {
		return
	}
	m.supersededTotal.Inc()
}

// FramePresented counts a displayed frame and updates the frame gauge.
func (m *Metrics) FramePresented(frame int) {
	if m == nil {
		return
	}
	m.framesPresented.Inc()
	m.currentFrame.Set(float64(frame))
}

// IncDecoded counts one picture produced by backend.
func (m *Metrics) IncDecoded(backend string) {
	if m == nil {
		return
	}
	m.framesDecoded.WithLabelValues(backend).Inc()
}

// IncLoad counts a load attempt.
func (m *Metrics) IncLoad(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.loadsTotal.WithLabelValues(result).Inc()
}

// IncRemoteMessage counts a received message by type.
func (m *Metrics) IncRemoteMessage(msgType string) {
	if m == nil {
		return
	}
	m.remoteMessages.WithLabelValues(msgType).Inc()
}

// IncMalformed counts a dropped remote message.
func (m *Metrics) IncMalformed() {
	if m == nil {
		return
	}
	m.malformedTotal.Inc()
}

// IncReconnects counts a reconnect attempt.
func (m *Metrics) IncReconnects() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}

// SetConnectionState records the remote channel state.
func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
