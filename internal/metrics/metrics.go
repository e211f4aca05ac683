// Package metrics exposes Prometheus counters and gauges for a session.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons used as label values on messages_dropped_total.
const (
	ReasonDecode     = "decode"
	ReasonUnknownTag = "unknown_tag"
	ReasonFilter     = "filter"
	ReasonUnresolved = "unresolved"
	ReasonComponent  = "component_index"
	ReasonAuthority  = "authority"
	ReasonNoHandler  = "no_handler"
	ReasonPanic      = "panic"
	ReasonDeadPeer   = "dead_peer"
	ReasonBudget     = "budget"
)

// Config configures the collectors.
type Config struct {
	Namespace   string
	Subsystem   string
	ConstLabels prometheus.Labels
	Registry    prometheus.Registerer
}

// Option configures Config.
type Option func(*Config)

func WithNamespace(ns string) Option {
	return func(c *Config) { c.Namespace = ns }
}

func WithSubsystem(sub string) Option {
	return func(c *Config) { c.Subsystem = sub }
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

// WithRegistry sets the registerer; tests pass a fresh prometheus.NewRegistry().
func WithRegistry(r prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = r }
}

func defaultConfig() Config {
	return Config{
		Namespace: "netsync",
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the session collectors.
type Metrics struct {
	received  *prometheus.CounterVec
	sent      *prometheus.CounterVec
	dropped   *prometheus.CounterVec
	objects   prometheus.Gauge
	peers     prometheus.Gauge
	buffered  prometheus.Gauge
	tickTimes prometheus.Histogram
}

func New(opts ...Option) *Metrics {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	factory := promauto.With(cfg.Registry)
	return &Metrics{
		received: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "messages_received_total",
			Help: "Inbound messages decoded, by message name",
		}, []string{"tag"}),
		sent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "messages_sent_total",
			Help: "Outbound messages handed to the transport, by message name",
		}, []string{"tag"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "messages_dropped_total",
			Help: "Inbound messages dropped before reaching a handler, by reason",
		}, []string{"reason"}),
		objects: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "objects_registered",
			Help: "Live networked objects in the registry",
		}),
		peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "peers_connected",
			Help: "Connected peers",
		}),
		buffered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name: "buffered_updates",
			Help: "Object updates held while a scene loads",
		}),
		tickTimes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace, Subsystem: cfg.Subsystem, ConstLabels: cfg.ConstLabels,
			Name:    "tick_duration_seconds",
			Help:    "Wall time of one session tick",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
	}
}

func (m *Metrics) Received(tag string) {
	if m != nil {
		m.received.WithLabelValues(tag).Inc()
	}
}

func (m *Metrics) Sent(tag string) {
	if m != nil {
		m.sent.WithLabelValues(tag).Inc()
	}
}

func (m *Metrics) Dropped(reason string) {
	if m != nil {
		m.dropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SetObjects(n int) {
	if m != nil {
		m.objects.Set(float64(n))
	}
}

func (m *Metrics) SetPeers(n int) {
	if m != nil {
		m.peers.Set(float64(n))
	}
}

func (m *Metrics) SetBuffered(n int) {
	if m != nil {
		m.buffered.Set(float64(n))
	}
}

func (m *Metrics) ObserveTick(d time.Duration) {
	if m != nil {
		m.tickTimes.Observe(d.Seconds())
	}
}

// Serve exposes /metrics on addr until the server is closed. It returns the
// server so callers can shut it down.
func Serve(addr string, gatherer prometheus.Gatherer, errCh chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errCh != nil {
			errCh <- err
		}
	}()
	return srv
}
