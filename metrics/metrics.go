// Package metrics exposes lottery node instrumentation through go-kit
// metrics backed by Prometheus.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "lottery"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of accepted entries.
	Entries metrics.Counter
	// Players in the current round.
	Players metrics.Gauge
	// Balance the current round would pay out, in wei.
	Balance metrics.Gauge
	// 0 = OPEN, 1 = CALCULATING.
	State metrics.Gauge
	// Randomness requests issued by performUpkeep.
	UpkeepsPerformed metrics.Counter
	// Settled rounds.
	WinnersPicked metrics.Counter
	// Seconds between the randomness request and the settlement.
	FulfillmentLatency metrics.Histogram
	// Keeper check cycles, labelled by outcome.
	KeeperPolls metrics.Counter
	// Randomness deliveries made by the responder, labelled by outcome.
	Fulfillments metrics.Counter
}

// PrometheusMetrics returns Metrics build using Prometheus client library
// and registered with reg (the default registerer when nil). Optionally,
// labels can be provided along with their values ("foo", "fooValue").
//
// Collectors already present in reg are shared rather than registered
// again, so several nodes in one process can report through one registry
// as long as their label values differ.
func PrometheusMetrics(reg stdprometheus.Registerer, namespace string, labelsAndValues ...string) (*Metrics, error) {
	if len(labelsAndValues)%2 != 0 {
		return nil, errors.New("uneven number of labels and values; labels and values should be provided in pairs")
	}
	if reg == nil {
		reg = stdprometheus.DefaultRegisterer
	}
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	b := &builder{reg: reg, namespace: namespace, labels: labels}
	m := &Metrics{
		Entries:          b.counter("entries_total", "Number of accepted lottery entries.").With(labelsAndValues...),
		Players:          b.gauge("players", "Number of players in the current round.").With(labelsAndValues...),
		Balance:          b.gauge("balance_wei", "Prize pool of the current round in wei.").With(labelsAndValues...),
		State:            b.gauge("state", "Lottery state (0 open, 1 calculating).").With(labelsAndValues...),
		UpkeepsPerformed: b.counter("upkeeps_performed_total", "Number of randomness requests issued.").With(labelsAndValues...),
		WinnersPicked:    b.counter("winners_picked_total", "Number of settled rounds.").With(labelsAndValues...),
		FulfillmentLatency: b.histogram("fulfillment_latency_seconds", "Time between the randomness request and settlement.",
			stdprometheus.ExponentialBuckets(0.5, 2, 12)).With(labelsAndValues...),
		KeeperPolls:  b.counter("keeper_polls_total", "Keeper check cycles by outcome.", "outcome").With(labelsAndValues...),
		Fulfillments: b.counter("fulfillments_total", "Randomness deliveries by outcome.", "outcome").With(labelsAndValues...),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder creates vectors under one namespace and keeps the first
// registration error.
type builder struct {
	reg       stdprometheus.Registerer
	namespace string
	labels    []string
	err       error
}

func (b *builder) labelNames(extra []string) []string {
	return append(append([]string{}, b.labels...), extra...)
}

// register adds c to the registry and returns the collector to use: c
// itself, or the equal collector registered earlier.
func (b *builder) register(c stdprometheus.Collector) stdprometheus.Collector {
	err := b.reg.Register(c)
	if err == nil {
		return c
	}
	var are stdprometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector
	}
	if b.err == nil {
		b.err = err
	}
	return c
}

func (b *builder) counter(name, help string, extra ...string) *prometheus.Counter {
	vec := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: b.namespace,
		Subsystem: MetricsSubsystem,
		Name:      name,
		Help:      help,
	}, b.labelNames(extra))
	if existing, ok := b.register(vec).(*stdprometheus.CounterVec); ok {
		vec = existing
	}
	return prometheus.NewCounter(vec)
}

func (b *builder) gauge(name, help string) *prometheus.Gauge {
	vec := stdprometheus.NewGaugeVec(stdprometheus.GaugeOpts{
		Namespace: b.namespace,
		Subsystem: MetricsSubsystem,
		Name:      name,
		Help:      help,
	}, b.labelNames(nil))
	if existing, ok := b.register(vec).(*stdprometheus.GaugeVec); ok {
		vec = existing
	}
	return prometheus.NewGauge(vec)
}

func (b *builder) histogram(name, help string, buckets []float64) *prometheus.Histogram {
	vec := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: b.namespace,
		Subsystem: MetricsSubsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, b.labelNames(nil))
	if existing, ok := b.register(vec).(*stdprometheus.HistogramVec); ok {
		vec = existing
	}
	return prometheus.NewHistogram(vec)
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Entries:            discard.NewCounter(),
		Players:            discard.NewGauge(),
		Balance:            discard.NewGauge(),
		State:              discard.NewGauge(),
		UpkeepsPerformed:   discard.NewCounter(),
		WinnersPicked:      discard.NewCounter(),
		FulfillmentLatency: discard.NewHistogram(),
		KeeperPolls:        discard.NewCounter(),
		Fulfillments:       discard.NewCounter(),
	}
}

// Server serves a Prometheus registry on /metrics.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr and serves g in the background, the default gatherer
// when g is nil.
func Listen(addr string, g stdprometheus.Gatherer) (*Server, error) {
	if g == nil {
		g = stdprometheus.DefaultGatherer
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: ln,
	}
	go s.srv.Serve(ln) //nolint:errcheck
	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
