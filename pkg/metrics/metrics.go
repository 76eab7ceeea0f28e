// Package metrics provides Prometheus metrics for the chat archiver and its status server.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/lewisedginton/chatwatch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	subsystem = "chatwatch"
)

// Coordinate match kinds.
const (
	KindXYZ = "xyz"
	KindXZ  = "xz"
)

// Coordinate match outcomes.
const (
	OutcomeLogged     = "logged"
	OutcomeSuppressed = "suppressed"
)

// Metrics holds a private registry plus the archive and HTTP collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	TotalHTTPRequestsCounter prometheus.Counter
	HTTPDurationHistogram    prometheus.Histogram
	httpMu                   sync.Mutex
	HTTPRequestsCounters     map[int]prometheus.Counter

	LinesCounter          prometheus.Counter
	CoordsCounter         *prometheus.CounterVec
	ConversationsCounter  *prometheus.CounterVec
	SessionsOpenedCounter prometheus.Counter
	SessionsClosedCounter *prometheus.CounterVec
	RolloversCounter      prometheus.Counter
	WriteFailuresCounter  *prometheus.CounterVec
	DebugDroppedCounter   prometheus.Counter
	OpenSessionsGauge     prometheus.Gauge

	customMetrics []prometheus.Collector

	server *http.Server
	errCh  chan error
	log    logger.Logger
}

// NewMetrics creates a Metrics instance with the requested collector groups registered.
func NewMetrics(httpCounters, archiveCounters bool, l logger.Logger) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		log: l,
	}
	if httpCounters {
		m.TotalHTTPRequestsCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "total_http_requests",
			Help:      "Total HTTP requests",
		})
		m.HTTPDurationHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1.0, 3.0},
		})
		m.HTTPRequestsCounters = make(map[int]prometheus.Counter)
		m.reg.MustRegister(m.TotalHTTPRequestsCounter, m.HTTPDurationHistogram)
	}
	if archiveCounters {
		m.LinesCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "lines_total",
			Help:      "Chat lines delivered to the engine",
		})
		m.CoordsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "coordinates_total",
			Help:      "Coordinate matches by kind and outcome",
		}, []string{"kind", "outcome"})
		m.ConversationsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "private_messages_total",
			Help:      "Archived private messages by direction",
		}, []string{"direction"})
		m.SessionsOpenedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "sessions_opened_total",
			Help:      "Conversation sessions opened",
		})
		m.SessionsClosedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "sessions_closed_total",
			Help:      "Conversation sessions closed by reason",
		}, []string{"reason"})
		m.RolloversCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "archive_rollovers_total",
			Help:      "Archive files rolled over after reaching the message cap",
		})
		m.WriteFailuresCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "write_failures_total",
			Help:      "Failed appends by output",
		}, []string{"output"})
		m.DebugDroppedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      "debug_entries_dropped_total",
			Help:      "Diagnostic entries discarded because the queue was full",
		})
		m.OpenSessionsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Subsystem: subsystem,
			Name:      "open_sessions",
			Help:      "Conversation sessions currently open",
		})
		m.reg.MustRegister(
			m.LinesCounter, m.CoordsCounter, m.ConversationsCounter,
			m.SessionsOpenedCounter, m.SessionsClosedCounter, m.RolloversCounter,
			m.WriteFailuresCounter, m.DebugDroppedCounter, m.OpenSessionsGauge,
		)
	}
	return m
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Listen serves /metrics on addr in the background. Errors() reports when it stops.
func (m *Metrics) Listen(addr string) {
	m.log.Info("Starting metrics listener", logger.StringField("addr", addr))
	mux := http.NewServeMux()
	mux.Handle("/", http.NotFoundHandler())
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	m.errCh = make(chan error, 1)
	go func() {
		m.errCh <- m.server.ListenAndServe()
	}()
}

// Errors reports the listener's terminal error. Nil until Listen is called.
func (m *Metrics) Errors() <-chan error {
	return m.errCh
}

// Shutdown stops the standalone listener if one is running.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.server == nil {
		return nil
	}
	m.log.Info("Stopping metrics listener")
	if err := m.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// AddCustomMetric registers a custom Prometheus collector.
func (m *Metrics) AddCustomMetric(c prometheus.Collector) {
	m.customMetrics = append(m.customMetrics, c)
	m.reg.MustRegister(c)
}

// IncrementHTTPResponseCounter increments the counter for the given HTTP status code.
func (m *Metrics) IncrementHTTPResponseCounter(code int) {
	if m == nil || m.HTTPRequestsCounters == nil {
		return
	}
	m.httpMu.Lock()
	defer m.httpMu.Unlock()
	c, ok := m.HTTPRequestsCounters[code]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: subsystem,
			Name:      fmt.Sprintf("total_%d_http_responses", code),
			Help:      fmt.Sprintf("Total %s HTTP responses returned", http.StatusText(code)),
		})
		m.reg.MustRegister(c)
		m.HTTPRequestsCounters[code] = c
	}
	c.Inc()
}

// HTTPMiddleware returns a chi-compatible middleware that tracks HTTP metrics.
func (m *Metrics) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil || m.TotalHTTPRequestsCounter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.TotalHTTPRequestsCounter.Inc()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			m.HTTPDurationHistogram.Observe(time.Since(start).Seconds())
			m.IncrementHTTPResponseCounter(rw.statusCode)
		})
	}
}

func (m *Metrics) archiveEnabled() bool {
	return m != nil && m.LinesCounter != nil
}

// LineSeen counts one delivered chat line.
func (m *Metrics) LineSeen() {
	if m.archiveEnabled() {
		m.LinesCounter.Inc()
	}
}

// CoordinateMatched counts a coordinate match of kind (KindXYZ/KindXZ).
func (m *Metrics) CoordinateMatched(kind string, suppressed bool) {
	if !m.archiveEnabled() {
		return
	}
	outcome := OutcomeLogged
	if suppressed {
		outcome = OutcomeSuppressed
	}
	m.CoordsCounter.WithLabelValues(kind, outcome).Inc()
}

// MessageArchived counts an archived private message; direction is "in" or "out".
func (m *Metrics) MessageArchived(direction string) {
	if m.archiveEnabled() {
		m.ConversationsCounter.WithLabelValues(direction).Inc()
	}
}

// SessionOpened counts a newly opened session.
func (m *Metrics) SessionOpened() {
	if m.archiveEnabled() {
		m.SessionsOpenedCounter.Inc()
		m.OpenSessionsGauge.Inc()
	}
}

// SessionClosed counts a closed session by close reason.
func (m *Metrics) SessionClosed(reason string) {
	if m.archiveEnabled() {
		m.SessionsClosedCounter.WithLabelValues(reason).Inc()
		m.OpenSessionsGauge.Dec()
	}
}

// Rollover counts one archive file rollover.
func (m *Metrics) Rollover() {
	if m.archiveEnabled() {
		m.RolloversCounter.Inc()
	}
}

// WriteFailed counts a failed append to output ("coords", "archive", "debug", "mirror").
func (m *Metrics) WriteFailed(output string) {
	if m.archiveEnabled() {
		m.WriteFailuresCounter.WithLabelValues(output).Inc()
	}
}

// DebugDropped counts diagnostic entries evicted from a full queue.
func (m *Metrics) DebugDropped(n int) {
	if m.archiveEnabled() && n > 0 {
		m.DebugDroppedCounter.Add(float64(n))
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
