// Package metrics exposes Prometheus counters for HTTP traffic and the game
// economy. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "idlemine"

type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	operationsTotal   *prometheus.CounterVec
	clockSkewTotal    prometheus.Counter
	diamondsConverted prometheus.Counter
	roundsSettled     prometheus.Counter
	payoutMinorTotal  prometheus.Counter
	residualMinor     prometheus.Gauge
	configVersion     prometheus.Gauge
}

func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	c.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Player operations by outcome code",
		},
		[]string{"operation", "code"},
	)
	c.clockSkewTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "accrual_clock_skew_total",
		Help:      "Machines skipped because now was before last_processed_at",
	})
	c.diamondsConverted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "diamonds_converted_total",
		Help:      "Diamonds above the daily cap converted to fuel",
	})
	c.roundsSettled = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_settled_total",
		Help:      "Settlement rounds closed",
	})
	c.payoutMinorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payout_minor_units_total",
		Help:      "Cash paid out across all rounds, in minor units",
	})
	c.residualMinor = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "round_residual_minor_units",
		Help:      "Residual carried out of the last settled round",
	})
	c.configVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "economy_config_version",
		Help:      "Economy config version active on this instance",
	})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.operationsTotal,
		c.clockSkewTotal,
		c.diamondsConverted,
		c.roundsSettled,
		c.payoutMinorTotal,
		c.residualMinor,
		c.configVersion,
	)
	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by chi route pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func (c *Collector) Operation(operation, code string) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, code).Inc()
}

func (c *Collector) ClockSkew() {
	if c == nil {
		return
	}
	c.clockSkewTotal.Inc()
}

func (c *Collector) DiamondsConverted(amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.diamondsConverted.Add(amount)
}

func (c *Collector) RoundSettled(paidMinor, residualMinor int64) {
	if c == nil {
		return
	}
	c.roundsSettled.Inc()
	c.payoutMinorTotal.Add(float64(paidMinor))
	c.residualMinor.Set(float64(residualMinor))
}

func (c *Collector) ConfigVersion(version int64) {
	if c == nil {
		return
	}
	c.configVersion.Set(float64(version))
}
