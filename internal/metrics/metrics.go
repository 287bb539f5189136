// Package metrics owns the Prometheus collectors of the service. Collectors
// stay nil until InitMetrics runs, and every recorder tolerates that.
package metrics

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	storeLatency        *prometheus.HistogramVec
	cacheLookups        *prometheus.CounterVec
	wsConnections       prometheus.Gauge
	dbPoolOpen          prometheus.Gauge
	dbPoolMax           prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseLabels parses "k=v,k2=v2" into constant labels. Values may reference
// environment variables as ${VAR}.
func ParseLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initOnce sync.Once

// InitMetrics registers all collectors. Only the first call has an effect.
func InitMetrics(constLabels prometheus.Labels) {
	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
		f := promauto.With(reg)

		httpRequestsTotal = f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"})

		httpRequestDuration = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		storeLatency = f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parley_store_latency_seconds",
			Help:    "Store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"})

		cacheLookups = f.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_cache_lookups_total",
			Help: "Cache lookups by cache and result",
		}, []string{"cache", "result"})

		wsConnections = f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_ws_connections",
			Help: "Open WebSocket connections",
		})

		dbPoolOpen = f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_db_pool_open_connections",
			Help: "Number of open database connections",
		})

		dbPoolMax = f.NewGauge(prometheus.GaugeOpts{
			Name: "parley_db_pool_max_connections",
			Help: "Maximum number of database connections",
		})
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveStore records the latency of a store operation started at start.
// Use as: defer metrics.ObserveStore("op", time.Now()).
func ObserveStore(operation string, start time.Time) {
	if storeLatency == nil {
		return
	}
	storeLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func CacheHit(cache string) {
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(cache, "hit").Inc()
	}
}

func CacheMiss(cache string) {
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(cache, "miss").Inc()
	}
}

func WSConnected() {
	if wsConnections != nil {
		wsConnections.Inc()
	}
}

func WSDisconnected() {
	if wsConnections != nil {
		wsConnections.Dec()
	}
}

// WatchPool samples pool statistics until ctx is done.
func WatchPool(ctx context.Context, pool *pgxpool.Pool, every time.Duration) {
	if dbPoolOpen == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		stat := pool.Stat()
		dbPoolOpen.Set(float64(stat.TotalConns()))
		dbPoolMax.Set(float64(stat.MaxConns()))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is required by the WebSocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// Middleware records request counts and durations per route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
