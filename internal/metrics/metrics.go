// Package metrics define las métricas Prometheus del bridge. Viven en un
// paquete propio para evitar ciclos de import entre la capa HTTP y el
// coordinador de sesión.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once
	registerErr  error

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	// Dominio
	loginsTotal         *prometheus.CounterVec
	silentRefreshTotal  *prometheus.CounterVec
	escalationsTotal    *prometheus.CounterVec
	validationFailTotal *prometheus.CounterVec
	gateOutcomesTotal   *prometheus.CounterVec
)

// Register inicializa y registra las métricas. Devuelve el handler para
// /metrics. Idempotente: los duplicados se ignoran.
func Register(reg prometheus.Registerer) (http.Handler, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		loginsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Logins por provider y resultado",
		}, []string{"provider", "result"}) // result: ok|error|config

		silentRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_silent_refresh_total",
			Help: "Renovaciones silenciosas por provider y resultado",
		}, []string{"provider", "result"})

		escalationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_interactive_escalations_total",
			Help: "Escalaciones de silencioso a interactivo",
		}, []string{"provider"})

		validationFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_backend_validation_failures_total",
			Help: "Handshakes de validación backend fallidos (no fatales)",
		}, []string{"provider"})

		gateOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "route_gate_outcomes_total",
			Help: "Decisiones del gate de rutas protegidas",
		}, []string{"outcome"}) // outcome: pass|loading|redirect

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			loginsTotal, silentRefreshTotal, escalationsTotal,
			validationFailTotal, gateOutcomesTotal,
		} {
			if err := registerCollector(reg, c); err != nil {
				registerErr = err
				return
			}
		}
	})
	if registerErr != nil {
		return nil, registerErr
	}
	return promhttp.Handler(), nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// WithHTTP instrumenta requests con contadores, latencia e inflight.
func WithHTTP(next http.Handler) http.Handler {
	if next == nil {
		return nil
	}
	if httpRequestsTotal == nil || httpRequestDuration == nil || httpInflight == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.ToUpper(r.Method)
		pathLabel := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, pathLabel).Inc()
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, pathLabel).Dec()
			httpRequestDuration.WithLabelValues(method, pathLabel).Observe(time.Since(start).Seconds())

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, pathLabel, strconv.Itoa(status)).Inc()
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// normalizePath colapsa segmentos dinámicos (states, códigos) para acotar
// la cardinalidad de labels.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" || clean == "/" {
		return "/"
	}
	segments := strings.Split(strings.Trim(clean, "/"), "/")
	out := segments[:0]
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if len(seg) > 24 && !strings.ContainsAny(seg, ".") {
			out = append(out, ":param")
			continue
		}
		out = append(out, seg)
	}
	return "/" + strings.Join(out, "/")
}

// RecordLogin cuenta un intento de login cerrado.
func RecordLogin(provider, result string) {
	if loginsTotal != nil {
		loginsTotal.WithLabelValues(provider, result).Inc()
	}
}

// RecordSilentRefresh cuenta una renovación silenciosa.
func RecordSilentRefresh(provider, result string) {
	if silentRefreshTotal != nil {
		silentRefreshTotal.WithLabelValues(provider, result).Inc()
	}
}

// RecordEscalation cuenta una escalación a interactivo.
func RecordEscalation(provider string) {
	if escalationsTotal != nil {
		escalationsTotal.WithLabelValues(provider).Inc()
	}
}

// RecordValidationFailure cuenta un handshake de validación fallido.
func RecordValidationFailure(provider string) {
	if validationFailTotal != nil {
		validationFailTotal.WithLabelValues(provider).Inc()
	}
}

// RecordGateOutcome cuenta una decisión del gate de rutas.
func RecordGateOutcome(outcome string) {
	if gateOutcomesTotal != nil {
		gateOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}
