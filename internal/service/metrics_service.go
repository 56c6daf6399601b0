package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fgc-kenya/admissions-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec
	otpIssued       prometheus.Counter
	otpLockouts     prometheus.Counter
	transitions     *prometheus.CounterVec
	mailDispatch    *prometheus.CounterVec
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	loginTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logins_total",
		Help: "Total login attempts by outcome",
	}, []string{"outcome"})

	otpIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_codes_issued_total",
		Help: "Total one-time passcodes issued",
	})

	otpLockouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "otp_lockouts_total",
		Help: "Total accounts locked after exhausted OTP attempts",
	})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "application_transitions_total",
		Help: "Total application status transitions by target status",
	}, []string{"status"})

	mailDispatch := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mail_dispatch_total",
		Help: "Total outbound mail deliveries by outcome",
	}, []string{"outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, loginTotal, otpIssued, otpLockouts, transitions, mailDispatch, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		loginTotal:      loginTotal,
		otpIssued:       otpIssued,
		otpLockouts:     otpLockouts,
		transitions:     transitions,
		mailDispatch:    mailDispatch,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveLogin counts a login attempt.
func (m *MetricsService) ObserveLogin(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.loginTotal.WithLabelValues(outcome).Inc()
}

// ObserveOTPIssued counts an issued passcode.
func (m *MetricsService) ObserveOTPIssued() {
	if m == nil {
		return
	}
	m.otpIssued.Inc()
}

// ObserveOTPLockout counts an account lockout.
func (m *MetricsService) ObserveOTPLockout() {
	if m == nil {
		return
	}
	m.otpLockouts.Inc()
}

// ObserveTransition counts a status transition by target status.
func (m *MetricsService) ObserveTransition(status models.ApplicationStatus) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(status)).Inc()
}

// ObserveMailDispatch counts a mail delivery attempt.
func (m *MetricsService) ObserveMailDispatch(success bool) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.mailDispatch.WithLabelValues(outcome).Inc()
}
