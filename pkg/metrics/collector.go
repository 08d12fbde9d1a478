// Package metrics Prometheus метрики попыток звонков.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/callprobe/pkg/logging"
)

// Collector собирает метрики прогона.
//
// Выключенный или nil Collector безопасно принимает все вызовы.
type Collector struct {
	registry *prometheus.Registry

	attemptsTotal   *prometheus.CounterVec
	attemptsActive  prometheus.Gauge
	attemptDuration prometheus.Histogram
	symmetryRatio   prometheus.Histogram
	attachFailures  *prometheus.CounterVec
	finalStatus     *prometheus.CounterVec

	enabled bool
}

// Config конфигурация метрик
type Config struct {
	Enabled   bool
	Namespace string
	Subsystem string
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Namespace: "callprobe",
		Subsystem: "attempt",
	}
}

// NewCollector создает сборщик с собственным реестром
func NewCollector(cfg Config) *Collector {
	if !cfg.Enabled {
		return &Collector{}
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	c := &Collector{registry: reg, enabled: true}

	c.attemptsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "total",
		Help:      "Completed call attempts by verdict and reason",
	}, []string{"verdict", "reason"})

	c.attemptsActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "active",
		Help:      "Call attempts in progress",
	})

	c.attemptDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "duration_seconds",
		Help:      "Wall time of a call attempt including teardown",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	})

	c.symmetryRatio = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "packet_symmetry_ratio",
		Help:      "min/max packet count ratio of the audited stream",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.75, 0.8, 0.85, 0.9, 0.95, 0.99, 1},
	})

	c.attachFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "media_attach_failures_total",
		Help:      "Failed playback or recording attachments",
	}, []string{"direction"})

	c.finalStatus = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "final_status_total",
		Help:      "Last SIP status code class per attempt",
	}, []string{"class"})

	return c
}

// AttemptStarted отмечает начало попытки и возвращает функцию завершения
func (c *Collector) AttemptStarted() func() {
	if c == nil || !c.enabled {
		return func() {}
	}
	start := time.Now()
	c.attemptsActive.Inc()
	return func() {
		c.attemptsActive.Dec()
		c.attemptDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordOutcome учитывает итог попытки. ratio < 0 означает отсутствие значения.
func (c *Collector) RecordOutcome(verdict, reason string, ratio float64, statusCode int) {
	if c == nil || !c.enabled {
		return
	}
	c.attemptsTotal.WithLabelValues(verdict, reason).Inc()
	if ratio >= 0 {
		c.symmetryRatio.Observe(ratio)
	}
	c.finalStatus.WithLabelValues(statusClass(statusCode)).Inc()
}

// MediaAttachFailed учитывает ошибку подключения медиа
func (c *Collector) MediaAttachFailed(direction string) {
	if c == nil || !c.enabled {
		return
	}
	c.attachFailures.WithLabelValues(direction).Inc()
}

// Registry реестр метрик, nil для выключенного сборщика
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler HTTP обработчик экспорта метрик
func (c *Collector) Handler() http.Handler {
	if c == nil || !c.enabled {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve поднимает HTTP endpoint /metrics до отмены ctx
func (c *Collector) Serve(ctx context.Context, addr string, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info(ctx, "metrics endpoint", logging.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func statusClass(code int) string {
	if code <= 0 {
		return "none"
	}
	return strconv.Itoa(code/100) + "xx"
}
