// Package metrics exposes run and sandbox counters for Prometheus
// scraping. Everything lives in a private registry so embedding the
// engine never pollutes a host program's default registry.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/windoliver/ThreatWeaver/pkg/duration"
	"github.com/windoliver/ThreatWeaver/pkg/finding"
)

// Collector holds every metric the orchestrator emits.
type Collector struct {
	registry *prometheus.Registry

	stepsTotal       *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	sandboxTotal     *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	activeSandboxes  prometheus.Gauge
	pendingApprovals prometheus.Gauge

	server *http.Server
}

// NewCollector creates and registers all metrics in a fresh registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatweaver_steps_total",
			Help: "Workflow steps finished, by tool and final status",
		},
		[]string{"tool", "status"},
	)
	c.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatweaver_runs_total",
			Help: "Runs finished, by terminal state",
		},
		[]string{"state"},
	)
	c.sandboxTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "threatweaver_sandbox_executions_total",
			Help: "Sandbox invocations, by failure classification (ok when none)",
		},
		[]string{"classification"},
	)
	c.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "threatweaver_step_duration_seconds",
			Help:    "Step wall-clock duration distribution",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"tool"},
	)
	c.activeSandboxes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threatweaver_active_sandboxes",
		Help: "Sandbox invocations currently in flight",
	})
	c.pendingApprovals = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "threatweaver_pending_approvals",
		Help: "Approval requests currently pending",
	})

	c.registry.MustRegister(
		c.stepsTotal, c.runsTotal, c.sandboxTotal,
		c.stepDuration, c.activeSandboxes, c.pendingApprovals,
	)
	return c
}

// StepFinished records one finished step.
func (c *Collector) StepFinished(tool, status string, d time.Duration) {
	c.stepsTotal.WithLabelValues(tool, status).Inc()
	c.stepDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// RunFinished records one terminal run state.
func (c *Collector) RunFinished(state string) {
	c.runsTotal.WithLabelValues(state).Inc()
}

// SandboxStarted increments the in-flight invocation gauge.
func (c *Collector) SandboxStarted() {
	c.activeSandboxes.Inc()
}

// SandboxFinished records one finished invocation and decrements the
// in-flight gauge. The executor pairs every Finished with a Started.
func (c *Collector) SandboxFinished(class finding.Classification) {
	label := string(class)
	if class == finding.ClassNone {
		label = "ok"
	}
	c.sandboxTotal.WithLabelValues(label).Inc()
	c.activeSandboxes.Dec()
}

// SetPendingApprovals records the current pending-approval count.
func (c *Collector) SetPendingApprovals(n int) {
	c.pendingApprovals.Set(float64(n))
}

// Handler returns the scrape handler for embedding in an existing mux.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve starts a scrape endpoint at addr (e.g. ":9090") serving
// /metrics. It returns immediately; Close shuts the server down.
func (c *Collector) Serve(addr string) error {
	if c.server != nil {
		return fmt.Errorf("metrics: server already running")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	c.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  duration.MetricsReadTimeout,
		WriteTimeout: duration.MetricsWriteTimeout,
	}
	go func() {
		_ = c.server.ListenAndServe()
	}()
	return nil
}

// Close stops the scrape endpoint if one is running.
func (c *Collector) Close(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	err := c.server.Shutdown(ctx)
	c.server = nil
	return err
}
