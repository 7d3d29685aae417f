package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promcollect "github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/pkgindex/internal/logfields"
)

const namespace = "pkgindex"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	reg             *prom.Registry
	stageDuration   *prom.HistogramVec
	runDuration     prom.Histogram
	stageResults    *prom.CounterVec
	runOutcome      *prom.CounterVec
	packageResults  *prom.CounterVec
	conflicts       prom.Counter
	compileCommands prom.Gauge
	targets         prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.once.Do(func() {
		pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual run stages",
			Buckets:   prom.DefBuckets,
		}, []string{"stage"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		})
		pr.stageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"})
		pr.packageResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "package_results_total",
			Help:      "Packages processed per stage by success/failure",
		}, []string{"stage", "result"})
		pr.conflicts = prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "build_output_conflicts_total",
			Help:      "Build outputs renamed because packages produced different files at the same path",
		})
		pr.compileCommands = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "compile_commands",
			Help:      "Entries in the last merged compilation database",
		})
		pr.targets = prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "gn_targets",
			Help:      "Targets in the last merged target graph",
		})
		reg.MustRegister(pr.stageDuration, pr.runDuration, pr.stageResults, pr.runOutcome,
			pr.packageResults, pr.conflicts, pr.compileCommands, pr.targets)
	})
	return pr
}

// Registry returns the registry the metrics are registered with.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	if p == nil {
		return nil
	}
	return p.reg
}

// Handler serves the run metrics together with Go runtime and process
// metrics, which a long-running daemon is expected to expose.
func (p *PrometheusRecorder) Handler() http.Handler {
	for _, c := range []prom.Collector{
		promcollect.NewGoCollector(),
		promcollect.NewProcessCollector(promcollect.ProcessCollectorOpts{}),
	} {
		if err := p.reg.Register(c); err != nil {
			var are prom.AlreadyRegisteredError
			if !errors.As(err, &are) {
				slog.Warn("Cannot register collector", logfields.Error(err))
			}
		}
	}
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil || p.stageResults == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) IncRunOutcome(outcome RunOutcomeLabel) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncPackageResult(stage string, success bool) {
	if p == nil || p.packageResults == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.packageResults.WithLabelValues(stage, res).Inc()
}

func (p *PrometheusRecorder) AddConflicts(n int) {
	if p == nil || p.conflicts == nil {
		return
	}
	p.conflicts.Add(float64(n))
}

func (p *PrometheusRecorder) SetCompileCommands(n int) {
	if p == nil || p.compileCommands == nil {
		return
	}
	p.compileCommands.Set(float64(n))
}

func (p *PrometheusRecorder) SetTargets(n int) {
	if p == nil || p.targets == nil {
		return
	}
	p.targets.Set(float64(n))
}

// WriteTextfile writes the current metrics in the node exporter textfile
// format.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if p == nil || p.reg == nil {
		return nil
	}
	return prom.WriteToTextfile(path, p.reg)
}
