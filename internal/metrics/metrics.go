package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "inventory"

// Pipeline records applier, alert and verifier activity. A nil *Pipeline is a no-op.
type Pipeline struct {
	applied          *prometheus.CounterVec
	applyDuration    prometheus.Histogram
	versionConflicts prometheus.Counter
	alerts           *prometheus.CounterVec
	alertFailures    prometheus.Counter
	reported         *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	verifyLatency    prometheus.Histogram
}

func NewPipeline(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		return nil
	}
	p := &Pipeline{
		applied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_applied_total",
			Help:      "Transactions handled by the applier, by outcome.",
		}, []string{"outcome"}),
		applyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying one transaction, including conflict retries.",
			Buckets:   prometheus.DefBuckets,
		}),
		versionConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Conditional updates refused because the record changed.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_emitted_total",
			Help:      "Stock alerts emitted, by status.",
		}, []string{"status"}),
		alertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_failures_total",
			Help:      "Alerts that could not be delivered to a sink.",
		}),
		reported: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_entries_total",
			Help:      "Log entries skipped and reported, by error kind.",
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Consistency verifications, by outcome.",
		}, []string{"outcome"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verify_latency_seconds",
			Help:      "Submit-to-visible latency observed by the verifier.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25, 60},
		}),
	}
	reg.MustRegister(p.applied, p.applyDuration, p.versionConflicts, p.alerts,
		p.alertFailures, p.reported, p.verifications, p.verifyLatency)
	return p
}

func (p *Pipeline) ObserveApply(outcome string, d time.Duration) {
	if p == nil {
		return
	}
	p.applied.WithLabelValues(outcome).Inc()
	p.applyDuration.Observe(d.Seconds())
}

func (p *Pipeline) IncVersionConflict() {
	if p == nil {
		return
	}
	p.versionConflicts.Inc()
}

func (p *Pipeline) IncAlert(status string) {
	if p == nil {
		return
	}
	p.alerts.WithLabelValues(status).Inc()
}

func (p *Pipeline) IncAlertFailure() {
	if p == nil {
		return
	}
	p.alertFailures.Inc()
}

func (p *Pipeline) IncReported(kind string) {
	if p == nil {
		return
	}
	p.reported.WithLabelValues(kind).Inc()
}

func (p *Pipeline) ObserveVerification(outcome string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.verifications.WithLabelValues(outcome).Inc()
	if outcome == "confirmed" {
		p.verifyLatency.Observe(elapsed.Seconds())
	}
}
