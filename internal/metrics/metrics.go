package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studiospace/plankit/internal/engine"
)

var (
	HitTestDurationMs = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "plankit_hit_test_duration_ms",
		Help:    "Hit test duration from sampling to resolution in milliseconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 20, 50, 80, 100, 200},
	})
	HitTestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plankit_hit_tests_total",
		Help: "Resolved hit tests by result (hit, none)",
	}, []string{"result"})
	HitBudgetOverrunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plankit_hit_budget_overruns_total",
		Help: "Hit tests exceeding their latency budget by phase (first, follow)",
	}, []string{"phase"})
	HitSamplesSupersededTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plankit_hit_samples_superseded_total",
		Help: "Pointer samples dropped because a newer sample arrived",
	})
	IndexRebuildsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plankit_index_rebuilds_total",
		Help: "Spatial index snapshots published",
	})
	IndexCandidates = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "plankit_index_candidates",
		Help: "Candidate-set size of the most recent hit test",
	})
	PlanLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plankit_plan_loads_total",
		Help: "Finished plan loads by outcome (ok, error, superseded)",
	}, []string{"outcome"})
	PlanCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plankit_plan_cache_hits_total",
		Help: "Floor loads served from redis",
	})
	PlanCacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "plankit_plan_cache_misses_total",
		Help: "Floor loads that fell through to the backing source",
	})
	CommitSinkFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plankit_commit_sink_failures_total",
		Help: "Commit sink deliveries that failed by sink",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(HitTestDurationMs)
	prometheus.MustRegister(HitTestsTotal)
	prometheus.MustRegister(HitBudgetOverrunsTotal)
	prometheus.MustRegister(HitSamplesSupersededTotal)
	prometheus.MustRegister(IndexRebuildsTotal)
	prometheus.MustRegister(IndexCandidates)
	prometheus.MustRegister(PlanLoadsTotal)
	prometheus.MustRegister(PlanCacheHitsTotal)
	prometheus.MustRegister(PlanCacheMissesTotal)
	prometheus.MustRegister(CommitSinkFailuresTotal)
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler { return promhttp.Handler() }

// Observer records engine events as metrics and logs budget overruns.
type Observer struct{}

var _ engine.Observer = Observer{}

func (Observer) ObserveHit(r engine.HitResult) {
	HitTestDurationMs.Observe(r.Stats.ElapsedMs)
	IndexCandidates.Set(float64(r.Stats.Candidates))
	if r.None() {
		HitTestsTotal.WithLabelValues("none").Inc()
	} else {
		HitTestsTotal.WithLabelValues("hit").Inc()
	}
}

func (Observer) ObserveOverrun(r engine.HitResult) {
	phase := "follow"
	if r.Stats.FirstInDwell {
		phase = "first"
	}
	HitBudgetOverrunsTotal.WithLabelValues(phase).Inc()
	slog.Warn("hit test over budget",
		"seq", r.Seq,
		"phase", phase,
		"elapsed_ms", r.Stats.ElapsedMs,
		"budget_ms", r.Stats.Budget.Milliseconds(),
		"candidates", r.Stats.Candidates,
	)
}

func (Observer) ObserveSuperseded(uint64) {
	HitSamplesSupersededTotal.Inc()
}

func (Observer) ObservePublish(s *engine.Snapshot) {
	IndexRebuildsTotal.Inc()
	slog.Debug("snapshot published", "floor", s.Floor.ID, "version", s.Version, "spaces", s.Set.Len())
}

// LoadOutcome counts a finished plan load.
func LoadOutcome(_ string, outcome string) {
	PlanLoadsTotal.WithLabelValues(outcome).Inc()
}
