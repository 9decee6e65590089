package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labreport"

// Lookup outcomes.
const (
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
	OutcomeError = "error"
)

// Parse outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeNoInput = "no_input"
	OutcomeFailed  = "failed"
)

// Metrics holds the parser's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	parses            *prometheus.CounterVec
	testResults       *prometheus.CounterVec
	correctionLookups *prometheus.CounterVec
	correctionsLearnt *prometheus.CounterVec
	repairs           *prometheus.CounterVec
	parseDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		parses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_total",
			Help:      "Report parses by outcome.",
		}, []string{"outcome"}),
		testResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_results_total",
			Help:      "Parsed test results by section category.",
		}, []string{"category"}),
		correctionLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correction_lookups_total",
			Help:      "Best-correction lookups by correction type and outcome.",
		}, []string{"type", "outcome"}),
		correctionsLearnt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrections_learned_total",
			Help:      "Corrections learned by correction type.",
		}, []string{"type"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repairs_total",
			Help:      "Info map repair rules applied, by rule name.",
		}, []string{"rule"}),
		parseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "parse_duration_seconds",
			Help:      "Time spent assembling one report from text.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.parses, m.testResults, m.correctionLookups, m.correctionsLearnt, m.repairs, m.parseDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MustNew is New that panics on a registration error.
func MustNew(reg prometheus.Registerer) *Metrics {
	m, err := New(reg)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) ObserveParse(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.parses.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		m.parseDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) AddTestResults(category string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.testResults.WithLabelValues(category).Add(float64(n))
}

func (m *Metrics) CorrectionLookup(typ, outcome string) {
	if m == nil {
		return
	}
	m.correctionLookups.WithLabelValues(typ, outcome).Inc()
}

func (m *Metrics) CorrectionLearned(typ string) {
	if m == nil {
		return
	}
	m.correctionsLearnt.WithLabelValues(typ).Inc()
}

// RepairApplied has the signature of an infomap repair observer.
func (m *Metrics) RepairApplied(rule string) {
	if m == nil {
		return
	}
	m.repairs.WithLabelValues(rule).Inc()
}
