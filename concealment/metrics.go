package concealment

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeLabel = "outcome"
	policyLabel  = "policy"
)

var (
	searchCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concealment_searches_total",
		Help: "The number of concealment searches, by outcome (found, not_found or incomplete).",
	}, []string{
		outcomeLabel,
		policyLabel,
	})

	samplesEvaluated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concealment_samples_evaluated_total",
		Help: "The number of samples evaluated, by outcome.",
	}, []string{
		outcomeLabel,
	})

	searchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "concealment_search_duration_seconds",
		Help: "The time from the first to the last evaluated sample of a search.",
	}, []string{
		policyLabel,
	})
)

func instrumentSample(o Outcome) {
	samplesEvaluated.
		With(prometheus.Labels{outcomeLabel: o.String()}).
		Inc()
}

func instrumentSearch(outcome string, policy UnreachablePolicy, start time.Time) {
	searchCount.
		With(prometheus.Labels{
			outcomeLabel: outcome,
			policyLabel:  policy.String(),
		}).
		Inc()

	searchLatency.
		With(prometheus.Labels{policyLabel: policy.String()}).
		Observe(time.Since(start).Seconds())
}
