// Package metrics hält die Prometheus-Kollektoren des Dienstes.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// PagesUpserted zählt Upsert-Ergebnisse (inserted, updated, ignored, rejected).
	PagesUpserted *prometheus.CounterVec
	// ReviewsApplied zählt manuelle Reviews, nach Ergebnis (applied, stale, unknown_url).
	ReviewsApplied *prometheus.CounterVec
	TweetsInserted prometheus.Counter
	// QueryDuration misst Abfragen nach Form (list, grouped, matrix, search).
	QueryDuration  *prometheus.HistogramVec
	SearchFailures prometheus.Counter
	IngestRuns     *prometheus.CounterVec
)

func init() {
	PagesUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covid_news_pages_upserted_total",
			Help: "Number of page upserts by outcome.",
		},
		[]string{"status"},
	)
	ReviewsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covid_news_reviews_total",
			Help: "Number of human reviews by outcome.",
		},
		[]string{"outcome"},
	)
	TweetsInserted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "covid_news_tweets_inserted_total",
			Help: "Number of tweets stored for the first time.",
		},
	)
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "covid_news_query_duration_seconds",
			Help:    "Duration of article and tweet queries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"shape"},
	)
	SearchFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "covid_news_search_failures_total",
			Help: "Keyword index requests that failed and were answered empty.",
		},
	)
	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "covid_news_ingest_runs_total",
			Help: "Ingestion job runs by result.",
		},
		[]string{"result"},
	)
	prometheus.MustRegister(PagesUpserted, ReviewsApplied, TweetsInserted, QueryDuration, SearchFailures, IngestRuns)
}
