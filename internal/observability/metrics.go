package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rewards",
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	activityScoredGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "rewards",
		Subsystem: "persistence",
		Name:      "last_activity_scored_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity awarded points.",
	})
	fraudVerdictCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rewards",
		Subsystem: "fraud",
		Name:      "verdicts_total",
		Help:      "Fraud verdicts applied, by outcome.",
	}, []string{"outcome"})
	leagueContributionCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rewards",
		Subsystem: "league",
		Name:      "contributions_applied_total",
		Help:      "League contributions applied to member scores.",
	})
)

func init() {
	prometheus.MustRegister(activityPersistGauge, activityScoredGauge, fraudVerdictCounter, leagueContributionCounter)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordActivityScored updates the scoring watermark gauge.
func RecordActivityScored(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityScoredGauge.Set(float64(ts.Unix()))
}

// RecordFraudVerdict counts a fraud stage outcome ("verified" or "flagged").
func RecordFraudVerdict(outcome string) {
	fraudVerdictCounter.WithLabelValues(outcome).Inc()
}

// RecordLeagueContribution counts one applied league contribution.
func RecordLeagueContribution() {
	leagueContributionCounter.Inc()
}
