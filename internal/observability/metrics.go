package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain collectors. Label values are drawn from closed enums (event types,
// periods, outcomes) so cardinality stays bounded.
var (
	// XPEvents counts processed event submissions by type and outcome
	// (awarded, duplicate, cap_reached, cooldown, no_rule, failed).
	XPEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_events_total",
			Help: "Event submissions by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// XPAwarded sums XP written to the ledger by reason.
	XPAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_awarded_total",
			Help: "Total XP appended to the ledger.",
		},
		[]string{"reason"},
	)

	// QuestClaims counts claim attempts by result.
	QuestClaims = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quest_claims_total",
			Help: "Quest claim attempts by result.",
		},
		[]string{"result"},
	)

	// ReferralRewards counts referral payouts and rejections.
	ReferralRewards = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "referral_rewards_total",
			Help: "Referral state transitions that pay out or terminate.",
		},
		[]string{"outcome"},
	)

	// SnapshotRuns counts leaderboard generations by period and final status.
	SnapshotRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_snapshot_runs_total",
			Help: "Leaderboard snapshot generations by period and status.",
		},
		[]string{"period", "status"},
	)

	// SnapshotDuration observes generation latency per period.
	SnapshotDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leaderboard_snapshot_duration_seconds",
			Help:    "Duration of leaderboard snapshot generation.",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"period"},
	)

	// SchedulerDispatches counts snapshot jobs started by the scheduler.
	// source is "tick", "startup" or "trigger".
	SchedulerDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_dispatches_total",
			Help: "Snapshot jobs dispatched by the scheduler.",
		},
		[]string{"period", "source"},
	)

	// SchedulerPanics counts jobs that panicked and were recovered.
	SchedulerPanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_panics_total",
			Help: "Recovered panics in scheduled jobs.",
		},
	)
)

func init() {
	prometheus.MustRegister(XPEvents, XPAwarded, QuestClaims, ReferralRewards, SnapshotRuns, SnapshotDuration,
		SchedulerDispatches, SchedulerPanics)
}
