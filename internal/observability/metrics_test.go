package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDomainCollectorsRegistered(t *testing.T) {
	for name, c := range map[string]prometheus.Collector{
		"xp_events_total":            XPEvents,
		"xp_awarded_total":           XPAwarded,
		"quest_claims_total":         QuestClaims,
		"referral_rewards_total":     ReferralRewards,
		"scheduler_panics_total":     SchedulerPanics,
		"scheduler_dispatches_total": SchedulerDispatches,
	} {
		if err := prometheus.Register(c); err == nil {
			t.Fatalf("%s was not registered by init", name)
		} else if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			t.Fatalf("%s: unexpected register error %v", name, err)
		}
	}
}

func TestXPAwardedAccumulates(t *testing.T) {
	c := XPAwarded.WithLabelValues("metrics_test")
	before := testutil.ToFloat64(c)
	c.Add(100)
	c.Add(50)
	if got := testutil.ToFloat64(c) - before; got != 150 {
		t.Fatalf("xp_awarded delta = %v, want 150", got)
	}
}

func TestSnapshotRunsLabels(t *testing.T) {
	SnapshotRuns.WithLabelValues("daily", "completed").Inc()
	if n := testutil.CollectAndCount(SnapshotRuns, "leaderboard_snapshot_runs_total"); n < 1 {
		t.Fatalf("expected at least one series, got %d", n)
	}
}
