package service

import (
	"context"
	"testing"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/kv"
	dom "nafbridge/internal/services/monitor/domain"
	syncdom "nafbridge/internal/services/sync/domain"
	webhookdom "nafbridge/internal/services/webhook/domain"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type syncStatsStub struct{ st syncdom.Stats }

func (s *syncStatsStub) Stats() syncdom.Stats { return s.st }

type webhookStatsStub struct{ st webhookdom.Stats }

func (s *webhookStatsStub) Stats() webhookdom.Stats { return s.st }

type gwStub struct {
	chat.Gateway
	notified []string
}

func (g *gwStub) NotifyAdmins(_ context.Context, _ string, content string) error {
	g.notified = append(g.notified, content)
	return nil
}

func newTestMonitor(clk *clock.Manual, sync *syncStatsStub, hook *webhookStatsStub, gw chat.Gateway) *Svc {
	var wh WebhookStats
	if hook != nil {
		wh = hook
	}
	return New(
		modkit.Deps{Clock: clk, KV: kv.NewMemoryWithClock(clk)},
		Config{AdminGuildID: "g_1"},
		Sources{Sync: sync, Webhook: wh},
		gw,
	)
}

func freshWebhook(clk *clock.Manual) *webhookStatsStub {
	return &webhookStatsStub{st: webhookdom.Stats{LastWebhookAt: clk.Now()}}
}

func TestRollupHealthyBaseline(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestMonitor(clk, &syncStatsStub{}, freshWebhook(clk), nil)

	snap := s.Sample(context.Background())
	if snap.Overall != dom.StatusHealthy {
		t.Fatalf("overall = %s, components = %v", snap.Overall, snap.Components)
	}
}

func TestRollupQueueBacklogSeverity(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	stats := &syncStatsStub{st: syncdom.Stats{QueueSize: 150}}
	s := newTestMonitor(clk, stats, freshWebhook(clk), nil)

	snap := s.Sample(context.Background())
	if snap.Components[dom.ComponentSyncQueue] != dom.StatusWarning {
		t.Fatalf("queue at 150 = %s, want warning", snap.Components[dom.ComponentSyncQueue])
	}

	stats.st.QueueSize = 201
	clk.Advance(30 * time.Second)
	snap = s.Sample(context.Background())
	if snap.Components[dom.ComponentSyncQueue] != dom.StatusCritical {
		t.Fatalf("queue at 201 = %s, want critical", snap.Components[dom.ComponentSyncQueue])
	}
	if snap.Overall != dom.StatusCritical {
		t.Fatalf("overall = %s, want critical", snap.Overall)
	}
}

func TestRollupStaleWebhookWarns(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	hook := &webhookStatsStub{st: webhookdom.Stats{LastWebhookAt: testEpoch.Add(-11 * time.Minute)}}
	s := newTestMonitor(clk, &syncStatsStub{}, hook, nil)

	snap := s.Sample(context.Background())
	if snap.Components[dom.ComponentWebhook] != dom.StatusWarning {
		t.Fatalf("stale webhook = %s, want warning", snap.Components[dom.ComponentWebhook])
	}
}

func TestRollupFailuresOutnumberSuccesses(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	stats := &syncStatsStub{st: syncdom.Stats{SyncOperations: 10, SuccessfulSyncs: 2, FailedSyncs: 5}}
	s := newTestMonitor(clk, stats, freshWebhook(clk), nil)

	snap := s.Sample(context.Background())
	if snap.Components[dom.ComponentErrorRecovery] != dom.StatusCritical {
		t.Fatalf("error recovery = %s, want critical", snap.Components[dom.ComponentErrorRecovery])
	}
}

func TestAlertCooldownDedupes(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	stats := &syncStatsStub{st: syncdom.Stats{QueueSize: 150}}
	s := newTestMonitor(clk, stats, freshWebhook(clk), nil)
	ctx := context.Background()

	s.Sample(ctx)
	clk.Advance(30 * time.Second)
	s.Sample(ctx)

	if got := s.Alerts(); len(got) != 1 || got[0].Type != dom.AlertQueueBacklog {
		t.Fatalf("alerts = %+v, want one queue_backlog", got)
	}

	clk.Advance(5 * time.Minute)
	s.Sample(ctx)
	if got := s.Alerts(); len(got) != 2 {
		t.Fatalf("alerts after cooldown = %d, want 2", len(got))
	}
}

func TestCriticalAlertNotifiesAdmins(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	gw := &gwStub{}
	stats := &syncStatsStub{st: syncdom.Stats{QueueSize: 250}}
	s := newTestMonitor(clk, stats, freshWebhook(clk), gw)

	s.Sample(context.Background())
	if len(gw.notified) != 1 {
		t.Fatalf("admin notifications = %d, want 1", len(gw.notified))
	}
}

func TestRecommendationsFromTrailingWindow(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	stats := &syncStatsStub{st: syncdom.Stats{QueueSize: 150, AverageSyncTimeMs: 6000}}
	s := newTestMonitor(clk, stats, freshWebhook(clk), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Sample(ctx)
		clk.Advance(30 * time.Second)
	}
	s.recompute(clk.Now())

	recs := s.Recommendations()
	topics := map[string]bool{}
	for _, r := range recs {
		topics[r.Topic] = true
	}
	if !topics["batch_tuning"] || !topics["connection_pooling"] {
		t.Fatalf("recommendations = %+v", recs)
	}
}

func TestTrendClassification(t *testing.T) {
	cases := []struct {
		first, last float64
		want        dom.Trend
	}{
		{100, 120, dom.TrendIncreasing},
		{100, 85, dom.TrendDecreasing},
		{100, 105, dom.TrendStable},
		{100, 95, dom.TrendStable},
		{0, 5, dom.TrendIncreasing},
		{0, 0, dom.TrendStable},
	}
	for _, tc := range cases {
		if got := dom.TrendOf(tc.first, tc.last); got != tc.want {
			t.Fatalf("TrendOf(%v, %v) = %s, want %s", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestTrendOverHistory(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	stats := &syncStatsStub{}
	s := newTestMonitor(clk, stats, freshWebhook(clk), nil)
	ctx := context.Background()

	for _, size := range []int{10, 40, 80} {
		stats.st.QueueSize = size
		s.Sample(ctx)
		clk.Advance(30 * time.Second)
	}

	if got := s.Trend("queueSize"); got != dom.TrendIncreasing {
		t.Fatalf("trend = %s, want increasing", got)
	}
}

func TestHealthBeforeFirstSample(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestMonitor(clk, &syncStatsStub{}, freshWebhook(clk), nil)

	status, services := s.Health(context.Background())
	if status != string(dom.StatusHealthy) {
		t.Fatalf("status = %s", status)
	}
	if len(services) != 4 {
		t.Fatalf("services = %v", services)
	}
}
