package service

import (
	"testing"
	"time"

	"nafbridge/internal/platform/clock"
	dom "nafbridge/internal/services/policy/domain"
)

func newTestDetector(clk *clock.Manual) (*detector, *[]dom.AnomalyEvent) {
	events := &[]dom.AnomalyEvent{}
	d := newDetector(AnomalyConfig{}, clk, func(ev dom.AnomalyEvent) {
		*events = append(*events, ev)
	})
	return d, events
}

func eventsOf(events []dom.AnomalyEvent, typ string) []dom.AnomalyEvent {
	var out []dom.AnomalyEvent
	for _, ev := range events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestRapidCommandsEmitOnce(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	// 12 commands in under a minute, the 11th crosses the >10 threshold
	// but jittered enough to stay clear of the timing detector
	steps := []time.Duration{
		900 * time.Millisecond, 2100 * time.Millisecond, 400 * time.Millisecond,
		3 * time.Second, 700 * time.Millisecond, 1500 * time.Millisecond,
		300 * time.Millisecond, 2500 * time.Millisecond, 600 * time.Millisecond,
		1200 * time.Millisecond, 800 * time.Millisecond,
	}
	d.Observe("g_1", "u_1", "verify", time.Time{})
	for _, step := range steps {
		clk.Advance(step)
		d.Observe("g_1", "u_1", "verify", time.Time{})
	}

	rapid := eventsOf(*events, dom.AnomalyRapidCommands)
	if len(rapid) != 1 {
		t.Fatalf("rapid_commands emitted %d times, want 1", len(rapid))
	}
	if rapid[0].UserID != "u_1" {
		t.Fatalf("event = %+v", rapid[0])
	}
}

func TestCommandAbuseSameCommandBurst(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	for i := 0; i < 6; i++ {
		d.Observe("g_1", "u_1", "claim", time.Time{})
		clk.Advance(time.Second)
	}

	if got := eventsOf(*events, dom.AnomalyCommandAbuse); len(got) != 1 {
		t.Fatalf("command_abuse emitted %d times, want 1", len(got))
	}
}

func TestSuspiciousPatternSteadyCadence(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	for i := 0; i < 5; i++ {
		d.Observe("g_1", "u_1", "verify", time.Time{})
		clk.Advance(time.Second)
	}

	got := eventsOf(*events, dom.AnomalySuspiciousPattern)
	if len(got) != 1 {
		t.Fatalf("suspicious_pattern emitted %d times, want 1", len(got))
	}
	if got[0].Severity != dom.SeverityHigh {
		t.Fatalf("severity = %s", got[0].Severity)
	}
}

func TestHumanJitterIsNotSuspicious(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	for _, step := range []time.Duration{
		800 * time.Millisecond, 2 * time.Second, 4500 * time.Millisecond, 1200 * time.Millisecond,
	} {
		d.Observe("g_1", "u_1", "verify", time.Time{})
		clk.Advance(step)
	}
	d.Observe("g_1", "u_1", "verify", time.Time{})

	if got := eventsOf(*events, dom.AnomalySuspiciousPattern); len(got) != 0 {
		t.Fatalf("suspicious_pattern emitted for human jitter: %+v", got)
	}
}

func TestNewAccountClusterPerGuild(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	young := testEpoch.Add(-2 * 24 * time.Hour)
	for i := 0; i < 5; i++ {
		user := string(rune('a' + i))
		d.Observe("g_1", "u_"+user, "verify", young)
		clk.Advance(30 * time.Second)
	}

	if got := eventsOf(*events, dom.AnomalyNewAccountActivity); len(got) != 1 {
		t.Fatalf("new_account_activity emitted %d times, want 1", len(got))
	}
}

func TestMassJoinsElevatedWhenMostlyNew(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	d, events := newTestDetector(clk)

	young := testEpoch.Add(-24 * time.Hour)
	old := testEpoch.Add(-90 * 24 * time.Hour)
	for i := 0; i < 10; i++ {
		created := young
		if i < 4 {
			created = old
		}
		d.RecordJoin("g_1", "u_x", created)
		clk.Advance(2 * time.Second)
	}

	got := eventsOf(*events, dom.AnomalyMassJoins)
	if len(got) != 1 {
		t.Fatalf("mass_joins emitted %d times, want 1", len(got))
	}
	if got[0].Severity != dom.SeverityHigh {
		t.Fatalf("severity = %s, want high (6 of 10 joins are young accounts)", got[0].Severity)
	}
}
