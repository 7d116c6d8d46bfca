package service

import (
	"context"
	"testing"
	"time"

	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/clock"
	dom "nafbridge/internal/services/policy/domain"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPolicy(clk *clock.Manual) *Svc {
	return New(modkit.Deps{Clock: clk}, Config{})
}

func goodCaller() *dom.Caller {
	return &dom.Caller{
		UserID:    "u_1",
		CreatedAt: testEpoch.Add(-30 * 24 * time.Hour),
		JoinedAt:  testEpoch.Add(-10 * 24 * time.Hour),
	}
}

func interaction(c *dom.Caller) dom.Interaction {
	return dom.Interaction{GuildID: "g_1", ChannelID: "ch_1", Caller: c}
}

func TestEvaluateContextChecks(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))
	ctx := context.Background()

	dec := s.Evaluate(ctx, dom.Interaction{Caller: goodCaller()}, "verify")
	if dec.Admit || dec.Severity != dom.SeverityLow {
		t.Fatalf("no guild: %+v", dec)
	}

	dec = s.Evaluate(ctx, dom.Interaction{GuildID: "g_1"}, "verify")
	if dec.Admit || dec.Severity != dom.SeverityLow {
		t.Fatalf("no member: %+v", dec)
	}
}

func TestEvaluateRejectsBots(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))

	c := goodCaller()
	c.IsBot = true
	dec := s.Evaluate(context.Background(), interaction(c), "verify")
	if dec.Admit || dec.Severity != dom.SeverityMedium {
		t.Fatalf("decision = %+v", dec)
	}
	if got := s.Stats().Anomalies; got != 1 {
		t.Fatalf("anomalies = %d, want 1", got)
	}
}

func TestEvaluateRejectsYoungAccounts(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))

	c := goodCaller()
	c.CreatedAt = testEpoch.Add(-3 * 24 * time.Hour)
	dec := s.Evaluate(context.Background(), interaction(c), "verify")
	if dec.Admit || dec.Severity != dom.SeverityMedium {
		t.Fatalf("decision = %+v", dec)
	}
}

func TestAdminOnlyCommand(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))
	s.resolver.swap(map[string]dom.CommandConfig{
		"config": {AdminOnly: true, AdminRoles: []string{"Moderators"}},
	}, nil)
	ctx := context.Background()

	if dec := s.Evaluate(ctx, interaction(goodCaller()), "config"); dec.Admit {
		t.Fatal("plain member admitted to admin command")
	}

	owner := goodCaller()
	owner.IsGuildOwner = true
	if dec := s.Evaluate(ctx, interaction(owner), "config"); !dec.Admit {
		t.Fatalf("owner denied: %+v", dec)
	}

	admin := goodCaller()
	admin.Capabilities = []string{"Administrator"}
	if dec := s.Evaluate(ctx, interaction(admin), "config"); !dec.Admit {
		t.Fatalf("administrator capability denied: %+v", dec)
	}

	mod := goodCaller()
	mod.RoleNames = []string{"moderators"}
	if dec := s.Evaluate(ctx, interaction(mod), "config"); !dec.Admit {
		t.Fatalf("admin role denied: %+v", dec)
	}
}

func TestRequiredRolesMatchAcrossCaseAndAccents(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))
	s.resolver.swap(map[string]dom.CommandConfig{
		"verify": {RequiredRoles: []string{"moderator"}},
	}, nil)
	ctx := context.Background()

	c := goodCaller()
	c.RoleNames = []string{"Modérator"}
	if dec := s.Evaluate(ctx, interaction(c), "verify"); !dec.Admit {
		t.Fatalf("folded role name denied: %+v", dec)
	}

	bare := goodCaller()
	if dec := s.Evaluate(ctx, interaction(bare), "verify"); dec.Admit {
		t.Fatal("missing role admitted")
	}
}

func TestGuildOverrideChangesConfig(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))
	s.resolver.swap(map[string]dom.CommandConfig{
		"verify": {},
	}, nil)
	adminOnly := true
	s.resolver.setOverride("g_1", "verify", dom.CommandOverride{AdminOnly: &adminOnly})
	ctx := context.Background()

	if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); dec.Admit {
		t.Fatal("override not applied")
	}

	other := dom.Interaction{GuildID: "g_2", Caller: goodCaller()}
	if dec := s.Evaluate(ctx, other, "verify"); !dec.Admit {
		t.Fatalf("override leaked to another guild: %+v", dec)
	}
}

func TestQuotaBoundary(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestPolicy(clk)
	s.resolver.swap(map[string]dom.CommandConfig{
		"verify": {MaxUsesPerHour: 3},
	}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); !dec.Admit {
			t.Fatalf("use %d denied: %+v", i+1, dec)
		}
		clk.Advance(time.Minute)
	}

	dec := s.Evaluate(ctx, interaction(goodCaller()), "verify")
	if dec.Admit || dec.Severity != dom.SeverityMedium {
		t.Fatalf("4th use: %+v", dec)
	}
	if got := s.Stats().Anomalies; got != 1 {
		t.Fatalf("anomalies = %d, want 1", got)
	}

	// oldest hit slides out after the window
	clk.Advance(time.Hour)
	if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); !dec.Admit {
		t.Fatalf("post-window use denied: %+v", dec)
	}
}

func TestCommandCooldownSpacesUses(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestPolicy(clk)
	s.resolver.swap(map[string]dom.CommandConfig{
		"verify": {CooldownSec: 30},
	}, nil)
	ctx := context.Background()

	if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); !dec.Admit {
		t.Fatalf("first use denied: %+v", dec)
	}

	clk.Advance(10 * time.Second)
	if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); dec.Admit {
		t.Fatal("admitted inside cooldown")
	}

	clk.Advance(30 * time.Second)
	if dec := s.Evaluate(ctx, interaction(goodCaller()), "verify"); !dec.Admit {
		t.Fatalf("admitted use after cooldown denied: %+v", dec)
	}
}

func TestStatsCountDecisions(t *testing.T) {
	s := newTestPolicy(clock.NewManual(testEpoch))
	ctx := context.Background()

	s.Evaluate(ctx, interaction(goodCaller()), "verify")
	s.Evaluate(ctx, dom.Interaction{}, "verify")

	got := s.Stats()
	if got.Evaluations != 2 || got.Admissions != 1 || got.Denials != 1 {
		t.Fatalf("stats = %+v", got)
	}
}
