package service

import (
	stdsync "sync"
	"time"

	"nafbridge/internal/platform/clock"
	dom "nafbridge/internal/services/policy/domain"
)

// AnomalyConfig holds the detector thresholds, defaults fit guild-scale
// activity
type AnomalyConfig struct {
	RapidCount  int
	RapidWindow time.Duration

	AbuseCount  int
	AbuseWindow time.Duration

	PatternK       int
	PatternJitter  time.Duration
	PatternMeanMax time.Duration

	NewAccountCount  int
	NewAccountWindow time.Duration
	NewAccountAge    time.Duration

	MassJoinCount  int
	MassJoinWindow time.Duration

	// EmitSuppress dedupes repeated emissions of one signal
	EmitSuppress time.Duration
}

func (c *AnomalyConfig) defaults() {
	if c.RapidCount <= 0 {
		c.RapidCount = 10
	}
	if c.RapidWindow <= 0 {
		c.RapidWindow = time.Minute
	}
	if c.AbuseCount <= 0 {
		c.AbuseCount = 5
	}
	if c.AbuseWindow <= 0 {
		c.AbuseWindow = 10 * time.Second
	}
	if c.PatternK <= 0 {
		c.PatternK = 5
	}
	if c.PatternJitter <= 0 {
		c.PatternJitter = 100 * time.Millisecond
	}
	if c.PatternMeanMax <= 0 {
		c.PatternMeanMax = 5 * time.Second
	}
	if c.NewAccountCount <= 0 {
		c.NewAccountCount = 5
	}
	if c.NewAccountWindow <= 0 {
		c.NewAccountWindow = 10 * time.Minute
	}
	if c.NewAccountAge <= 0 {
		c.NewAccountAge = 7 * 24 * time.Hour
	}
	if c.MassJoinCount <= 0 {
		c.MassJoinCount = 10
	}
	if c.MassJoinWindow <= 0 {
		c.MassJoinWindow = time.Minute
	}
	if c.EmitSuppress <= 0 {
		c.EmitSuppress = time.Minute
	}
}

type stamp struct {
	at         time.Time
	command    string
	newAccount bool
}

type joinStamp struct {
	at         time.Time
	newAccount bool
}

// detector owns the per-user and per-guild behavioral windows
type detector struct {
	mu  stdsync.Mutex
	cfg AnomalyConfig
	clk clock.Clock

	// emit receives every detected signal
	emit func(ev dom.AnomalyEvent)

	users  map[string][]stamp // guildID|userID
	guilds map[string][]stamp // guildID, new-account activity
	joins  map[string][]joinStamp

	lastEmit map[string]time.Time // type|scope
}

func newDetector(cfg AnomalyConfig, clk clock.Clock, emit func(dom.AnomalyEvent)) *detector {
	cfg.defaults()
	return &detector{
		cfg:      cfg,
		clk:      clk,
		emit:     emit,
		users:    make(map[string][]stamp),
		guilds:   make(map[string][]stamp),
		joins:    make(map[string][]joinStamp),
		lastEmit: make(map[string]time.Time),
	}
}

// Observe folds one evaluated command into the windows and runs the
// command-shaped detectors
func (d *detector) Observe(guildID, userID, command string, accountCreatedAt time.Time) {
	now := d.clk.Now()
	newAccount := !accountCreatedAt.IsZero() && now.Sub(accountCreatedAt) < d.cfg.NewAccountAge

	d.mu.Lock()
	defer d.mu.Unlock()

	ukey := guildID + "|" + userID
	d.users[ukey] = pruneStamps(append(d.users[ukey], stamp{at: now, command: command, newAccount: newAccount}), now, d.cfg.RapidWindow)
	d.guilds[guildID] = pruneStamps(append(d.guilds[guildID], stamp{at: now, command: command, newAccount: newAccount}), now, d.cfg.NewAccountWindow)

	d.checkRapid(guildID, userID, now)
	d.checkAbuse(guildID, userID, command, now)
	d.checkPattern(guildID, userID, now)
	d.checkNewAccounts(guildID, now)
}

// RecordJoin folds one member join into mass-join detection
func (d *detector) RecordJoin(guildID, userID string, accountCreatedAt time.Time) {
	now := d.clk.Now()
	newAccount := !accountCreatedAt.IsZero() && now.Sub(accountCreatedAt) < d.cfg.NewAccountAge

	d.mu.Lock()
	defer d.mu.Unlock()

	js := append(d.joins[guildID], joinStamp{at: now, newAccount: newAccount})
	cutoff := now.Add(-d.cfg.MassJoinWindow)
	i := 0
	for i < len(js) && !js[i].at.After(cutoff) {
		i++
	}
	js = js[i:]
	d.joins[guildID] = js

	if len(js) < d.cfg.MassJoinCount {
		return
	}

	young := 0
	for _, j := range js {
		if j.newAccount {
			young++
		}
	}
	sev := dom.SeverityMedium
	if young*2 > len(js) {
		sev = dom.SeverityHigh
	}
	d.fire(dom.AnomalyEvent{
		Type:     dom.AnomalyMassJoins,
		GuildID:  guildID,
		UserID:   userID,
		Severity: sev,
		At:       now,
		Details:  map[string]any{"joins": len(js), "newAccounts": young},
	}, guildID)
}

func (d *detector) checkRapid(guildID, userID string, now time.Time) {
	ukey := guildID + "|" + userID
	n := countSince(d.users[ukey], now.Add(-d.cfg.RapidWindow))
	if n > d.cfg.RapidCount {
		d.fire(dom.AnomalyEvent{
			Type:     dom.AnomalyRapidCommands,
			GuildID:  guildID,
			UserID:   userID,
			Severity: dom.SeverityMedium,
			At:       now,
			Details:  map[string]any{"commands": n},
		}, ukey)
	}
}

func (d *detector) checkAbuse(guildID, userID, command string, now time.Time) {
	cutoff := now.Add(-d.cfg.AbuseWindow)
	n := 0
	for _, st := range d.users[guildID+"|"+userID] {
		if st.command == command && st.at.After(cutoff) {
			n++
		}
	}
	if n > d.cfg.AbuseCount {
		d.fire(dom.AnomalyEvent{
			Type:     dom.AnomalyCommandAbuse,
			GuildID:  guildID,
			UserID:   userID,
			Severity: dom.SeverityMedium,
			At:       now,
			Details:  map[string]any{"command": command, "uses": n},
		}, guildID+"|"+userID+"|"+command)
	}
}

// checkPattern flags machine-steady cadence: the last K inter-arrival
// deltas all sit within the jitter band around their mean and the mean
// is under the human floor
func (d *detector) checkPattern(guildID, userID string, now time.Time) {
	st := d.users[guildID+"|"+userID]
	if len(st) < d.cfg.PatternK {
		return
	}
	tail := st[len(st)-d.cfg.PatternK:]

	deltas := make([]time.Duration, 0, len(tail)-1)
	var sum time.Duration
	for i := 1; i < len(tail); i++ {
		delta := tail[i].at.Sub(tail[i-1].at)
		deltas = append(deltas, delta)
		sum += delta
	}
	mean := sum / time.Duration(len(deltas))
	if mean >= d.cfg.PatternMeanMax {
		return
	}
	for _, delta := range deltas {
		diff := delta - mean
		if diff < 0 {
			diff = -diff
		}
		if diff > d.cfg.PatternJitter {
			return
		}
	}

	d.fire(dom.AnomalyEvent{
		Type:     dom.AnomalySuspiciousPattern,
		GuildID:  guildID,
		UserID:   userID,
		Severity: dom.SeverityHigh,
		At:       now,
		Details:  map[string]any{"meanIntervalMs": mean.Milliseconds()},
	}, guildID+"|"+userID)
}

func (d *detector) checkNewAccounts(guildID string, now time.Time) {
	cutoff := now.Add(-d.cfg.NewAccountWindow)
	n := 0
	for _, st := range d.guilds[guildID] {
		if st.newAccount && st.at.After(cutoff) {
			n++
		}
	}
	if n >= d.cfg.NewAccountCount {
		d.fire(dom.AnomalyEvent{
			Type:     dom.AnomalyNewAccountActivity,
			GuildID:  guildID,
			Severity: dom.SeverityMedium,
			At:       now,
			Details:  map[string]any{"commands": n},
		}, guildID)
	}
}

// fire emits unless the same signal for the same scope fired recently
func (d *detector) fire(ev dom.AnomalyEvent, scope string) {
	key := ev.Type + "|" + scope
	if last, ok := d.lastEmit[key]; ok && ev.At.Sub(last) < d.cfg.EmitSuppress {
		return
	}
	d.lastEmit[key] = ev.At
	d.emit(ev)
}

func pruneStamps(st []stamp, now time.Time, window time.Duration) []stamp {
	// keep the widest window any detector needs
	if window < time.Hour {
		window = time.Hour
	}
	cutoff := now.Add(-window)
	i := 0
	for i < len(st) && !st[i].at.After(cutoff) {
		i++
	}
	return st[i:]
}

func countSince(st []stamp, cutoff time.Time) int {
	n := 0
	for _, s := range st {
		if s.at.After(cutoff) {
			n++
		}
	}
	return n
}
