package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/clock"
	perr "nafbridge/internal/platform/errors"
	"nafbridge/internal/platform/kv"
	dom "nafbridge/internal/services/sync/domain"
)

var testEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestSvc(t *testing.T, clk *clock.Manual, store kv.KV) *Svc {
	t.Helper()
	s := New(modkit.Deps{KV: store, Clock: clk}, Config{}, nil, nil)
	s.exec = func(context.Context, dom.Operation) error { return nil }
	return s
}

func taskOp(key, status string, at time.Time) dom.Operation {
	return dom.NewTaskStatus(key, dom.TaskStatusPayload{Status: status}, at)
}

func TestProcessDueExclusivePerEntity(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	started := make(chan string, 4)
	release := make(chan struct{})
	s.exec = func(_ context.Context, op dom.Operation) error {
		started <- op.SyncID
		<-release
		return nil
	}

	a := taskOp("task_1", "active", testEpoch)
	b := taskOp("task_1", "completed", testEpoch.Add(time.Millisecond))
	c := taskOp("task_2", "active", testEpoch)
	s.accept(a)
	s.accept(b)
	s.accept(c)

	s.processDue(context.Background())

	// task_1 has two queued ops but only one may be in flight
	if got := len(s.activeIDs); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}
	keys := map[string]int{}
	for id := range s.activeIDs {
		keys[s.queue[id].EntityKey()]++
	}
	if keys["task_status|task_1"] != 1 || keys["task_status|task_2"] != 1 {
		t.Fatalf("active entity spread = %v", keys)
	}

	<-started
	<-started
	close(release)
	s.onResult(<-s.results)
	s.onResult(<-s.results)

	if len(s.activeIDs) != 0 || len(s.activeKeys) != 0 {
		t.Fatalf("active sets not cleared: ids=%d keys=%d", len(s.activeIDs), len(s.activeKeys))
	}
}

func TestRetryBackoffIsLinear(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	op := taskOp("task_9", "active", testEpoch)
	s.accept(op)

	s.onResult(result{op: op, err: perr.Unavailablef("upstream down")})
	got := s.queue[op.SyncID]
	if got.RetryCount != 1 {
		t.Fatalf("retry count = %d, want 1", got.RetryCount)
	}
	if want := clk.Now().Add(5 * time.Second); !got.NextAttempt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttempt, want)
	}

	s.onResult(result{op: got, err: perr.Unavailablef("still down")})
	got = s.queue[op.SyncID]
	if got.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", got.RetryCount)
	}
	if want := clk.Now().Add(10 * time.Second); !got.NextAttempt.Equal(want) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttempt, want)
	}
}

func TestRetryGateHoldsUntilDue(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	var mu sync.Mutex
	var launched []string
	s.exec = func(_ context.Context, op dom.Operation) error {
		mu.Lock()
		launched = append(launched, op.SyncID)
		mu.Unlock()
		return nil
	}

	op := taskOp("task_3", "active", testEpoch)
	s.accept(op)
	s.onResult(result{op: op, err: perr.Unavailablef("flaky")})

	s.processDue(context.Background())
	if len(s.activeIDs) != 0 {
		t.Fatal("picked before NextAttempt")
	}

	clk.Advance(5 * time.Second)
	s.processDue(context.Background())
	if len(s.activeIDs) != 1 {
		t.Fatal("not picked once NextAttempt passed")
	}
	s.onResult(<-s.results)

	mu.Lock()
	defer mu.Unlock()
	if len(launched) != 1 || launched[0] != op.SyncID {
		t.Fatalf("launched = %v", launched)
	}
}

func TestExhaustedRetriesDropWithCooldown(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	op := taskOp("task_4", "active", testEpoch)
	op.RetryCount = s.cfg.MaxRetries
	s.accept(op)

	s.onResult(result{op: op, err: perr.Unavailablef("down for good")})

	if _, ok := s.queue[op.SyncID]; ok {
		t.Fatal("dropped op still queued")
	}
	until, ok := s.cooldowns[op.SyncID]
	if !ok {
		t.Fatal("no cooldown recorded")
	}
	if want := clk.Now().Add(60 * time.Second); !until.Equal(want) {
		t.Fatalf("cooldown until = %v, want %v", until, want)
	}
	if got := s.Stats().FailedSyncs; got != 1 {
		t.Fatalf("failed syncs = %d, want 1", got)
	}
}

func TestTerminalErrorDropsImmediately(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	op := taskOp("task_5", "active", testEpoch)
	s.accept(op)
	s.onResult(result{op: op, err: perr.Validationf("bad payload")})

	if _, ok := s.queue[op.SyncID]; ok {
		t.Fatal("terminal failure left op queued")
	}
	if _, ok := s.cooldowns[op.SyncID]; !ok {
		t.Fatal("terminal failure recorded no cooldown")
	}
}

func TestCooldownBlocksRequeueUntilExpiry(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	op := taskOp("task_6", "active", testEpoch)
	s.accept(op)
	s.onResult(result{op: op, err: perr.Validationf("rejected")})

	// same syncId arrives again while cooling down
	s.accept(op)
	s.processDue(context.Background())
	if len(s.activeIDs) != 0 {
		t.Fatal("picked during cooldown")
	}

	clk.Advance(61 * time.Second)
	s.cleanup()
	if len(s.cooldowns) != 0 {
		t.Fatal("cleanup kept expired cooldown")
	}

	s.processDue(context.Background())
	if len(s.activeIDs) != 1 {
		t.Fatal("not picked once cooldown expired")
	}
	s.onResult(<-s.results)
	if _, ok := s.queue[op.SyncID]; ok {
		t.Fatal("successful op still queued")
	}
}

func TestProcessBatchesCollapsesPerEntity(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	a := taskOp("task_7", "active", testEpoch)
	b := taskOp("task_7", "completed", testEpoch.Add(time.Millisecond))
	c := taskOp("task_8", "active", testEpoch)

	s.batchQueue = append(s.batchQueue,
		dom.BatchEnvelope{BatchID: "b1", Ops: []dom.Operation{a, c}},
		dom.BatchEnvelope{BatchID: "b2", Ops: []dom.Operation{b}},
	)
	s.processBatches()

	if got := len(s.queue); got != 2 {
		t.Fatalf("queue = %d merged ops, want 2", got)
	}
	merged, ok := s.queue[a.SyncID]
	if !ok {
		t.Fatal("merge did not keep earlier identity")
	}
	if merged.Task == nil || merged.Task.Status != "completed" {
		t.Fatalf("merged status = %+v, want completed", merged.Task)
	}
	if got := s.Stats().BatchesProcessed; got != 2 {
		t.Fatalf("batches processed = %d, want 2", got)
	}
	if len(s.batchQueue) != 0 {
		t.Fatal("batch queue not drained")
	}
}

func TestProcessBatchesHighPriorityFirst(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)
	s.cfg.BatchSize = 1

	normal := taskOp("task_20", "active", testEpoch)
	urgent := taskOp("task_21", "completed", testEpoch)
	s.batchQueue = append(s.batchQueue,
		dom.BatchEnvelope{BatchID: "b1", Ops: []dom.Operation{normal}},
		dom.BatchEnvelope{BatchID: "b2", Priority: dom.PriorityHigh, Ops: []dom.Operation{urgent}},
	)

	s.processBatches()

	if _, ok := s.queue[urgent.SyncID]; !ok {
		t.Fatal("high priority envelope not drained first")
	}
	if _, ok := s.queue[normal.SyncID]; ok {
		t.Fatal("normal envelope drained ahead of budget")
	}
	if len(s.batchQueue) != 1 || s.batchQueue[0].BatchID != "b1" {
		t.Fatalf("leftover = %+v", s.batchQueue)
	}
}

func TestCleanupSparesActiveOps(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	op := taskOp("task_10", "active", testEpoch)
	s.accept(op)
	s.activeIDs[op.SyncID] = struct{}{}

	clk.Advance(10 * time.Minute)
	s.cleanup()

	if _, ok := s.queue[op.SyncID]; !ok {
		t.Fatal("cleanup dropped an in-flight op")
	}
}

func TestObserveFirstSampleThenDecay(t *testing.T) {
	var m metrics
	m.observe(100*time.Millisecond, testEpoch)
	if got := m.average(); got != 100 {
		t.Fatalf("first sample avg = %v, want 100", got)
	}
	m.observe(200*time.Millisecond, testEpoch)
	if got := m.average(); math.Abs(got-110) > 1e-9 {
		t.Fatalf("decayed avg = %v, want 110", got)
	}
}

func TestPersistRestoreRoundTrip(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	store := kv.NewMemoryWithClock(clk)
	s := newTestSvc(t, clk, store)

	pending := taskOp("task_11", "active", testEpoch)
	inflight := taskOp("task_12", "active", testEpoch)
	s.accept(pending)
	s.accept(inflight)
	s.activeIDs[inflight.SyncID] = struct{}{}

	s.persist(context.Background())

	s2 := newTestSvc(t, clk, store)
	s2.restore(context.Background())

	got, ok := s2.queue[pending.SyncID]
	if !ok {
		t.Fatal("pending op not restored")
	}
	if got.State != dom.StatePending {
		t.Fatalf("restored state = %q, want pending", got.State)
	}
	if got.Task == nil || got.Task.Status != "active" {
		t.Fatalf("restored payload = %+v", got.Task)
	}
	if _, ok := s2.queue[inflight.SyncID]; ok {
		t.Fatal("in-flight op should not have been persisted")
	}

	// restore deletes loaded keys so a crash never replays
	keys, err := store.Keys(context.Background(), kvSyncPrefix)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("restore left keys behind: %v", keys)
	}
}

func TestEnqueueRejectsMissingSyncID(t *testing.T) {
	clk := clock.NewManual(testEpoch)
	s := newTestSvc(t, clk, nil)

	_, err := s.Enqueue(context.Background(), dom.Operation{})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}
