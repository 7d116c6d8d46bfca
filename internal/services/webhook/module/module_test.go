package module

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"nafbridge/internal/modkit"
	"nafbridge/internal/platform/config"
	phttp "nafbridge/internal/platform/net/http"
	syncdom "nafbridge/internal/services/sync/domain"
	dom "nafbridge/internal/services/webhook/domain"
	"nafbridge/internal/services/webhook/service"
)

const testSecret = "hook-secret"

type enqStub struct {
	ops     []syncdom.Operation
	batches []syncdom.BatchEnvelope
}

func (e *enqStub) Enqueue(_ context.Context, op syncdom.Operation) (string, error) {
	e.ops = append(e.ops, op)
	return op.SyncID, nil
}

func (e *enqStub) EnqueueBatch(_ context.Context, env syncdom.BatchEnvelope) error {
	e.batches = append(e.batches, env)
	return nil
}

func newTestModule(t *testing.T) (*Module, *enqStub, http.Handler) {
	t.Helper()
	t.Setenv("WEBHOOK_SECRET", testSecret)

	enq := &enqStub{}
	m := New(modkit.Deps{Cfg: config.New()}, enq, nil, nil, nil)

	mux := chi.NewMux()
	m.MountRoutes(phttp.AdaptChi(mux))
	return m, enq, mux
}

func sign(body []byte) string {
	return service.NewVerifier(testSecret).Sign(body)
}

func post(t *testing.T, h http.Handler, path string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Naffles-Signature", signature)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	m, enq, h := newTestModule(t)

	body, _ := json.Marshal(dom.Event{
		EventType: dom.EventTaskStatusChanged,
		Data:      map[string]any{"taskId": "task_1", "newStatus": "active"},
	})
	rr := post(t, h, "/webhook", body, sign(body))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var receipt dom.Receipt
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if !receipt.Success || !receipt.Processed || receipt.SyncID == "" {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(enq.ops) != 1 || enq.ops[0].Key != "task_1" {
		t.Fatalf("enqueued = %+v", enq.ops)
	}
	if got := m.Service().Stats(); got.Received != 1 || got.Processed != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestWebhookRejectsTamperedSignature(t *testing.T) {
	m, enq, h := newTestModule(t)

	body, _ := json.Marshal(dom.Event{
		EventType: dom.EventTaskStatusChanged,
		Data:      map[string]any{"taskId": "task_1"},
	})
	sig := []byte(sign(body))
	// one flipped hex digit must fail closed
	if sig[0] == 'a' {
		sig[0] = 'b'
	} else {
		sig[0] = 'a'
	}

	rr := post(t, h, "/webhook", body, string(sig))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if len(enq.ops) != 0 {
		t.Fatal("tampered event reached the engine")
	}
	if got := m.Service().Stats(); got.Failed != 1 {
		t.Fatalf("failed counter = %d, want 1", got.Failed)
	}
}

func TestWebhookRateLimitKicksIn(t *testing.T) {
	t.Setenv("WEBHOOK_RATE_LIMIT", "3")
	_, _, h := newTestModule(t)

	body, _ := json.Marshal(dom.Event{
		EventType: dom.EventTaskStatusChanged,
		Data:      map[string]any{"taskId": "task_1", "newStatus": "active"},
	})
	sig := sign(body)

	for i := 0; i < 3; i++ {
		if rr := post(t, h, "/webhook", body, sig); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rr.Code)
		}
	}

	rr := post(t, h, "/webhook", body, sig)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
	var wire struct {
		RetryAfter int `json:"retry_after"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &wire); err != nil {
		t.Fatal(err)
	}
	if wire.RetryAfter < 1 || wire.RetryAfter > 60 {
		t.Fatalf("retry_after = %d", wire.RetryAfter)
	}
}

func TestWebhookBatchAllSettled(t *testing.T) {
	m, enq, h := newTestModule(t)

	body, _ := json.Marshal(dom.Batch{
		BatchID: "batch_1",
		Events: []dom.Event{
			{EventType: dom.EventTaskStatusChanged, Data: map[string]any{"taskId": "task_1", "newStatus": "active"}},
			{EventType: dom.EventTaskStatusChanged, Data: map[string]any{"newStatus": "active"}}, // no taskId
			{EventType: dom.EventAllowlistWinner, Data: map[string]any{"allowlistId": "al_1", "winners": []any{"u_1"}}},
		},
	})
	rr := post(t, h, "/webhook/batch", body, sign(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var receipt dom.BatchReceipt
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if receipt.Processed != 2 || receipt.Failed != 1 {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(receipt.Results) != 3 || receipt.Results[0].Success != true ||
		receipt.Results[1].Success != false || receipt.Results[2].Success != true {
		t.Fatalf("results = %+v", receipt.Results)
	}

	if len(enq.batches) != 1 || len(enq.batches[0].Ops) != 2 {
		t.Fatalf("envelope = %+v", enq.batches)
	}

	got := m.Service().Stats()
	if got.Received != 1 || got.Batches != 1 || got.Processed != 2 || got.Failed != 1 {
		t.Fatalf("stats = %+v", got)
	}
}

func TestWebhookUnknownTypeIsAcknowledged(t *testing.T) {
	_, enq, h := newTestModule(t)

	body, _ := json.Marshal(dom.Event{EventType: "raffle.spun"})
	rr := post(t, h, "/webhook", body, sign(body))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var receipt dom.Receipt
	if err := json.Unmarshal(rr.Body.Bytes(), &receipt); err != nil {
		t.Fatal(err)
	}
	if !receipt.Success || receipt.Processed {
		t.Fatalf("receipt = %+v", receipt)
	}
	if len(enq.ops) != 0 {
		t.Fatal("unknown event reached the engine")
	}
}
