// Package module wires the webhook ingress HTTP surface
package module

import (
	"context"
	"io"
	stdhttp "net/http"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/httpkit"
	"nafbridge/internal/platform/net/http/bind"
	"nafbridge/internal/platform/net/middleware"
	syncdom "nafbridge/internal/services/sync/domain"
	dom "nafbridge/internal/services/webhook/domain"
	"nafbridge/internal/services/webhook/service"

	phttp "nafbridge/internal/platform/net/http"
)

// maxBodyBytes caps inbound webhook bodies
const maxBodyBytes = 1 << 20

// HealthSource reports the bridge-wide health rollup for /health
type HealthSource interface {
	Health(ctx context.Context) (status string, services map[string]string)
}

// Module is the webhook ingress module
type Module struct {
	deps      modkit.Deps
	svc       *service.Svc
	stats     syncdom.StatsPort
	health    HealthSource
	limiter   *middleware.RateLimiter
	startedAt time.Time
}

// New constructs the ingress module. stats and health may be nil in
// reduced deployments, the endpoints degrade gracefully
func New(deps modkit.Deps, enq syncdom.EnqueuePort, stats syncdom.StatsPort, gw chat.Gateway, health HealthSource) *Module {
	opts := FromConfig(deps.Cfg)

	svc := service.New(deps, service.Config{
		Secret:           opts.Secret,
		BatchConcurrency: opts.BatchConcurrency,
		BroadcastChannel: opts.BroadcastChannel,
	}, enq, gw)

	clk := deps.Clock
	now := time.Now().UTC()
	if clk != nil {
		now = clk.Now()
	}

	return &Module{
		deps:   deps,
		svc:    svc,
		stats:  stats,
		health: health,
		limiter: middleware.NewRateLimiter(middleware.RateLimitOptions{
			Limit:  opts.RateLimit,
			Window: opts.RateWindow,
			Clock:  deps.Clock,
		}),
		startedAt: now,
	}
}

// Service exposes the concrete service for health probe wiring
func (m *Module) Service() *service.Svc { return m.svc }

// Limiter exposes the limiter so the entrypoint can sweep it
func (m *Module) Limiter() *middleware.RateLimiter { return m.limiter }

// Name returns the module name
func (m *Module) Name() string { return "webhook" }

// Ports returns nothing, the ingress is a pure HTTP edge
func (m *Module) Ports() any { return nil }

// MountRoutes mounts the ingress surface
func (m *Module) MountRoutes(r httpkit.Router) {
	r.Group(func(g httpkit.Router) {
		g.Use(m.limiter.Middleware)
		g.Post("/webhook", m.handleEvent)
		g.Post("/webhook/batch", m.handleBatch)
		g.Post("/register", m.handleRegister)
	})

	r.Get("/health", m.handleHealth)
	r.Get("/metrics", m.handleMetrics)
}

// handleEvent is POST /webhook
func (m *Module) handleEvent(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if err := m.svc.VerifySignature(body, r.Header.Get("X-Naffles-Signature")); err != nil {
		phttp.RespondError(w, r, err)
		return
	}

	ev, err := bind.ParseJSONBytes[dom.Event](body)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}

	receipt := m.svc.ProcessEvent(r.Context(), ev)
	status := stdhttp.StatusOK
	if !receipt.Success {
		status = stdhttp.StatusInternalServerError
	}
	phttp.JSON(w, status, receipt)
}

// handleBatch is POST /webhook/batch, surviving events always get a 200
// so the peer never replays them
func (m *Module) handleBatch(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	if err := m.svc.VerifySignature(body, r.Header.Get("X-Naffles-Signature")); err != nil {
		phttp.RespondError(w, r, err)
		return
	}

	batch, err := bind.ParseJSONBytes[dom.Batch](body)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}

	phttp.JSON(w, stdhttp.StatusOK, m.svc.ProcessBatch(r.Context(), batch))
}

// handleRegister is POST /register
func (m *Module) handleRegister(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	peer, err := bind.ParseJSON[map[string]any](r)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	reg, err := m.svc.Register(r.Context(), peer)
	if err != nil {
		phttp.RespondError(w, r, err)
		return
	}
	phttp.RespondOK(w, r, reg)
}

type healthWire struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	UptimeSec float64           `json:"uptime"`
	Metrics   any               `json:"metrics"`
	Services  map[string]string `json:"services"`
}

// handleHealth is GET /health
func (m *Module) handleHealth(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	now := time.Now().UTC()
	if m.deps.Clock != nil {
		now = m.deps.Clock.Now()
	}

	out := healthWire{
		Status:    "healthy",
		Timestamp: now,
		UptimeSec: now.Sub(m.startedAt).Seconds(),
		Metrics:   m.metricsSnapshot(),
		Services:  map[string]string{"webhook": "ok"},
	}
	if m.health != nil {
		out.Status, out.Services = m.health.Health(r.Context())
	}

	status := stdhttp.StatusOK
	if out.Status == "critical" {
		status = stdhttp.StatusServiceUnavailable
	}
	phttp.JSON(w, status, out)
}

// handleMetrics is GET /metrics
func (m *Module) handleMetrics(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	phttp.RespondOK(w, r, m.metricsSnapshot())
}

func (m *Module) metricsSnapshot() map[string]any {
	out := map[string]any{"webhook": m.svc.Stats()}
	if m.stats != nil {
		out["sync"] = m.stats.Stats()
	}
	return out
}
