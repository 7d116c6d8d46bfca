// Command nafbridge runs the Discord to Naffles bridge.
//
// Modes:
//   - worker: webhook ingress, sync engine, policy reloads, and monitor
//   - reconcile: one sweep refreshing every indexed entity, then exit
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nafbridge/internal/adapters/chat"
	"nafbridge/internal/adapters/naffles"
	"nafbridge/internal/modkit"
	"nafbridge/internal/modkit/module"
	"nafbridge/internal/platform/clock"
	"nafbridge/internal/platform/config"
	"nafbridge/internal/platform/kv"
	"nafbridge/internal/platform/logger"
	phttp "nafbridge/internal/platform/net/http"
	"nafbridge/internal/platform/net/http/bind"
	"nafbridge/internal/platform/net/middleware"
	"nafbridge/internal/platform/store"

	monmod "nafbridge/internal/services/monitor/module"
	monsvc "nafbridge/internal/services/monitor/service"
	polmod "nafbridge/internal/services/policy/module"
	syncmod "nafbridge/internal/services/sync/module"
	webmod "nafbridge/internal/services/webhook/module"
)

func main() {
	root := config.New()
	l := logger.Get()
	bind.Init()

	var (
		fMode = flag.String("mode", "worker", "bridge mode: worker | reconcile")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgCfg := root.Prefix("BRIDGE_PGSQL_")
	chCfg := root.Prefix("BRIDGE_CH_")
	st, err := store.Open(ctx, store.Config{
		AppName: "nafbridge",
		PG: store.PGConfig{
			Enabled:     pgCfg.MayBool("ENABLED", false),
			URL:         pgCfg.MayString("DBURL", ""),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 8)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
		CH: store.CHConfig{
			Enabled: chCfg.MayBool("ENABLED", false),
			URL:     chCfg.MayString("URL", ""),
			Role:    *fMode,
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("store close failed")
		}
	}()

	// durable KV when postgres is on, in-memory otherwise
	var cache kv.KV = kv.NewMemory()
	if st.PG != nil {
		cache = kv.NewPG(st.PG, nil)
	}

	deps := modkit.Deps{
		Log:   *l,
		Cfg:   root,
		PG:    st.PG,
		CH:    st.CH,
		KV:    cache,
		Clock: clock.System{},
	}

	nafCfg := root.Prefix("NAFFLES_")
	platform := naffles.NewClient(naffles.Options{
		BaseURL: nafCfg.MustString("API_URL"),
		APIKey:  nafCfg.MustString("API_KEY"),
	})

	chatCfg := root.Prefix("CHAT_")
	gw := chat.NewREST(chat.RESTOptions{
		BaseURL:  chatCfg.MayString("API_URL", "https://discord.com/api/v10"),
		BotToken: chatCfg.MustString("BOT_TOKEN"),
	})

	polm := polmod.New(deps)
	syncm := syncmod.New(deps, platform, gw, syncmod.Options{})
	module.Register(polm.Name(), polm.Ports())
	module.Register(syncm.Name(), syncm.Ports())

	syncPorts, ok := module.PortsAs[syncmod.Ports]("sync")
	if !ok {
		l.Panic().Msg("sync ports not registered")
	}
	polPorts, ok := module.PortsAs[polmod.Ports]("policy")
	if !ok {
		l.Panic().Msg("policy ports not registered")
	}

	monm := monmod.New(deps, monsvc.Sources{
		Sync:   syncPorts.Stats,
		Policy: polPorts.Stats,
	}, gw)

	webm := webmod.New(deps, syncPorts.Enqueuer, syncPorts.Stats, gw, monm.Service())
	monm.Service().SetWebhookSource(webm.Service())

	switch *fMode {
	case "worker":
		runWorker(ctx, root, l, syncPorts, polm, monm, webm)

	case "reconcile":
		n, err := syncm.Service().Reconcile(ctx)
		if err != nil {
			l.Fatal().Err(err).Msg("reconcile sweep failed")
		}
		l.Info().Int("refreshed", n).Msg("reconcile done")

	default:
		l.Panic().Str("mode", *fMode).Msg("unknown -mode (expected: worker | reconcile)")
	}
}

func runWorker(
	ctx context.Context,
	cfg config.Conf,
	l *logger.Logger,
	sync syncmod.Ports,
	polm *polmod.Module,
	monm *monmod.Module,
	webm *webmod.Module,
) {
	server := phttp.NewServer(cfg)
	webm.MountRoutes(server.Router())

	go func() {
		if err := polm.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("policy reload loop stopped")
		}
	}()
	go func() {
		if err := monm.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("monitor stopped")
		}
	}()
	go sweepLimiter(ctx, webm.Limiter())
	go func() {
		if err := server.Run(ctx); err != nil {
			l.Error().Err(err).Msg("http server failed")
		}
	}()

	if err := sync.Worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		l.Fatal().Err(err).Msg("sync engine failed")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutCtx); err != nil {
		l.Error().Err(err).Msg("http shutdown failed")
	}
}

func sweepLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep()
		}
	}
}
