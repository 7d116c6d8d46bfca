package module

import (
	"time"

	"nafbridge/internal/platform/config"
)

// Options controls the ingress surface
type Options struct {
	Secret           string
	RateLimit        int
	RateWindow       time.Duration
	BatchConcurrency int
	BroadcastChannel string
}

// FromConfig reads with WEBHOOK_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("WEBHOOK_")
	return Options{
		Secret:           c.MayString("SECRET", ""),
		RateLimit:        c.MayInt("RATE_LIMIT", 100),
		RateWindow:       c.MayDuration("RATE_WINDOW", time.Minute),
		BatchConcurrency: c.MayInt("BATCH_CONCURRENCY", 10),
		BroadcastChannel: c.MayString("BROADCAST_CHANNEL", ""),
	}
}
