package module

import (
	"time"

	"nafbridge/internal/platform/config"
)

// Options controls the sync engine
type Options struct {
	ProcessInterval time.Duration
	BatchInterval   time.Duration
	CleanupInterval time.Duration
	PickBatch       int
	BatchSize       int
	MaxAge          time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	Cooldown        time.Duration
	NotifyOnChange  bool
}

// FromConfig reads with SYNC_ prefix
func FromConfig(cfg config.Conf) Options {
	c := cfg.Prefix("SYNC_")
	return Options{
		ProcessInterval: c.MayDuration("PROCESS_INTERVAL", 5*time.Second),
		BatchInterval:   c.MayDuration("BATCH_INTERVAL", 10*time.Second),
		CleanupInterval: c.MayDuration("CLEANUP_INTERVAL", 60*time.Second),
		PickBatch:       c.MayInt("PICK_BATCH", 10),
		BatchSize:       c.MayInt("BATCH_SIZE", 50),
		MaxAge:          c.MayDuration("MAX_AGE", 5*time.Minute),
		MaxRetries:      c.MayInt("MAX_RETRIES", 3),
		RetryDelay:      c.MayDuration("RETRY_DELAY", 5*time.Second),
		Cooldown:        c.MayDuration("COOLDOWN", 60*time.Second),
		NotifyOnChange:  c.MayBool("NOTIFY_ON_STATUS_CHANGE", true),
	}
}
