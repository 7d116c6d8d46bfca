package domain

import "context"

// EnqueuePort accepts work from webhook handlers and never blocks them
type EnqueuePort interface {
	// Enqueue queues one operation, returns the accepted syncId
	Enqueue(ctx context.Context, op Operation) (string, error)

	// EnqueueBatch queues a webhook batch for merge-and-collapse processing
	EnqueueBatch(ctx context.Context, env BatchEnvelope) error
}

// WorkerPort is the engine run loop
type WorkerPort interface {
	Run(ctx context.Context) error
}

// StatsPort exposes lock-free counter snapshots to the monitor
type StatsPort interface {
	Stats() Stats
}
