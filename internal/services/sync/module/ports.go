package module

import dom "nafbridge/internal/services/sync/domain"

// Ports holds the ports exposed by the sync module
type Ports struct {
	Worker   dom.WorkerPort
	Enqueuer dom.EnqueuePort
	Stats    dom.StatsPort
}
