package health

import "context"

// DBPinger checks storage availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// QueueProbe reports ingestion backlog.
type QueueProbe interface {
	QueueDepth() int
	QueueCapacity() int
}
