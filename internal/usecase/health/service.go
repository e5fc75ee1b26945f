package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded means search or ingestion is impaired but storage answers.
	Degraded Status = "degraded"
	// Unhealthy means storage is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
	// CheckSaturated means the ingestion queue is full.
	CheckSaturated CheckResult = "saturated"
)

// Check names.
const (
	CheckDatabase  = "database"
	CheckEmbedding = "embedding"
	CheckIngestion = "ingestion"
)

// DefaultCheckTimeout bounds each probe.
const DefaultCheckTimeout = 3 * time.Second

// Report aggregates health check results.
type Report struct {
	Status     Status
	Checks     map[string]CheckResult
	QueueDepth int
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	embedding EmbeddingChecker
	queue     QueueProbe
	timeout   time.Duration
}

// New creates a Service that always probes the database.
func New(db DBPinger) *Service {
	return &Service{db: db, timeout: DefaultCheckTimeout}
}

// WithEmbedding adds the embedding provider probe.
func (s *Service) WithEmbedding(e EmbeddingChecker) *Service {
	s.embedding = e
	return s
}

// WithQueue adds the ingestion backlog probe.
func (s *Service) WithQueue(q QueueProbe) *Service {
	s.queue = q
	return s
}

// WithTimeout sets the per-probe timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Check runs every configured probe.
func (s *Service) Check(ctx context.Context) Report {
	r := Report{Status: Healthy, Checks: make(map[string]CheckResult, 3)}

	r.Checks[CheckDatabase] = s.probe(ctx, s.db.Ping)
	if s.embedding != nil {
		r.Checks[CheckEmbedding] = s.probe(ctx, s.embedding.HealthCheck)
	}
	if s.queue != nil {
		r.QueueDepth = s.queue.QueueDepth()
		r.Checks[CheckIngestion] = CheckOK
		if c := s.queue.QueueCapacity(); c > 0 && r.QueueDepth >= c {
			r.Checks[CheckIngestion] = CheckSaturated
		}
	}

	for name, v := range r.Checks {
		if v == CheckOK {
			continue
		}
		if name == CheckDatabase {
			r.Status = Unhealthy
			break
		}
		r.Status = Degraded
	}
	return r
}

func (s *Service) probe(ctx context.Context, fn func(context.Context) error) CheckResult {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := fn(pctx); err != nil {
		return CheckError
	}
	return CheckOK
}
