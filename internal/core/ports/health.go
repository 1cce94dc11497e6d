package ports

import "context"

// HealthChecker is one dependency probed by GET /health.
type HealthChecker interface {
	// Ping returns nil when the dependency can serve ledger traffic.
	Ping(ctx context.Context) error
	// Name keys the dependency in the report: "postgresql", "redis" or "memory".
	Name() string
}
