package health

import "context"

// DBPinger checks store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker checks one upstream dependency (translation provider, broadcaster).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
