package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates the store is unreachable.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type namedChecker struct {
	name    string
	checker Checker
}

// Service coordinates health checks. The store is load-bearing; upstream
// providers only degrade.
type Service struct {
	db       DBPinger
	upstream []namedChecker
}

// New creates a Service.
func New(db DBPinger) *Service {
	return &Service{db: db}
}

// WithCheck registers an upstream dependency check. Nil checkers are skipped
// so unconfigured providers stay out of the report.
func (s *Service) WithCheck(name string, c Checker) *Service {
	if c != nil {
		s.upstream = append(s.upstream, namedChecker{name: name, checker: c})
	}
	return s
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	status := Healthy

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
		status = Unhealthy
	} else {
		checks["database"] = CheckOK
	}

	for _, nc := range s.upstream {
		if err := nc.checker.HealthCheck(ctx); err != nil {
			checks[nc.name] = CheckError
			if status == Healthy {
				status = Degraded
			}
		} else {
			checks[nc.name] = CheckOK
		}
	}

	return Report{Status: status, Checks: checks}
}
