// Package health aggregates component checks into a single readiness
// report.
package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
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
	Status    Status
	Checks    map[string]CheckResult
	IndexSize int
}

// Service coordinates health checks.
type Service struct {
	index      IndexStatus
	embedding  Checker
	generation Checker
	classifier Checker
}

// New creates a Service. Any checker may be nil; nil components are
// skipped.
func New(index IndexStatus, embedding, generation, classifier Checker) *Service {
	return &Service{
		index:      index,
		embedding:  embedding,
		generation: generation,
		classifier: classifier,
	}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)
	indexSize := 0

	if s.index != nil {
		if s.index.Available() {
			checks["index"] = CheckOK
			indexSize = s.index.IndexSize()
		} else {
			checks["index"] = CheckError
		}
	}

	probe := func(name string, c Checker) {
		if c == nil {
			return
		}
		if err := c.HealthCheck(ctx); err != nil {
			checks[name] = CheckError
		} else {
			checks[name] = CheckOK
		}
	}
	probe("embedding", s.embedding)
	probe("generation", s.generation)
	probe("classifier", s.classifier)

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, IndexSize: indexSize}
}
