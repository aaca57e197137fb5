package health

import "context"

// IndexStatus reports whether the vector index is loaded and how many
// chunks it holds.
type IndexStatus interface {
	Available() bool
	IndexSize() int
}

// Checker probes a remote dependency.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
