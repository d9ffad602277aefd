package services

import (
	"context"
	"fmt"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthImplementation implements the health probes
type HealthImplementation struct {
	deps map[string]Pinger
}

// NewHealthService creates a new health service. deps are checked by Readyz.
func NewHealthService(deps map[string]Pinger) *HealthImplementation {
	return &HealthImplementation{deps: deps}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(ctx context.Context) error {
	return nil
}

// Readyz implements the readiness probe
func (h *HealthImplementation) Readyz(ctx context.Context) error {
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			return fmt.Errorf("%s not ready: %w", name, err)
		}
	}
	return nil
}
