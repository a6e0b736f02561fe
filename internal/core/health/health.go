// Package health maps raw container runtime state onto service health.
// Pure functions only - the Docker shell feeds observations in.
package health

import "github.com/homelab-sh/homelab/internal/core/domain"

// restartThreshold is the restart count above which a running service
// is considered degraded (likely crash-looping under the runtime's
// restart policy).
const restartThreshold = 3

// FromContainer maps one container's state onto a health status.
//
// state is the raw runtime state (running, exited, restarting, ...);
// healthCheck is the runtime health-check verdict when the service
// defines one ("healthy", "unhealthy", "starting", or empty).
func FromContainer(state, healthCheck string, restarts int) domain.HealthStatus {
	if state != "running" {
		return domain.HealthStatusUnhealthy
	}

	switch healthCheck {
	case "unhealthy":
		return domain.HealthStatusUnhealthy
	case "starting":
		return domain.HealthStatusDegraded
	}

	if restarts > restartThreshold {
		return domain.HealthStatusDegraded
	}

	return domain.HealthStatusHealthy
}

// Aggregate determines overall bundle health from per-service health.
// A service with no container at all counts as unhealthy: the bundle
// was composed expecting it to exist.
func Aggregate(services []domain.ServiceHealth) domain.HealthStatus {
	if len(services) == 0 {
		return domain.HealthStatusUnknown
	}

	unhealthy := 0
	degraded := 0
	for _, s := range services {
		switch s.Health {
		case domain.HealthStatusUnhealthy:
			unhealthy++
		case domain.HealthStatusDegraded:
			degraded++
		case domain.HealthStatusUnknown:
			degraded++
		}
	}

	if unhealthy == len(services) {
		return domain.HealthStatusUnhealthy
	}
	if unhealthy > 0 || degraded > 0 {
		return domain.HealthStatusDegraded
	}
	return domain.HealthStatusHealthy
}
