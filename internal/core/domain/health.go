package domain

// =============================================================================
// Service Health
// =============================================================================

// HealthStatus represents the health of a service or of a whole bundle.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// ServiceHealth is the observed runtime state of one composed service.
type ServiceHealth struct {
	// Service is the compose service name.
	Service string `json:"service"`

	// Container is the runtime container name, empty if none exists.
	Container string `json:"container,omitempty"`

	// State is the raw runtime state (running, exited, restarting, ...).
	State string `json:"state"`

	// Health is the mapped health status.
	Health HealthStatus `json:"health"`

	// Restarts is the restart count since container creation.
	Restarts int `json:"restarts"`
}
