package health

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/homelab-sh/homelab/internal/core/domain"
)

func TestFromContainer(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		healthCheck string
		restarts    int
		want        domain.HealthStatus
	}{
		{"running no healthcheck", "running", "", 0, domain.HealthStatusHealthy},
		{"running healthy", "running", "healthy", 0, domain.HealthStatusHealthy},
		{"running unhealthy", "running", "unhealthy", 0, domain.HealthStatusUnhealthy},
		{"running starting", "running", "starting", 0, domain.HealthStatusDegraded},
		{"exited", "exited", "", 0, domain.HealthStatusUnhealthy},
		{"restarting", "restarting", "", 0, domain.HealthStatusUnhealthy},
		{"crash looping", "running", "", 10, domain.HealthStatusDegraded},
		{"few restarts ok", "running", "", 2, domain.HealthStatusHealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromContainer(tt.state, tt.healthCheck, tt.restarts)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAggregate(t *testing.T) {
	svc := func(h domain.HealthStatus) domain.ServiceHealth {
		return domain.ServiceHealth{Health: h}
	}

	tests := []struct {
		name     string
		services []domain.ServiceHealth
		want     domain.HealthStatus
	}{
		{"no services", nil, domain.HealthStatusUnknown},
		{"all healthy", []domain.ServiceHealth{svc(domain.HealthStatusHealthy), svc(domain.HealthStatusHealthy)}, domain.HealthStatusHealthy},
		{"all unhealthy", []domain.ServiceHealth{svc(domain.HealthStatusUnhealthy), svc(domain.HealthStatusUnhealthy)}, domain.HealthStatusUnhealthy},
		{"one unhealthy", []domain.ServiceHealth{svc(domain.HealthStatusHealthy), svc(domain.HealthStatusUnhealthy)}, domain.HealthStatusDegraded},
		{"one degraded", []domain.ServiceHealth{svc(domain.HealthStatusHealthy), svc(domain.HealthStatusDegraded)}, domain.HealthStatusDegraded},
		{"unknown counts degraded", []domain.ServiceHealth{svc(domain.HealthStatusHealthy), svc(domain.HealthStatusUnknown)}, domain.HealthStatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.services))
		})
	}
}
