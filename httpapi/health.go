package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/queryflow/component"
	"github.com/kbukum/queryflow/observability"
)

// Health returns a handler reporting the health of every registered
// component. It answers 503 when any component is unhealthy.
func Health(service, version string, registry *component.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		sh := observability.NewServiceHealth(service, version)
		if registry != nil {
			for _, h := range registry.HealthAll(c.Request.Context()) {
				sh.AddComponent(observability.Health{
					Name:    h.Name,
					Status:  healthStatus(h.Status),
					Message: h.Message,
				})
			}
		}

		c.JSON(sh.HTTPStatus(), sh)
	}
}

func healthStatus(s component.HealthStatus) observability.HealthStatus {
	switch s {
	case component.StatusHealthy:
		return observability.HealthStatusUp
	case component.StatusDegraded:
		return observability.HealthStatusDegraded
	default:
		return observability.HealthStatusDown
	}
}
