// Package handler provides HTTP handlers for the navigation API.
package handler

import (
	"net/http"
	"time"

	"github.com/browsernavi/navi/internal/api/models"
	"github.com/browsernavi/navi/internal/api/response"
	"github.com/browsernavi/navi/internal/navigation"
	"github.com/browsernavi/navi/internal/provider/resilience"
)

// StatusReporter reports the current navigation status.
type StatusReporter interface {
	Snapshot() navigation.Snapshot
}

// OpsConfig holds the dependencies of the ops handler.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Registry tracks backend circuit breakers (optional).
	Registry *resilience.Registry

	// Order is the routing fallback order reported by the backends endpoint.
	Order []string

	// Engine adds the navigation status to health details (optional).
	Engine StatusReporter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	registry  *resilience.Registry
	order     []string
	engine    StatusReporter
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		registry:  cfg.Registry,
		order:     cfg.Order,
		engine:    cfg.Engine,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	details := map[string]interface{}{
		"version":   h.version,
		"buildTime": h.buildTime,
	}
	if h.engine != nil {
		details["navigation"] = string(h.engine.Snapshot().Status)
	}

	response.JSON(w, r, http.StatusOK, models.Health{
		Status:  h.backendsStatus(h.backendHealth()),
		Time:    models.Timestamp(time.Now()),
		Details: details,
	})
}

// ListBackends handles GET /v1/ops/backends - circuit breaker state of every
// remote backend.
func (h *OpsHandler) ListBackends(w http.ResponseWriter, r *http.Request) {
	health := h.backendHealth()

	backends := make([]models.BackendStatus, len(health))
	for i, b := range health {
		backends[i] = models.BackendStatus{
			Name:                b.Name,
			Status:              healthStatus(b),
			CircuitState:        b.CircuitState.String(),
			Requests:            b.Counts.Requests,
			ConsecutiveFailures: b.Counts.ConsecutiveFailures,
			LastError:           b.LastError,
		}
		if b.LastSuccessAt != nil {
			backends[i].LastSuccessAt = models.NewTimestamp(*b.LastSuccessAt)
		}
		if b.LastFailureAt != nil {
			backends[i].LastFailureAt = models.NewTimestamp(*b.LastFailureAt)
		}
	}

	order := h.order
	if order == nil {
		order = []string{}
	}
	response.JSON(w, r, http.StatusOK, models.BackendsResponse{
		Status:   h.backendsStatus(health),
		Order:    order,
		Backends: backends,
	})
}

func (h *OpsHandler) backendHealth() []*resilience.BackendHealth {
	if h.registry == nil {
		return nil
	}
	return h.registry.GetAllHealth()
}

// backendsStatus is FAIL when every routing backend is open, DEGRADED when
// any backend is unhealthy or degraded, OK otherwise.
func (h *OpsHandler) backendsStatus(health []*resilience.BackendHealth) models.HealthStatus {
	routed := make(map[string]bool, len(h.order))
	for _, name := range h.order {
		routed[name] = true
	}

	status := models.HealthStatusOK
	openRouting := 0
	for _, b := range health {
		if healthStatus(b) != models.HealthStatusOK {
			status = models.HealthStatusDegraded
		}
		if routed[b.Name] && b.IsUnhealthy() {
			openRouting++
		}
	}
	if len(routed) > 0 && openRouting == len(routed) {
		return models.HealthStatusFail
	}
	return status
}

func healthStatus(b *resilience.BackendHealth) models.HealthStatus {
	switch {
	case b.IsUnhealthy():
		return models.HealthStatusFail
	case b.IsDegraded():
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
