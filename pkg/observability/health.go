package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// Pinger is implemented by dependencies that can report reachability,
// such as the remote policy service client.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker probes the service's dependencies
type HealthChecker struct {
	db            *sql.DB
	redis         *redis.Client
	policyService Pinger
}

// NewHealthChecker creates a new health checker. Any dependency may be nil
// and is then skipped.
func NewHealthChecker(db *sql.DB, rdb *redis.Client, policyService Pinger) *HealthChecker {
	return &HealthChecker{
		db:            db,
		redis:         rdb,
		policyService: policyService,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus represents the health of a single dependency
type DependencyStatus struct {
	Status  string        `json:"status"`
	Message string        `json:"message,omitempty"`
	Latency time.Duration `json:"latency_ms,omitempty"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Liveness is a simple liveness probe
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now(),
	})
}

// Readiness checks all dependencies; 503 when unhealthy
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// Check probes every configured dependency. The database and the policy
// service are load-bearing; Redis only caches policy rows, so a Redis
// outage degrades rather than fails the service.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now(),
		Dependencies: make(map[string]DependencyStatus),
	}

	if h.db != nil {
		dep := h.checkDatabase(ctx)
		status.Dependencies["database"] = dep
		if dep.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}

	if h.policyService != nil {
		dep := probe(ctx, h.policyService.Ping)
		status.Dependencies["policy_service"] = dep
		if dep.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}

	if h.redis != nil {
		dep := probe(ctx, func(ctx context.Context) error {
			return h.redis.Ping(ctx).Err()
		})
		status.Dependencies["redis"] = dep
		if dep.Status == StatusUnhealthy && status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}

	return status
}

// checkDatabase verifies connectivity and pool headroom
func (h *HealthChecker) checkDatabase(ctx context.Context) DependencyStatus {
	dep := probe(ctx, h.db.PingContext)
	if dep.Status != StatusHealthy {
		return dep
	}

	stats := h.db.Stats()
	if stats.MaxOpenConnections > 0 && stats.OpenConnections >= stats.MaxOpenConnections {
		dep.Status = StatusDegraded
		dep.Message = "connection pool exhausted"
	}
	return dep
}

func probe(ctx context.Context, ping func(context.Context) error) DependencyStatus {
	start := time.Now()
	dep := DependencyStatus{Status: StatusHealthy}

	if err := ping(ctx); err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	dep.Latency = time.Since(start)
	return dep
}

// RegisterHealthRoutes registers health check endpoints
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
