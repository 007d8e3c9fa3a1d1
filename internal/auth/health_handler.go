// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mailo-app/mailo/internal/store"
)

// HealthChecker reports whether one dependency is reachable.
// Satisfied by *store.PostgresStore, *store.RedisCache, and store.NoopCache.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthHandler holds the dependency checks behind GET /health.
type HealthHandler struct {
	PS    HealthChecker
	Cache HealthChecker
}

// CheckHealth handles GET /health -- pings Postgres and Redis, returns
// per-dependency status. 200 when everything reachable is healthy, 503 when
// anything is down. A deployment without Redis reports "disabled", not an error.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	redisStatus := "ok"
	postgresStatus := "ok"

	if err := h.Cache.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrCacheDisabled) {
			redisStatus = "disabled"
		} else {
			logError(r, "redis health check failed", "error", err)
			redisStatus = "error"
		}
	}
	if err := h.PS.CheckHealth(r.Context()); err != nil {
		logError(r, "postgres health check failed", "error", err)
		postgresStatus = "error"
	}

	w.Header().Set("Content-Type", "application/json")
	if redisStatus == "error" || postgresStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Postgres string `json:"postgres"`
		Redis    string `json:"redis"`
	}{postgresStatus, redisStatus})
}
