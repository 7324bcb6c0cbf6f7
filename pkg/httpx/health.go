package httpx

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker is satisfied by any infrastructure dependency that exposes
// a Ping method (database.Database, cache.RedisClient and
// messaging.Connection all qualify).
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckerFunc adapts a function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthChecks maps a dependency name (as reported in the response) to its
// probe. A service registers only the dependencies it actually uses.
type HealthChecks map[string]HealthChecker

type healthResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks"`
}

// HealthHandler returns an http.HandlerFunc that probes all registered
// checkers and reports degraded status (503) if any of them fail.
func HealthHandler(service string, checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{
			Status:  "ok",
			Service: service,
			Checks:  make(map[string]string, len(checks)),
		}
		for name, c := range checks {
			if err := c.Ping(ctx); err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = "unreachable"
				continue
			}
			resp.Checks[name] = "ok"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		JSON(w, status, resp)
	}
}
