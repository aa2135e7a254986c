package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/canvas-studio/engine/internal/api/types"
)

const readinessTimeout = 2 * time.Second

// Check is one readiness dependency, such as the database.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	checks []Check
}

func NewHealthHandler(checks ...Check) *HealthHandler { return &HealthHandler{checks: checks} }

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: map[string]string{"status": "ok"}})
}

// Readiness pings every dependency concurrently and reports each result.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var mu sync.Mutex
	results := map[string]string{}
	g, gctx := errgroup.WithContext(ctx)
	for _, c := range h.checks {
		g.Go(func() error {
			err := c.Ping(gctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[c.Name] = err.Error()
				return err
			}
			results[c.Name] = "ok"
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, types.APIResponse{
			Success: false,
			Data:    results,
			Error:   &types.APIError{Code: "unavailable", Message: "dependency not ready"},
		})
		return
	}
	results["status"] = "ready"
	writeJSON(w, http.StatusOK, types.APIResponse{Success: true, Data: results})
}
