package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fasthttp/router"

	xhttp "github.com/nimasrn/hlr-gateway/pkg/http"
)

// HealthChecker probes one dependency, Redis or Postgres.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]HealthChecker
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		checks: checks,
	}
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.checks {
		if err := check.Ping(probeCtx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	body, _ := json.Marshal(status)
	ctx.Response.Header.SetContentType("application/json")
	if !healthy {
		ctx.Response.SetStatusCode(xhttp.StatusServiceUnavailable)
	}
	ctx.Response.SetBody(body)
}
