package handlers

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/fasthttp/router"

	xhttp "github.com/nimasrn/hlr-gateway/pkg/http"
)

// LookupStats aggregates audited lookups.
type LookupStats interface {
	CountByClassification(ctx context.Context, since time.Time) (map[string]int64, error)
}

// ReceiptStats aggregates settled delivery receipts.
type ReceiptStats interface {
	CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error)
}

// LiveStats exposes in-memory gauges from the running gateway.
type LiveStats interface {
	ActiveSessions() int
	PendingDeliveries() int
}

type StatsHandler struct {
	lookups  LookupStats
	receipts ReceiptStats
	live     LiveStats
}

func RegisterStatsRoutes(e *router.Group, h *StatsHandler) {
	e.GET("/stats", h.GetStats)
}

func NewStatsHandler(lookups LookupStats, receipts ReceiptStats, live LiveStats) *StatsHandler {
	return &StatsHandler{
		lookups:  lookups,
		receipts: receipts,
		live:     live,
	}
}

type statsResponse struct {
	WindowHours       int              `json:"window_hours"`
	ActiveSessions    int              `json:"active_sessions"`
	PendingDeliveries int              `json:"pending_deliveries"`
	Lookups           map[string]int64 `json:"lookups,omitempty"`
	Receipts          map[string]int64 `json:"receipts,omitempty"`
}

func (h *StatsHandler) GetStats(ctx *xhttp.RequestCtx) {
	hours := 24
	if raw := string(ctx.QueryArgs().Peek("hours")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			hours = n
		}
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	queryCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp := statsResponse{
		WindowHours:       hours,
		ActiveSessions:    h.live.ActiveSessions(),
		PendingDeliveries: h.live.PendingDeliveries(),
	}

	if h.lookups != nil {
		counts, err := h.lookups.CountByClassification(queryCtx, since)
		if err != nil {
			ctx.Error(err.Error(), xhttp.StatusInternalServerError)
			return
		}
		resp.Lookups = counts
	}
	if h.receipts != nil {
		counts, err := h.receipts.CountByOutcome(queryCtx, since)
		if err != nil {
			ctx.Error(err.Error(), xhttp.StatusInternalServerError)
			return
		}
		resp.Receipts = counts
	}

	body, _ := json.Marshal(resp)
	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetBody(body)
}
