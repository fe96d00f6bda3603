package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xhttp "github.com/nimasrn/hlr-gateway/pkg/http"
)

type stubLookupStats struct {
	counts map[string]int64
	err    error
}

func (s *stubLookupStats) CountByClassification(ctx context.Context, since time.Time) (map[string]int64, error) {
	return s.counts, s.err
}

type stubReceiptStats struct {
	counts map[string]int64
}

func (s *stubReceiptStats) CountByOutcome(ctx context.Context, since time.Time) (map[string]int64, error) {
	return s.counts, nil
}

type stubLiveStats struct {
	sessions int
	pending  int
}

func (s *stubLiveStats) ActiveSessions() int    { return s.sessions }
func (s *stubLiveStats) PendingDeliveries() int { return s.pending }

func TestGetStats(t *testing.T) {
	h := NewStatsHandler(
		&stubLookupStats{counts: map[string]int64{"VALID": 10, "INVALID": 3}},
		&stubReceiptStats{counts: map[string]int64{"delivered": 7}},
		&stubLiveStats{sessions: 2, pending: 5},
	)

	var ctx xhttp.RequestCtx
	ctx.Request.SetRequestURI("/stats?hours=6")
	h.GetStats(&ctx)

	require.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())

	var resp statsResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, 6, resp.WindowHours)
	assert.Equal(t, 2, resp.ActiveSessions)
	assert.Equal(t, 5, resp.PendingDeliveries)
	assert.Equal(t, int64(10), resp.Lookups["VALID"])
	assert.Equal(t, int64(7), resp.Receipts["delivered"])
}

func TestGetStatsDefaultWindow(t *testing.T) {
	h := NewStatsHandler(nil, nil, &stubLiveStats{})

	var ctx xhttp.RequestCtx
	ctx.Request.SetRequestURI("/stats")
	h.GetStats(&ctx)

	var resp statsResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	assert.Equal(t, 24, resp.WindowHours)
	assert.Nil(t, resp.Lookups)
}

func TestGetStatsQueryError(t *testing.T) {
	h := NewStatsHandler(&stubLookupStats{err: errors.New("db down")}, nil, &stubLiveStats{})

	var ctx xhttp.RequestCtx
	ctx.Request.SetRequestURI("/stats")
	h.GetStats(&ctx)

	assert.Equal(t, xhttp.StatusInternalServerError, ctx.Response.StatusCode())
}

type stubChecker struct {
	err error
}

func (s *stubChecker) Ping(ctx context.Context) error { return s.err }

func TestGetHealth(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{
		"redis":    &stubChecker{},
		"postgres": &stubChecker{},
	})

	var ctx xhttp.RequestCtx
	ctx.Request.SetRequestURI("/health")
	h.GetHealth(&ctx)

	require.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())

	var status map[string]string
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &status))
	assert.Equal(t, "ok", status["redis"])
	assert.Equal(t, "ok", status["postgres"])
}

func TestGetHealthDegraded(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{
		"redis": &stubChecker{err: errors.New("connection refused")},
	})

	var ctx xhttp.RequestCtx
	ctx.Request.SetRequestURI("/health")
	h.GetHealth(&ctx)

	assert.Equal(t, xhttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}
