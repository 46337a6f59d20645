package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/marketdata"
)

type stubSource struct{ healthy bool }

func (s stubSource) LatestTicks(ctx context.Context) (map[int]marketdata.Tick, error) {
	return map[int]marketdata.Tick{}, nil
}

func (s stubSource) ItemMeta(ctx context.Context, itemID int) (marketdata.Meta, error) {
	return marketdata.Meta{}, marketdata.ErrItemUnknown
}

func (s stubSource) Healthy(ctx context.Context) bool { return s.healthy }

type stubPinger struct{ err error }

func (s stubPinger) Ping(ctx context.Context) error { return s.err }

func serveHealth(t *testing.T, h *HealthHandler) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func healthyEngine(t *testing.T) *alloc.Engine {
	t.Helper()
	engine, err := alloc.NewEngine(alloc.DefaultConfig())
	require.NoError(t, err)
	return engine
}

func TestHealth_AllDependenciesUp(t *testing.T) {
	h := NewHealthHandler(healthyEngine(t), stubSource{healthy: true}, stubPinger{}, nil, "1.0.0", "test")
	h.startTime = time.Now().Add(-5 * time.Minute) // Past the startup warning window

	rec, resp := serveHealth(t, h)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, "pass", resp.Checks["market_data"].Status)
	assert.Equal(t, "pass", resp.Checks["plan_journal"].Status)
	assert.Equal(t, "pass", resp.Checks["allocator"].Status)
	assert.Contains(t, resp.Checks, "memory")
	assert.Contains(t, resp.Checks, "goroutines")
	assert.Contains(t, resp.Checks, "uptime")
	assert.NotZero(t, resp.System.NumGoroutines)
}

func TestHealth_PriceSourceDownIsUnhealthy(t *testing.T) {
	h := NewHealthHandler(healthyEngine(t), stubSource{healthy: false}, nil, nil, "1.0.0", "test")

	rec, resp := serveHealth(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "fail", resp.Checks["market_data"].Status)
}

func TestHealth_JournalDownOnlyDegrades(t *testing.T) {
	h := NewHealthHandler(healthyEngine(t), stubSource{healthy: true}, stubPinger{err: errors.New("connection refused")}, nil, "1.0.0", "test")
	h.startTime = time.Now().Add(-5 * time.Minute)

	rec, resp := serveHealth(t, h)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "warn", resp.Checks["plan_journal"].Status)
	assert.Contains(t, resp.Checks["plan_journal"].Message, "unreachable")
}

func TestHealth_MissingEngineIsUnhealthy(t *testing.T) {
	h := NewHealthHandler(nil, stubSource{healthy: true}, nil, nil, "1.0.0", "test")

	rec, resp := serveHealth(t, h)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "fail", resp.Checks["allocator"].Status)
}

func TestHealth_RecentStartWarns(t *testing.T) {
	h := NewHealthHandler(healthyEngine(t), stubSource{healthy: true}, nil, nil, "1.0.0", "test")

	_, resp := serveHealth(t, h)

	assert.Equal(t, "warn", resp.Checks["uptime"].Status)
	assert.Equal(t, "degraded", resp.Status)
}
