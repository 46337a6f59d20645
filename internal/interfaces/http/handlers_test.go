package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/signals"
	"github.com/sawpanic/gerun/internal/store"
)

// fakePlansRepo records calls so handler tests can assert journal behavior
// without a database
type fakePlansRepo struct {
	inserted  []store.PlanRecord
	insertErr error

	latest    []store.PlanRecord
	latestErr error
	lastLimit int

	ranged   []store.PlanRecord
	rangeErr error
	lastFrom time.Time
	lastTo   time.Time
}

func (f *fakePlansRepo) Insert(ctx context.Context, rec store.PlanRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakePlansRepo) Latest(ctx context.Context, limit int) ([]store.PlanRecord, error) {
	f.lastLimit = limit
	return f.latest, f.latestErr
}

func (f *fakePlansRepo) ListRange(ctx context.Context, from, to time.Time) ([]store.PlanRecord, error) {
	f.lastFrom, f.lastTo = from, to
	return f.ranged, f.rangeErr
}

func newTestAPI(t *testing.T, mutate ...func(*Deps)) (*Server, Deps) {
	t.Helper()

	engine, err := alloc.NewEngine(alloc.DefaultConfig())
	require.NoError(t, err)

	deps := Deps{
		Engine:  engine,
		Metrics: NewMetricsRegistry(),
		Buffer:  signals.NewBuffer(),
	}
	for _, m := range mutate {
		m(&deps)
	}

	cfg := DefaultServerConfig()
	cfg.Port = 0

	health := NewHealthHandler(engine, nil, nil, deps.Hub, "test", "")
	srv, err := NewServer(cfg, NewHandlers(deps), health)
	require.NoError(t, err)
	return srv, deps
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(out))
}

func whipOpportunity() alloc.Opportunity {
	return alloc.Opportunity{
		ItemID:        4151,
		ItemName:      "Abyssal whip",
		BuyPrice:      1_800_000,
		SellPrice:     1_950_000,
		NetProfitGP:   111_000,
		MarginPercent: 6.17,
		Volume:        2500,
		Volatility:    15,
		TimeToFlip:    45,
		RiskLevel:     alloc.RiskMedium,
		Confidence:    0.8,
	}
}

func TestAllocate_ReturnsPlan(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  10_000_000,
		Opportunities: []alloc.Opportunity{whipOpportunity()},
		MarketSignals: alloc.MarketSignals{Volatility: 0.10, Liquidity: 0.80},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var plan alloc.AllocationPlan
	decodeInto(t, rec, &plan)

	assert.Equal(t, 10_000_000.0, plan.TotalCapital)
	assert.Greater(t, plan.TotalAllocated, 0.0)
	assert.InDelta(t, plan.TotalCapital, plan.TotalAllocated+plan.RemainingCapital, 0.01)
	assert.NotEmpty(t, plan.InstantFlips.Trades)
}

func TestAllocate_BadJSON(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPost, "/v1/allocation", "{not json")

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Error, "invalid request body")
	assert.NotEmpty(t, resp.RequestID)
}

func TestAllocate_InvalidOpportunity(t *testing.T) {
	srv, _ := newTestAPI(t)

	bad := whipOpportunity()
	bad.BuyPrice = -1

	rec := doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  1_000_000,
		Opportunities: []alloc.Opportunity{bad},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Error, "opportunity 0")
}

func TestAllocate_JournalsPlan(t *testing.T) {
	repo := &fakePlansRepo{}
	srv, _ := newTestAPI(t, func(d *Deps) { d.Plans = repo })

	rec := doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  5_000_000,
		Opportunities: []alloc.Opportunity{whipOpportunity()},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, 5_000_000.0, repo.inserted[0].TotalCapital)
	assert.NotEmpty(t, repo.inserted[0].PlanID)
}

func TestAllocate_JournalFailureDoesNotFailRequest(t *testing.T) {
	repo := &fakePlansRepo{insertErr: errFake}
	srv, _ := newTestAPI(t, func(d *Deps) { d.Plans = repo })

	rec := doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  5_000_000,
		Opportunities: []alloc.Opportunity{whipOpportunity()},
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var plan alloc.AllocationPlan
	decodeInto(t, rec, &plan)
	assert.Equal(t, 5_000_000.0, plan.TotalCapital)
}

func TestAllocationStatus_ReflectsCommittedPlan(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/allocation/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var before alloc.Status
	decodeInto(t, rec, &before)
	assert.Zero(t, before.UtilizationRate)
	assert.Equal(t, alloc.DefaultConfig(), before.Config)

	doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  10_000_000,
		Opportunities: []alloc.Opportunity{whipOpportunity()},
	})

	rec = doRequest(t, srv, http.MethodGet, "/v1/allocation/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var after alloc.Status
	decodeInto(t, rec, &after)
	assert.Greater(t, after.UtilizationRate, 0.0)
	assert.Greater(t, after.State.TotalCapitalUsed, 0.0)
}

func TestUpdateConfig_AppliesPatch(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPatch, "/v1/allocation/config",
		`{"instant_flip_allocation":0.5,"patient_offer_allocation":0.5}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var cfg alloc.Config
	decodeInto(t, rec, &cfg)
	assert.Equal(t, 0.5, cfg.InstantFlipAllocation)
	assert.Equal(t, 0.5, cfg.PatientOfferAllocation)
	assert.Equal(t, 0.05, cfg.MaxRiskPerTrade) // Untouched fields survive
}

func TestUpdateConfig_RejectsInvalidPatch(t *testing.T) {
	srv, deps := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPatch, "/v1/allocation/config",
		`{"max_risk_per_trade":-0.1}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Error, "max_risk_per_trade")

	// Live config unchanged
	assert.Equal(t, 0.05, deps.Engine.Config().MaxRiskPerTrade)
}

func TestUpdateConfig_BadJSON(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodPatch, "/v1/allocation/config", "nope")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpportunities_EmptyBuffer(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/opportunities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp opportunitiesResponse
	decodeInto(t, rec, &resp)
	assert.Empty(t, resp.Opportunities)
	assert.Zero(t, resp.Count)
}

func TestOpportunities_ReturnsBufferedBatch(t *testing.T) {
	srv, deps := newTestAPI(t)

	second := whipOpportunity()
	second.ItemID = 11832
	second.ItemName = "Bandos chestplate"
	deps.Buffer.Store([]alloc.Opportunity{whipOpportunity(), second})

	rec := doRequest(t, srv, http.MethodGet, "/v1/opportunities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp opportunitiesResponse
	decodeInto(t, rec, &resp)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, 4151, resp.Opportunities[0].ItemID)
	assert.Equal(t, 11832, resp.Opportunities[1].ItemID)
	assert.False(t, resp.UpdatedAt.IsZero())
}

func TestPlans_NotConfigured(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/plans", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPlans_LatestRespectsLimit(t *testing.T) {
	repo := &fakePlansRepo{latest: []store.PlanRecord{{PlanID: "a"}, {PlanID: "b"}}}
	srv, _ := newTestAPI(t, func(d *Deps) { d.Plans = repo })

	tests := []struct {
		name      string
		path      string
		wantCode  int
		wantLimit int
	}{
		{name: "default limit", path: "/v1/plans", wantCode: http.StatusOK, wantLimit: 20},
		{name: "explicit limit", path: "/v1/plans?limit=5", wantCode: http.StatusOK, wantLimit: 5},
		{name: "limit capped", path: "/v1/plans?limit=1000", wantCode: http.StatusOK, wantLimit: 200},
		{name: "zero limit rejected", path: "/v1/plans?limit=0", wantCode: http.StatusBadRequest},
		{name: "junk limit rejected", path: "/v1/plans?limit=abc", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, tt.path, nil)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, tt.wantLimit, repo.lastLimit)

				var resp struct {
					Plans []store.PlanRecord `json:"plans"`
					Count int                `json:"count"`
				}
				decodeInto(t, rec, &resp)
				assert.Equal(t, 2, resp.Count)
			}
		})
	}
}

func TestPlans_RangeQuery(t *testing.T) {
	repo := &fakePlansRepo{ranged: []store.PlanRecord{{PlanID: "a"}}}
	srv, _ := newTestAPI(t, func(d *Deps) { d.Plans = repo })

	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	rec := doRequest(t, srv, http.MethodGet,
		"/v1/plans?from="+from.Format(time.RFC3339)+"&to="+to.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, repo.lastFrom.Equal(from))
	assert.True(t, repo.lastTo.Equal(to))

	rec = doRequest(t, srv, http.MethodGet, "/v1/plans?from=yesterday", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet,
		"/v1/plans?from="+to.Format(time.RFC3339)+"&to="+from.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	decodeInto(t, rec, &resp)
	assert.Contains(t, resp.Error, "precede")
}

func TestNotFound_JSONEnvelope(t *testing.T) {
	srv, _ := newTestAPI(t)

	rec := doRequest(t, srv, http.MethodGet, "/v1/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "not found", resp.Error)
}

func TestCORS_LocalOriginOnly(t *testing.T) {
	srv, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/allocation/status", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/v1/allocation/status", nil)
	req.Header.Set("Origin", "http://example.com")
	rec = httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint_ExposesRegistry(t *testing.T) {
	srv, _ := newTestAPI(t)

	doRequest(t, srv, http.MethodPost, "/v1/allocation", allocateRequest{
		TotalCapital:  1_000_000,
		Opportunities: []alloc.Opportunity{whipOpportunity()},
	})

	rec := doRequest(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "gerun_ws_clients")
	assert.Contains(t, body, "gerun_allocation_requests_total")
	assert.Contains(t, body, `result="ok"`)
}

var errFake = errors.New("injected failure")
