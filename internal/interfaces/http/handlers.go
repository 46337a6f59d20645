package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/signals"
	"github.com/sawpanic/gerun/internal/store"
)

// Deps carries the collaborators the handlers serve. Engine and Metrics are
// required; the rest degrade gracefully when absent.
type Deps struct {
	Engine  *alloc.Engine
	Metrics *MetricsRegistry
	Buffer  *signals.Buffer // Latest validated opportunity batch
	Plans   store.PlansRepo // Plan journal, optional
	Hub     *PlanHub        // Websocket fan-out, optional
}

// Handlers implements the JSON API
type Handlers struct {
	deps Deps
}

// NewHandlers creates the handler set
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

// allocateRequest is the POST /v1/allocation body
type allocateRequest struct {
	TotalCapital  float64             `json:"total_capital"`
	Opportunities []alloc.Opportunity `json:"opportunities"`
	MarketSignals alloc.MarketSignals `json:"market_signals"`
}

// errorResponse is the uniform error envelope
type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Allocate runs one allocation and returns the plan. The computed plan is
// journaled and broadcast as side effects; neither failure blocks the
// response.
func (h *Handlers) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.deps.Metrics.RecordAllocation("invalid", 0)
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	start := time.Now()
	plan, err := h.deps.Engine.AllocateCapital(r.Context(), req.TotalCapital, req.Opportunities, req.MarketSignals)
	if err != nil {
		if errors.Is(err, alloc.ErrInvalidOpportunity) {
			h.deps.Metrics.RecordAllocation("invalid", 0)
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		h.deps.Metrics.RecordAllocation("error", 0)
		respondError(w, r, http.StatusInternalServerError, "allocation failed")
		return
	}

	h.deps.Metrics.RecordAllocation("ok", time.Since(start))
	h.deps.Metrics.RecordPlan(plan)
	h.journal(r, plan)
	if h.deps.Hub != nil {
		h.deps.Hub.BroadcastPlan(plan)
	}

	respondJSON(w, http.StatusOK, plan)
}

// journal writes the plan to the store when one is configured
func (h *Handlers) journal(r *http.Request, plan *alloc.AllocationPlan) {
	if h.deps.Plans == nil {
		return
	}
	timer := h.deps.Metrics.StartStepTimer("journal")
	rec := store.NewRecord(plan)
	if err := h.deps.Plans.Insert(r.Context(), rec); err != nil {
		timer.Stop("error")
		log.Warn().Err(err).Str("plan_id", rec.PlanID).Msg("plan journal write failed")
		return
	}
	timer.Stop("ok")
}

// AllocationStatus returns the engine's last committed state and live config
func (h *Handlers) AllocationStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.deps.Engine.Status())
}

// UpdateConfig merges a configuration patch into the running engine
func (h *Handlers) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch alloc.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.deps.Engine.UpdateConfig(patch); err != nil {
		if errors.Is(err, alloc.ErrInvalidConfig) {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, r, http.StatusInternalServerError, "config update failed")
		return
	}

	respondJSON(w, http.StatusOK, h.deps.Engine.Config())
}

// opportunitiesResponse wraps the buffered batch with its capture time
type opportunitiesResponse struct {
	Opportunities []alloc.Opportunity `json:"opportunities"`
	UpdatedAt     time.Time           `json:"updated_at"`
	Count         int                 `json:"count"`
}

// Opportunities returns the latest validated batch from the signal feed
func (h *Handlers) Opportunities(w http.ResponseWriter, r *http.Request) {
	if h.deps.Buffer == nil {
		respondJSON(w, http.StatusOK, opportunitiesResponse{Opportunities: []alloc.Opportunity{}})
		return
	}

	opps, updatedAt := h.deps.Buffer.Latest()
	if opps == nil {
		opps = []alloc.Opportunity{}
	}
	respondJSON(w, http.StatusOK, opportunitiesResponse{
		Opportunities: opps,
		UpdatedAt:     updatedAt,
		Count:         len(opps),
	})
}

const (
	defaultPlansLimit = 20
	maxPlansLimit     = 200
)

// Plans reads allocation history back out of the journal. With from/to
// parameters it returns the range; otherwise the most recent plans up to
// limit.
func (h *Handlers) Plans(w http.ResponseWriter, r *http.Request) {
	if h.deps.Plans == nil {
		respondError(w, r, http.StatusServiceUnavailable, "plan journal not configured")
		return
	}

	query := r.URL.Query()
	if query.Has("from") || query.Has("to") {
		from, to, err := parseRange(query.Get("from"), query.Get("to"))
		if err != nil {
			respondError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		records, err := h.deps.Plans.ListRange(r.Context(), from, to)
		if err != nil {
			log.Error().Err(err).Msg("plan range query failed")
			respondError(w, r, http.StatusInternalServerError, "plan journal read failed")
			return
		}
		respondJSON(w, http.StatusOK, plansPayload(records))
		return
	}

	limit := defaultPlansLimit
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			respondError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxPlansLimit)
	}

	records, err := h.deps.Plans.Latest(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("latest plans query failed")
		respondError(w, r, http.StatusInternalServerError, "plan journal read failed")
		return
	}
	respondJSON(w, http.StatusOK, plansPayload(records))
}

func plansPayload(records []store.PlanRecord) map[string]any {
	if records == nil {
		records = []store.PlanRecord{}
	}
	return map[string]any{"plans": records, "count": len(records)}
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	from := time.Time{}
	to := time.Now().UTC()

	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = parsed
	}
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = parsed
	}
	if !from.IsZero() && to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}

// NotFound keeps unknown paths on the JSON envelope
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	respondError(w, r, http.StatusNotFound, "not found")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, status, errorResponse{
		Error:     message,
		RequestID: RequestIDFrom(r.Context()),
	})
}
