package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/sawpanic/gerun/internal/alloc"
	"github.com/sawpanic/gerun/internal/marketdata"
)

// probeTimeout bounds each dependency check so a stuck backend cannot hang
// the health endpoint
const probeTimeout = 2 * time.Second

// Pinger is the slice of the plan journal the health endpoint needs
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler provides system health status endpoint
type HealthHandler struct {
	engine     *alloc.Engine
	source     marketdata.Source
	journal    Pinger
	hub        *PlanHub
	startTime  time.Time
	version    string
	buildStamp string
}

// NewHealthHandler creates a new health handler. source, journal and hub may
// be nil when the corresponding subsystem is not wired.
func NewHealthHandler(engine *alloc.Engine, source marketdata.Source, journal Pinger, hub *PlanHub, version, buildStamp string) *HealthHandler {
	return &HealthHandler{
		engine:     engine,
		source:     source,
		journal:    journal,
		hub:        hub,
		startTime:  time.Now(),
		version:    version,
		buildStamp: buildStamp,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string    `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp  time.Time `json:"timestamp"`
	Uptime     string    `json:"uptime"`
	Version    string    `json:"version"`
	BuildStamp string    `json:"build_stamp"`

	System SystemInfo             `json:"system"`
	Checks map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	MemSys        uint64 `json:"mem_sys_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status    string        `json:"status"` // "pass", "warn", "fail"
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := h.gatherHealthInfo(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	switch response.Status {
	case "healthy":
		w.WriteHeader(http.StatusOK)
	case "degraded":
		w.WriteHeader(http.StatusOK) // Still return 200 for degraded
	case "unhealthy":
		w.WriteHeader(http.StatusServiceUnavailable)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}

	response.Checks["health_endpoint"] = CheckResult{
		Status:    "pass",
		Message:   "Health endpoint responding",
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// gatherHealthInfo collects all health information
func (h *HealthHandler) gatherHealthInfo(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Timestamp:  time.Now(),
		Uptime:     time.Since(h.startTime).String(),
		Version:    h.version,
		BuildStamp: h.buildStamp,
		System:     h.getSystemInfo(),
		Checks:     make(map[string]CheckResult),
	}

	h.addDependencyChecks(ctx, &response)
	h.addAllocatorCheck(&response)
	h.addSystemChecks(&response)

	response.Status = h.calculateOverallStatus(response.Checks)

	return response
}

// getSystemInfo collects system runtime information
func (h *HealthHandler) getSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		MemSys:        memStats.Sys,
		NumGC:         memStats.NumGC,
	}
}

// addDependencyChecks probes the price source and the plan journal. A dead
// price source fails the service; a dead journal only degrades it because
// allocations still succeed without persistence.
func (h *HealthHandler) addDependencyChecks(ctx context.Context, response *HealthResponse) {
	if h.source != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		healthy := h.source.Healthy(probeCtx)
		cancel()

		if healthy {
			response.Checks["market_data"] = CheckResult{
				Status:    "pass",
				Message:   "Price source reachable",
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		} else {
			response.Checks["market_data"] = CheckResult{
				Status:    "fail",
				Message:   "Price source unavailable",
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		}
	} else {
		response.Checks["market_data"] = CheckResult{
			Status:    "warn",
			Message:   "No price source configured",
			Duration:  0,
			Timestamp: time.Now(),
		}
	}

	if h.journal != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := h.journal.Ping(probeCtx)
		cancel()

		if err != nil {
			response.Checks["plan_journal"] = CheckResult{
				Status:    "warn",
				Message:   fmt.Sprintf("Plan journal unreachable: %v", err),
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		} else {
			response.Checks["plan_journal"] = CheckResult{
				Status:    "pass",
				Message:   "Plan journal reachable",
				Duration:  time.Since(start),
				Timestamp: time.Now(),
			}
		}
	}

	if h.hub != nil {
		response.Checks["websocket"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("%d websocket clients connected", h.hub.ClientCount()),
			Duration:  0,
			Timestamp: time.Now(),
		}
	}
}

// addAllocatorCheck reports the engine's capital utilization
func (h *HealthHandler) addAllocatorCheck(response *HealthResponse) {
	if h.engine == nil {
		response.Checks["allocator"] = CheckResult{
			Status:    "fail",
			Message:   "Allocation engine not running",
			Duration:  0,
			Timestamp: time.Now(),
		}
		return
	}

	status := h.engine.Status()
	response.Checks["allocator"] = CheckResult{
		Status:    "pass",
		Message:   fmt.Sprintf("Capital utilization: %.1f%%", status.UtilizationRate*100),
		Duration:  0,
		Timestamp: time.Now(),
	}
}

// addSystemChecks adds system-level health checks
func (h *HealthHandler) addSystemChecks(response *HealthResponse) {
	// Memory usage check
	memUsagePercent := float64(response.System.MemAlloc) / float64(response.System.MemSys) * 100

	if memUsagePercent > 90 {
		response.Checks["memory"] = CheckResult{
			Status:    "fail",
			Message:   fmt.Sprintf("Memory usage critical: %.1f%%", memUsagePercent),
			Duration:  0,
			Timestamp: time.Now(),
		}
	} else if memUsagePercent > 75 {
		response.Checks["memory"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("Memory usage high: %.1f%%", memUsagePercent),
			Duration:  0,
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["memory"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Memory usage normal: %.1f%%", memUsagePercent),
			Duration:  0,
			Timestamp: time.Now(),
		}
	}

	// Goroutine count check
	if response.System.NumGoroutines > 1000 {
		response.Checks["goroutines"] = CheckResult{
			Status:    "warn",
			Message:   fmt.Sprintf("High goroutine count: %d", response.System.NumGoroutines),
			Duration:  0,
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["goroutines"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Goroutine count normal: %d", response.System.NumGoroutines),
			Duration:  0,
			Timestamp: time.Now(),
		}
	}

	// Uptime check
	uptime := time.Since(h.startTime)
	if uptime < time.Minute {
		response.Checks["uptime"] = CheckResult{
			Status:    "warn",
			Message:   "Service recently started",
			Duration:  0,
			Timestamp: time.Now(),
		}
	} else {
		response.Checks["uptime"] = CheckResult{
			Status:    "pass",
			Message:   fmt.Sprintf("Service uptime: %s", uptime.String()),
			Duration:  0,
			Timestamp: time.Now(),
		}
	}
}

// calculateOverallStatus determines overall service health
func (h *HealthHandler) calculateOverallStatus(checks map[string]CheckResult) string {
	for _, check := range checks {
		if check.Status == "fail" {
			return "unhealthy"
		}
	}

	for _, check := range checks {
		if check.Status == "warn" {
			return "degraded"
		}
	}

	return "healthy"
}
