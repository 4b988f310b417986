package server

import (
	"context"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/cryptosage/backend/internal/database"
	"github.com/cryptosage/backend/internal/scheduler"
	"github.com/cryptosage/backend/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// StatsSource reports storage statistics
type StatsSource interface {
	Name() string
	GetStats(ctx context.Context) (*database.Stats, error)
}

// JobRunner runs a job outside its schedule
type JobRunner interface {
	RunNow(job scheduler.Job) error
}

// SystemHandlers handles system monitoring and operations endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	db          StatsSource
	runner      JobRunner

	mu      sync.Mutex
	jobs    map[string]scheduler.Job
	running map[string]bool
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(db StatsSource, runner JobRunner, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		db:          db,
		runner:      runner,
		jobs:        make(map[string]scheduler.Job),
		running:     make(map[string]bool),
	}
}

// RegisterJob makes a job available for manual triggering
func (h *SystemHandlers) RegisterJob(job scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.jobs[job.Name()] = job
}

// SystemStatusResponse is returned by GET /api/system/status
type SystemStatusResponse struct {
	Status        string          `json:"status"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	MemoryUsedMB  float64         `json:"memory_used_mb"`
	HeapAllocMB   float64         `json:"heap_alloc_mb"`
	Goroutines    int             `json:"goroutines"`
	NumCPU        int             `json:"num_cpu"`
	Database      *database.Stats `json:"database,omitempty"`
}

// HandleSystemStatus returns host and process resource usage. Training
// is CPU bound, so this is the first place to look when predictions
// slow down.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startupTime).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
	}

	resp.CPUPercent, resp.MemoryPercent, resp.MemoryUsedMB = h.getSystemStats()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	resp.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024

	if h.db != nil {
		stats, err := h.db.GetStats(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to get database stats")
			resp.Status = "degraded"
		} else {
			resp.Database = stats
		}
	}

	h.writeResponse(w, r, http.StatusOK, resp)
}

// HandleDatabaseStats returns statistics for the portfolio store
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		_ = utils.WriteError(w, r, http.StatusServiceUnavailable, "database not configured")
		return
	}

	stats, err := h.db.GetStats(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get database stats")
		_ = utils.WriteError(w, r, http.StatusInternalServerError, "failed to get database stats")
		return
	}

	h.writeResponse(w, r, http.StatusOK, map[string]interface{}{
		h.db.Name(): stats,
	})
}

// JobStatus describes a registered job
type JobStatus struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// HandleListJobs lists jobs that can be triggered manually
func (h *SystemHandlers) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	jobs := make([]JobStatus, 0, len(h.jobs))
	for name := range h.jobs {
		jobs = append(jobs, JobStatus{Name: name, Running: h.running[name]})
	}
	h.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	h.writeResponse(w, r, http.StatusOK, jobs)
}

// HandleTriggerJob starts a registered job in the background
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.Lock()
	job, ok := h.jobs[name]
	if !ok {
		h.mu.Unlock()
		_ = utils.WriteError(w, r, http.StatusNotFound, "unknown job: "+name)
		return
	}
	if h.running[name] {
		h.mu.Unlock()
		_ = utils.WriteError(w, r, http.StatusConflict, "job already running: "+name)
		return
	}
	h.running[name] = true
	h.mu.Unlock()

	h.log.Info().Str("job", name).Msg("Manual job triggered")

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.running, name)
			h.mu.Unlock()
		}()
		if err := h.runner.RunNow(job); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manual job failed")
		}
	}()

	h.writeResponse(w, r, http.StatusAccepted, map[string]string{
		"status": "started",
		"job":    name,
	})
}

// getSystemStats returns CPU percent, RAM percent and RAM used in MB.
// The 100ms CPU sample keeps the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64, float64) {
	cpuAvg := 0.0
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuAvg, 0, 0
	}

	return cpuAvg, memStat.UsedPercent, float64(memStat.Used) / 1024 / 1024
}

func (h *SystemHandlers) writeResponse(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := utils.WriteResponse(w, r, status, data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
