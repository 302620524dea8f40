package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/database"
	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/pricecache"
)

// SystemHandlers serves operational health endpoints
type SystemHandlers struct {
	marketDB    *database.DB
	analyticsDB *database.DB
	cache       *pricecache.Cache
	log         zerolog.Logger
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(marketDB, analyticsDB *database.DB, cache *pricecache.Cache, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		marketDB:    marketDB,
		analyticsDB: analyticsDB,
		cache:       cache,
		log:         log.With().Str("component", "system_handlers").Logger(),
	}
}

type databaseHealth struct {
	OK        bool    `json:"ok"`
	Error     string  `json:"error,omitempty"`
	SizeMB    float64 `json:"size_mb"`
	WALSizeMB float64 `json:"wal_size_mb"`
}

type healthResponse struct {
	Status     string                    `json:"status"`
	CPUPercent float64                   `json:"cpu_percent"`
	MemPercent float64                   `json:"mem_percent"`
	DiskFreeGB float64                   `json:"disk_free_gb"`
	Databases  map[string]databaseHealth `json:"databases"`
	Cache      pricecache.Stats          `json:"cache"`
}

// HandleHealth reports process and database health.
// GET /api/system/health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Databases: make(map[string]databaseHealth),
		Cache:     h.cache.Stats(),
	}

	// 100ms sample keeps the endpoint fast for pollers
	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(cpuPercent) > 0 {
		resp.CPUPercent = cpuPercent[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if memStat, err := mem.VirtualMemory(); err == nil {
		resp.MemPercent = memStat.UsedPercent
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	if usage, err := disk.Usage(h.marketDB.Path()); err == nil {
		resp.DiskFreeGB = float64(usage.Free) / 1e9
	} else {
		h.log.Warn().Err(err).Msg("Failed to read disk usage")
	}

	for name, db := range map[string]*database.DB{
		"market":    h.marketDB,
		"analytics": h.analyticsDB,
	} {
		health := databaseHealth{OK: true}
		if err := db.QuickCheck(r.Context()); err != nil {
			health.OK = false
			health.Error = err.Error()
			resp.Status = "degraded"
		}
		if stats, err := db.GetStats(); err == nil {
			health.SizeMB = float64(stats.SizeBytes) / 1024 / 1024
			health.WALSizeMB = float64(stats.WALSizeBytes) / 1024 / 1024
		}
		resp.Databases[name] = health
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
