package server

import (
	"net/http"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// systemStatusResponse is the supplemented system status endpoint: a
// process-level health check (uptime, resource usage, database size,
// counts of configured monitors/alert rules) in the style of the
// teacher's own gopsutil-backed status handler.
type systemStatusResponse struct {
	Status       string  `json:"status"`
	UptimeHours  float64 `json:"uptime_hours"`
	CPUPercent   float64 `json:"cpu_percent"`
	RAMPercent   float64 `json:"ram_percent"`
	DatabaseMB   float64 `json:"database_mb"`
	MonitorCount int     `json:"monitor_count"`
	AlertCount   int     `json:"alert_count"`
}

// handleSystemStatus is the supplemented `GET /system/status`.
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.resourceUsage()

	dbSizeMB := 0.0
	if s.cfg != nil {
		if info, err := os.Stat(s.cfg.DatabasePath); err == nil {
			dbSizeMB = float64(info.Size()) / 1024 / 1024
		}
	}

	monitorCount := 0
	if monitors, err := s.eng.Monitors.List(false); err == nil {
		monitorCount = len(monitors)
	}
	alertCount := 0
	if rules, err := s.eng.Alerts.ListRules(false); err == nil {
		alertCount = len(rules)
	}

	writeJSON(w, http.StatusOK, systemStatusResponse{
		Status:       "healthy",
		UptimeHours:  time.Since(s.startedAt).Hours(),
		CPUPercent:   cpuPercent,
		RAMPercent:   ramPercent,
		DatabaseMB:   dbSizeMB,
		MonitorCount: monitorCount,
		AlertCount:   alertCount,
	})
}

// resourceUsage samples CPU/RAM over a short window so the status
// endpoint stays fast under the display's polling cadence.
func (s *Server) resourceUsage() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read cpu percent")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory stats")
		return firstOrZero(cpuPercent), 0
	}
	return firstOrZero(cpuPercent), memStat.UsedPercent
}

func firstOrZero(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return vals[0]
}
