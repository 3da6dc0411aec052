package scheduler

import (
	"os"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats is a point-in-time resource and activity snapshot used by the
// periodic stats log and the `db stats` command.
type SystemStats struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	ProcessRSSMB  float64 `json:"process_rss_mb"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// GetSystemStats samples process and system memory alongside worker
// activity. Sampling failures degrade to zero values rather than erroring;
// stats are advisory.
func (l *Loop) GetSystemStats() SystemStats {
	stats := SystemStats{
		WorkersActive: l.ActiveWorkers(),
		WorkersTotal:  l.cfg.Workers,
	}

	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		stats.MemoryTotalGB = float64(vm.Total) / 1024 / 1024 / 1024
		stats.MemoryUsedGB = float64(vm.Total-vm.Available) / 1024 / 1024 / 1024
		stats.MemoryPercent = stats.MemoryUsedGB / stats.MemoryTotalGB * 100
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if info, err := proc.MemoryInfo(); err == nil {
			stats.ProcessRSSMB = float64(info.RSS) / 1024 / 1024
		}
	}

	return stats
}

// generateNodeID builds a default node identity when the config leaves it
// empty. Hostname plus a random suffix keeps restarts distinguishable in
// the lease columns.
func generateNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + uuid.New().String()[:8]
}
