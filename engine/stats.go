package engine

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// Stats is a resource snapshot of the engine process.
type Stats struct {
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Threads    int32   `json:"threads"`
}

// ProcessStats reads memory and CPU usage for pid.
func ProcessStats(ctx context.Context, pid int) (Stats, error) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid)) //nolint:gosec // pids fit in int32
	if err != nil {
		return Stats{}, fmt.Errorf("failed to inspect process %d: %w", pid, err)
	}

	var stats Stats
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read memory of process %d: %w", pid, err)
	}
	stats.RSSBytes = mem.RSS

	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil {
		stats.Threads = threads
	}
	return stats, nil
}
