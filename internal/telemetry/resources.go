package telemetry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"
)

// ResourceStats is one sample of host utilization.
type ResourceStats struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	MemoryUsedMB  uint64    `json:"memory_used_mb"`
	Goroutines    int       `json:"goroutines"`
	SampledAt     time.Time `json:"sampled_at"`
}

// ResourceSampler periodically samples CPU, memory and goroutine counts and
// logs them. The latest sample is kept for the API/health surface.
type ResourceSampler struct {
	mu     sync.RWMutex
	latest ResourceStats
	logger *logrus.Logger
}

func NewResourceSampler(logger *logrus.Logger) *ResourceSampler {
	return &ResourceSampler{logger: logger}
}

// Sample takes one measurement. CPU sampling blocks for one second.
func (s *ResourceSampler) Sample(ctx context.Context) (ResourceStats, error) {
	stats := ResourceStats{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}

	cpuPercent, err := cpu.PercentWithContext(ctx, time.Second, false)
	if err != nil {
		return stats, err
	}
	if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}

	memInfo, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, err
	}
	stats.MemoryPercent = memInfo.UsedPercent
	stats.MemoryUsedMB = memInfo.Used / 1024 / 1024

	s.mu.Lock()
	s.latest = stats
	s.mu.Unlock()
	return stats, nil
}

// Latest returns the most recent sample.
func (s *ResourceSampler) Latest() ResourceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Run samples on the given interval until the context ends.
func (s *ResourceSampler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.Sample(ctx)
			if err != nil {
				s.logger.WithError(err).Debug("Resource sample failed")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"cpu_percent":    stats.CPUPercent,
				"memory_percent": stats.MemoryPercent,
				"memory_used_mb": stats.MemoryUsedMB,
				"goroutines":     stats.Goroutines,
			}).Debug("Resource sample")
		}
	}
}
