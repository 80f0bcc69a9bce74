package runner

import (
	"context"
	"runtime"
	"time"
)

// Metrics captures performance data for one dataset run.
type Metrics struct {
	Timestamp       time.Time     `json:"timestamp"`
	TotalDuration   time.Duration `json:"total_duration"`
	ImagesPerSecond float64       `json:"images_per_second"`
	ImageCount      int           `json:"image_count"`
	InputCount      int           `json:"input_count"`
	FusedCount      int           `json:"fused_count"`
	Workers         int           `json:"workers"`
	MemoryStats     MemoryMetrics `json:"memory_stats"`
}

// MemoryMetrics captures memory usage statistics over a run.
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
}

// RunWithMetrics executes Run and reports throughput and allocation
// figures for the dataset, for comparing fusion configurations and
// variants (full vs. Fast ALFA, baselines) against each other.
//
// Arguments:
//   - ctx, strategy, images, workers: As for Run.
//
// Returns:
//   - []Result: One entry per input image, in input order.
//   - *Metrics: Timing and memory figures for the whole run.
//   - error: As for Run; metrics are nil on failure.
func RunWithMetrics(
	ctx context.Context,
	strategy Strategy,
	images []Image,
	workers int,
) ([]Result, *Metrics, error) {
	var startMem runtime.MemStats
	runtime.ReadMemStats(&startMem)

	start := time.Now()
	results, err := Run(ctx, strategy, images, workers)
	if err != nil {
		return nil, nil, err
	}
	elapsed := time.Since(start)

	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	metrics := &Metrics{
		Timestamp:     start,
		TotalDuration: elapsed,
		ImageCount:    len(images),
		Workers:       workers,
		MemoryStats: MemoryMetrics{
			AllocBytes:      endMem.Alloc,
			TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
			SysBytes:        endMem.Sys,
			NumGC:           endMem.NumGC - startMem.NumGC,
		},
	}
	if elapsed > 0 {
		metrics.ImagesPerSecond = float64(len(images)) / elapsed.Seconds()
	}
	for _, img := range images {
		for _, dets := range img.Detections {
			metrics.InputCount += len(dets)
		}
	}
	for _, r := range results {
		metrics.FusedCount += len(r.Fused)
	}
	return results, metrics, nil
}
