// Package baselines - simpler late-fusion strategies compared against ALFA.
//
// Each baseline satisfies the same per-image contract as fusion.Fuser:
// detections keyed by source detector in, fused detections ordered by
// descending confidence out. They share none of ALFA's clustering
// machinery and are deliberately kept as independent strategies.
package baselines

import (
	"sort"

	"github.com/nvr-ai/go-fusion/detections"
)

// NMS pools every detector's detections and applies greedy Non-Maximum
// Suppression: the surviving set contains each locally best box with all
// sufficiently overlapping rivals suppressed. No score corroboration takes
// place; a kept detection passes through with its original confidence.
type NMS struct {
	// IoUThreshold is the overlap above which a lower-scored box is
	// suppressed.
	IoUThreshold float32
	// ClassAware restricts suppression to boxes of the same class.
	ClassAware bool
	// ScoreThreshold drops detections below this confidence from the
	// output.
	ScoreThreshold float32
}

// FuseImage runs greedy NMS over the pooled detections for one image.
//
// Arguments:
//   - perDetector: This image's detections keyed by source detector.
//
// Returns:
//   - []detections.Fused: Surviving detections, confidence-descending,
//     each attributed to its single originating detector.
//   - error: Always nil; NMS has no failure mode of its own.
func (n NMS) FuseImage(
	perDetector map[detections.SourceID][]detections.Detection,
) ([]detections.Fused, error) {
	pooled := pool(perDetector)
	count := len(pooled)
	if count == 0 {
		return []detections.Fused{}, nil
	}

	used := make([]bool, count)
	out := make([]detections.Fused, 0, count)

	for i := 0; i < count; i++ {
		if used[i] {
			continue
		}

		anchor := pooled[i]
		used[i] = true
		if anchor.Score >= n.ScoreThreshold {
			out = append(out, detections.Fused{
				Box:     anchor.Box,
				Label:   anchor.Label,
				Score:   anchor.Score,
				Sources: []detections.SourceID{anchor.Source},
			})
		}

		for j := i + 1; j < count; j++ {
			if used[j] {
				continue
			}
			if n.ClassAware && anchor.Label != pooled[j].Label {
				continue
			}
			if anchor.Box.IoU(pooled[j].Box) > n.IoUThreshold {
				used[j] = true
			}
		}
	}

	return out, nil
}

// pool flattens the per-detector map into one slice sorted by descending
// score. Detectors are walked in sorted identifier order and score ties
// break on box coordinates, so the pooled order is deterministic.
func pool(perDetector map[detections.SourceID][]detections.Detection) []detections.Detection {
	sources := make([]detections.SourceID, 0, len(perDetector))
	for src := range perDetector {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	var pooled []detections.Detection
	for _, src := range sources {
		pooled = append(pooled, perDetector[src]...)
	}
	sort.SliceStable(pooled, func(i, j int) bool {
		if pooled[i].Score != pooled[j].Score {
			return pooled[i].Score > pooled[j].Score
		}
		a, b := pooled[i].Box, pooled[j].Box
		if a.X1 != b.X1 {
			return a.X1 < b.X1
		}
		return a.Y1 < b.Y1
	})
	return pooled
}
