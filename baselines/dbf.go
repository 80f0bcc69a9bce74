package baselines

import (
	"sort"

	"github.com/nvr-ai/go-fusion/detections"
)

// DBF is a dynamic belief fusion baseline. Overlapping same-class
// detections are grouped greedily around score-descending anchors (at most
// one box per detector per group), each member's score is turned into a
// belief mass scaled by its detector's reliability weight, and the masses
// are combined with Dempster's rule over the two-hypothesis frame
// {object, anything}: the combined object belief is
// 1 - prod(1 - w_i * s_i). Unlike NMS, agreement between detectors raises
// the surviving detection's confidence.
type DBF struct {
	// IoUThreshold is the overlap required to join an anchor's group.
	IoUThreshold float32
	// ScoreThreshold drops fused detections below this belief.
	ScoreThreshold float32
	// DetectorWeights holds per-detector reliability in (0, 1]. Empty
	// means full weight for every detector.
	DetectorWeights map[detections.SourceID]float32
}

// FuseImage fuses one image's detections by grouped belief combination.
func (d DBF) FuseImage(
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

		group := []detections.Detection{anchor}
		taken := map[detections.SourceID]bool{anchor.Source: true}
		for j := i + 1; j < count; j++ {
			if used[j] || taken[pooled[j].Source] || anchor.Label != pooled[j].Label {
				continue
			}
			if anchor.Box.IoU(pooled[j].Box) >= d.IoUThreshold {
				used[j] = true
				taken[pooled[j].Source] = true
				group = append(group, pooled[j])
			}
		}

		doubt := float32(1)
		sources := make([]detections.SourceID, 0, len(group))
		for _, m := range group {
			doubt *= 1 - d.weight(m.Source)*m.Score
			sources = append(sources, m.Source)
		}
		belief := 1 - doubt
		if belief < d.ScoreThreshold {
			continue
		}
		sort.Slice(sources, func(a, b int) bool { return sources[a] < sources[b] })

		out = append(out, detections.Fused{
			Box:     anchor.Box,
			Label:   anchor.Label,
			Score:   belief,
			Sources: sources,
		})
	}

	detections.SortByScore(out)
	return out, nil
}

func (d DBF) weight(src detections.SourceID) float32 {
	if len(d.DetectorWeights) == 0 {
		return 1
	}
	return d.DetectorWeights[src]
}
