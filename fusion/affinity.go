package fusion

import "github.com/nvr-ai/go-fusion/detections"

// pairAffinity computes the merge affinity between two individual
// detections: the IoU of their boxes, optionally scaled by the
// Bhattacharyya coefficient of their class-score distributions, and forced
// to zero when the class-agreement gate rejects the pair.
//
// Returns:
//   - float32: A value in [0, 1]. Zero-area boxes yield 0 rather than a
//     division-by-zero failure.
func (p Parameters) pairAffinity(a, b detections.Detection, va, vb []float32) float32 {
	if p.SameLabelsOnly && a.Label != b.Label {
		return 0
	}
	aff := a.Box.IoU(b.Box)
	if aff == 0 {
		return 0
	}
	if p.UseBC {
		aff *= detections.Bhattacharyya(va, vb)
	}
	return aff
}

// clusterAffinity computes the affinity between two clusters under average
// linkage: the mean pairwise affinity between their members. It returns 0
// when the single-detection-per-detector gate forbids the merge.
func (p Parameters) clusterAffinity(a, b *cluster) float32 {
	if p.Max1BoxPerDetector && a.sharesSource(b) {
		return 0
	}

	var sum float32
	for i, da := range a.members {
		for j, db := range b.members {
			sum += p.pairAffinity(da, db, a.vectors[i], b.vectors[j])
		}
	}
	return sum / float32(len(a.members)*len(b.members))
}
