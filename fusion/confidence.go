package fusion

import (
	"sort"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/go-fusion/detections"
)

// fuse collapses one cluster into one fused detection under the configured
// box-fusion and score-fusion policies.
//
// The fused class-score vector combines each member's distribution,
// weighted by its detector's configured weight. When AddEmptyDetections is
// set, every detector in the run that contributed nothing to the cluster
// adds a pseudo vector carrying only Epsilon belief in the object, the
// missing-detector penalty. Multiplicative fusion raises each vector to
// its detector weight (a weighted geometric combination) and renormalizes
// the product.
//
// Under multiplicative fusion the one-minus-no-object confidence is read
// from the unnormalized no-object product of the actual members, a
// noisy-OR over their confidences. Every corroborating detection shrinks
// that product, so the fused confidence never falls below the best single
// member and a lone detection keeps exactly its own score.
//
// Arguments:
//   - c: The cluster to collapse. Must be non-empty.
//   - classes: The run's class set.
//   - runSources: Every detector participating in the run, used to find
//     the absent ones.
//
// Returns:
//   - detections.Fused: The fused box, label, confidence, and the sorted
//     set of contributing detectors.
func (p Parameters) fuse(
	c *cluster,
	classes *detections.ClassSet,
	runSources []detections.SourceID,
) detections.Fused {
	labelIdx := p.fuseLabelIndex(c, classes)

	scores, noObject := p.fuseScores(c, classes, runSources, labelIdx)

	label, _ := classes.Name(labelIdx)
	var confidence float32
	switch p.ConfidenceStyle {
	case ConfidenceOneMinusNoObject:
		confidence = 1 - noObject
	default:
		confidence = scores[labelIdx+1]
	}
	if confidence < 0 {
		confidence = 0
	}

	sources := make([]detections.SourceID, 0, len(c.sources))
	for src := range c.sources {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	return detections.Fused{
		Box:         p.fuseBox(c, label),
		Label:       label,
		Score:       confidence,
		Sources:     sources,
		ClassScores: scores,
	}
}

// fuseLabelIndex picks the cluster's class. With the class-agreement gate
// active every member shares one label; otherwise the label with the
// largest total weighted score wins.
func (p Parameters) fuseLabelIndex(c *cluster, classes *detections.ClassSet) int {
	if p.SameLabelsOnly {
		idx, _ := classes.Index(c.members[0].Label)
		return idx
	}

	totals := make([]float32, classes.Len())
	for i, d := range c.members {
		w := p.weight(d.Source)
		for k := 0; k < classes.Len(); k++ {
			totals[k] += w * c.vectors[i][k+1]
		}
	}
	best := 0
	for k, t := range totals {
		if t > totals[best] {
			best = k
		}
	}
	return best
}

// fuseScores combines the member class-score vectors. The second return is
// the no-object mass the confidence styles read: the fused vector's entry,
// except under multiplicative fusion where it is the unnormalized product
// over the actual members so that corroboration is monotone (see fuse).
func (p Parameters) fuseScores(
	c *cluster,
	classes *detections.ClassSet,
	runSources []detections.SourceID,
	labelIdx int,
) ([]float32, float32) {
	dim := classes.Len() + 1

	type entry struct {
		vector []float32
		source detections.SourceID
		score  float32
	}
	entries := make([]entry, 0, len(c.vectors)+len(runSources))
	for i, d := range c.members {
		entries = append(entries, entry{vector: c.vectors[i], source: d.Source, score: d.Score})
	}
	if p.AddEmptyDetections {
		for _, src := range runSources {
			if c.sources[src] {
				continue
			}
			empty := make([]float32, dim)
			empty[0] = 1 - p.Epsilon
			empty[labelIdx+1] = p.Epsilon
			entries = append(entries, entry{vector: empty, source: src, score: p.Epsilon})
		}
	}

	fused := make([]float32, dim)
	switch p.ScoreFusion {
	case ScoreFusionMostConfident:
		best := 0
		for i := 1; i < len(entries); i++ {
			if entries[i].vector[labelIdx+1] > entries[best].vector[labelIdx+1] {
				best = i
			}
		}
		copy(fused, entries[best].vector)

	case ScoreFusionAverage:
		var total float32
		for _, e := range entries {
			w := p.memberWeight(e.source, e.score)
			if w <= 0 {
				continue
			}
			for k := 0; k < dim; k++ {
				fused[k] += w * e.vector[k]
			}
			total += w
		}
		if total <= 0 {
			// All members weighed out (zero scores with a positive
			// gamma); average them uniformly instead.
			for _, e := range entries {
				for k := 0; k < dim; k++ {
					fused[k] += e.vector[k]
				}
			}
			total = float32(len(entries))
		}
		for k := 0; k < dim; k++ {
			fused[k] /= total
		}

	case ScoreFusionMultiply:
		// Detector weights act as exponents here (a weighted geometric
		// combination); gamma stays out so that an uncorroborated
		// detection fuses to exactly its own score.
		for k := 0; k < dim; k++ {
			fused[k] = 1
		}
		for _, e := range entries {
			w := p.weight(e.source)
			for k := 0; k < dim; k++ {
				if w == 1 {
					fused[k] *= e.vector[k]
				} else {
					fused[k] *= math32.Pow(e.vector[k], w)
				}
			}
		}
		// The raw no-object product over the actual members (pseudo
		// vectors excluded) is the noisy-OR complement the confidence
		// reads. Normalization below reshapes the posterior only.
		noObject := float32(1)
		for i := range c.members {
			w := p.weight(c.members[i].Source)
			if w == 1 {
				noObject *= c.vectors[i][0]
			} else {
				noObject *= math32.Pow(c.vectors[i][0], w)
			}
		}
		detections.Normalize(fused)
		return fused, noObject
	}
	return fused, fused[0]
}

// fuseBox combines the member boxes per the configured policy. label is
// the already-elected fused class; only the final-label policy consults it.
func (p Parameters) fuseBox(c *cluster, label string) detections.Box {
	switch p.BoxFusion {
	case BoxFusionMin:
		box := c.members[0].Box
		for _, d := range c.members[1:] {
			box.X1 = min(box.X1, d.Box.X1)
			box.Y1 = min(box.Y1, d.Box.Y1)
			box.X2 = min(box.X2, d.Box.X2)
			box.Y2 = min(box.Y2, d.Box.Y2)
		}
		return box

	case BoxFusionMax:
		box := c.members[0].Box
		for _, d := range c.members[1:] {
			box.X1 = max(box.X1, d.Box.X1)
			box.Y1 = max(box.Y1, d.Box.Y1)
			box.X2 = max(box.X2, d.Box.X2)
			box.Y2 = max(box.Y2, d.Box.Y2)
		}
		return box

	case BoxFusionMostConfident:
		return c.members[c.rep].Box

	case BoxFusionAverage:
		return weightedBox(c, func(detections.Detection) float32 { return 1 })

	case BoxFusionWeightedAverageFinalLabel:
		// Only members that voted for the elected class steer the box.
		// Meaningful when the class-agreement gate is off and a cluster
		// mixes labels; a cluster with no matching member falls back to
		// the plain weighted average.
		matched := false
		for _, d := range c.members {
			if d.Label == label {
				matched = true
				break
			}
		}
		if !matched {
			return weightedBox(c, func(d detections.Detection) float32 {
				return p.memberWeight(d.Source, d.Score)
			})
		}
		return weightedBox(c, func(d detections.Detection) float32 {
			if d.Label != label {
				return 0
			}
			return p.memberWeight(d.Source, d.Score)
		})

	default: // BoxFusionWeightedAverage
		return weightedBox(c, func(d detections.Detection) float32 {
			return p.memberWeight(d.Source, d.Score)
		})
	}
}

// weightedBox averages member box coordinates with the given per-member
// weight function. A zero weight sum falls back to the uniform average.
func weightedBox(c *cluster, weight func(detections.Detection) float32) detections.Box {
	var box detections.Box
	var total float32
	for _, d := range c.members {
		w := weight(d)
		box.X1 += w * d.Box.X1
		box.Y1 += w * d.Box.Y1
		box.X2 += w * d.Box.X2
		box.Y2 += w * d.Box.Y2
		total += w
	}
	if total <= 0 {
		return weightedBox(c, func(detections.Detection) float32 { return 1 })
	}
	box.X1 /= total
	box.Y1 /= total
	box.X2 /= total
	box.Y2 /= total
	return box
}
