package fusion

import (
	"sort"

	"github.com/nvr-ai/go-fusion/detections"
)

// agglomerate runs full ALFA's hierarchical agglomerative clustering:
// singleton clusters are repeatedly merged best-pair-first while the best
// pair's affinity is at least tau. Affinity is a similarity, so clustering
// merges the MOST similar pair each round, the inverse of the usual
// distance linkage.
//
// The pairwise affinity matrix is computed once up front; after a merge
// only the surviving cluster's row is recomputed, since no other pair's
// affinity changed. Ties on the maximum break toward the lowest index
// pair, so repeated runs on identical input are reproducible.
//
// The loop is O(N³) per image in the worst case. N is the handful of
// boxes a few detectors emit for one image, so no spatial index is
// warranted.
//
// Arguments:
//   - dets: This image's selected detections, in deterministic input order.
//   - tau: Minimum affinity for a merge.
//
// Returns:
//   - []*cluster: The final partition, in first-member input order.
func (p Parameters) agglomerate(dets []detections.Detection, classes *detections.ClassSet, tau float32) []*cluster {
	clusters := make([]*cluster, len(dets))
	for i, d := range dets {
		clusters[i] = newCluster(d, classes)
	}

	n := len(clusters)
	if n < 2 {
		return clusters
	}

	active := make([]bool, n)
	for i := range active {
		active[i] = true
	}

	// Upper-triangular affinity matrix; aff[i][j] valid for i < j.
	aff := make([][]float32, n)
	for i := 0; i < n; i++ {
		aff[i] = make([]float32, n)
		for j := i + 1; j < n; j++ {
			aff[i][j] = p.clusterAffinity(clusters[i], clusters[j])
		}
	}

	remaining := n
	for remaining > 1 {
		bi, bj := -1, -1
		var best float32
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if aff[i][j] > best {
					best = aff[i][j]
					bi, bj = i, j
				}
			}
		}
		// bi stays -1 when every remaining pair sits at affinity zero, so
		// a zero tau never chains non-overlapping boxes together.
		if bi < 0 || best < tau {
			break
		}

		clusters[bi].absorb(clusters[bj])
		active[bj] = false
		remaining--

		// Only the merged cluster's affinities changed.
		for k := 0; k < n; k++ {
			if !active[k] || k == bi {
				continue
			}
			a := p.clusterAffinity(clusters[bi], clusters[k])
			if k < bi {
				aff[k][bi] = a
			} else {
				aff[bi][k] = a
			}
		}
	}

	out := make([]*cluster, 0, remaining)
	for i, c := range clusters {
		if active[i] {
			out = append(out, c)
		}
	}
	return out
}

// greedyAssign is Fast ALFA's reduced search. Detections are walked in
// confidence-descending order; each either joins the existing cluster it
// is most affine to (when that affinity reaches tau) or seeds a new one.
// Candidate merges are thereby restricted to pairs involving a cluster's
// highest-confidence leader region, trading the full best-pair search for
// a single O(N²) pass. Cluster invariants (class agreement and the
// one-box-per-detector gate) are enforced exactly as in the full search.
func (p Parameters) greedyAssign(dets []detections.Detection, classes *detections.ClassSet, tau float32) []*cluster {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Score > dets[order[b]].Score
	})

	var clusters []*cluster
	for _, idx := range order {
		d := dets[idx]
		v := detections.ScoreVector(d, classes)

		best := -1
		var bestAff float32
		for ci, c := range clusters {
			if p.Max1BoxPerDetector && c.sources[d.Source] {
				continue
			}
			var aff float32
			for mi, m := range c.members {
				if a := p.pairAffinity(d, m, v, c.vectors[mi]); a > aff {
					aff = a
				}
			}
			if aff > bestAff {
				bestAff = aff
				best = ci
			}
		}

		// best stays -1 at affinity zero, so a zero tau never attaches a
		// detection to a cluster it does not overlap.
		if best >= 0 && bestAff >= tau {
			c := clusters[best]
			c.members = append(c.members, d)
			c.vectors = append(c.vectors, v)
			c.sources[d.Source] = true
			// Members arrive confidence-descending, so the first stays the
			// representative.
		} else {
			clusters = append(clusters, newCluster(d, classes))
		}
	}
	return clusters
}
