package fusion

import "github.com/nvr-ai/go-fusion/detections"

// cluster is a mutable grouping of detections undergoing agglomeration.
// It starts as a singleton and only ever grows by absorbing another
// cluster's members; member order is the deterministic input order, which
// keeps every downstream combination reproducible.
type cluster struct {
	members []detections.Detection
	// vectors holds each member's class-score distribution, parallel to
	// members. Materialized once at singleton creation so affinity and
	// fusion never re-synthesize them.
	vectors [][]float32
	// sources tracks which detectors contributed members, for the
	// one-box-per-detector merge gate and the missing-detector penalty.
	sources map[detections.SourceID]bool
	// rep is the index of the highest-scoring member, whose box stands in
	// for the cluster under max-linkage.
	rep int
}

// newCluster wraps one detection in a singleton cluster.
func newCluster(d detections.Detection, classes *detections.ClassSet) *cluster {
	return &cluster{
		members: []detections.Detection{d},
		vectors: [][]float32{detections.ScoreVector(d, classes)},
		sources: map[detections.SourceID]bool{d.Source: true},
	}
}

// absorb moves every member of o into c. o must not be used afterwards.
func (c *cluster) absorb(o *cluster) {
	base := len(c.members)
	c.members = append(c.members, o.members...)
	c.vectors = append(c.vectors, o.vectors...)
	for src := range o.sources {
		c.sources[src] = true
	}
	if o.members[o.rep].Score > c.members[c.rep].Score {
		c.rep = base + o.rep
	}
}

// sharesSource reports whether the two clusters have any detector in
// common. Under the single-detection-per-detector mode such clusters may
// never merge.
func (c *cluster) sharesSource(o *cluster) bool {
	for src := range o.sources {
		if c.sources[src] {
			return true
		}
	}
	return false
}
