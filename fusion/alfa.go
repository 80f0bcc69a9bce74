package fusion

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-fusion/detections"
)

// Fuser runs ALFA over one image at a time. A Fuser owns exactly one
// validated parameter set and is safe for concurrent use: FuseImage keeps
// no state across calls, so independent images may be fused from separate
// goroutines sharing one Fuser.
type Fuser struct {
	params   Parameters
	classes  *detections.ClassSet
	sources  []detections.SourceID
	sourceOK map[detections.SourceID]bool
}

// NewFuser validates the configuration against the participating detectors
// and returns a ready fusion driver.
//
// Arguments:
//   - params: The tunable fusion configuration, typically the winner of an
//     external cross-validation sweep.
//   - classes: The closed set of object categories for the run.
//   - sources: Every detector whose outputs will be fused. Order is
//     irrelevant; the Fuser sorts its own copy.
//
// Returns:
//   - *Fuser: The driver, ready for any number of images.
//   - error: ErrInvalidConfiguration before any image is processed.
func NewFuser(
	params Parameters,
	classes *detections.ClassSet,
	sources []detections.SourceID,
) (*Fuser, error) {
	if err := params.Validate(sources); err != nil {
		return nil, err
	}

	sorted := make([]detections.SourceID, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	ok := make(map[detections.SourceID]bool, len(sorted))
	for _, src := range sorted {
		ok[src] = true
	}

	return &Fuser{params: params, classes: classes, sources: sorted, sourceOK: ok}, nil
}

// Params returns the configuration the Fuser was built with.
func (f *Fuser) Params() Parameters {
	return f.params
}

// FuseImage fuses one image's per-detector detections into a single
// improved detection set.
//
// The run walks collecting -> clustering -> fusing -> filtering: inputs
// are validated and thresholded, the clustering engine partitions the
// survivors (full ALFA by best-pair agglomeration, Fast ALFA by greedy
// confidence-ordered assignment, both bounded by the tau threshold), and
// each final cluster collapses into one fused detection. Fused detections
// below the output confidence threshold are discarded and the rest
// returned confidence-descending.
//
// Arguments:
//   - perDetector: This image's detections keyed by source detector. A
//     missing or empty entry simply means that detector saw nothing.
//
// Returns:
//   - []detections.Fused: The fused detections, ordered by descending
//     confidence. Zero input detections yield an empty, non-error result.
//   - error: ErrInvalidDetection when any input record is malformed; the
//     image's run aborts with no partial output.
func (f *Fuser) FuseImage(
	perDetector map[detections.SourceID][]detections.Detection,
) ([]detections.Fused, error) {
	selected, err := f.collect(perDetector)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		return []detections.Fused{}, nil
	}

	var clusters []*cluster
	if f.params.Fast {
		clusters = f.params.greedyAssign(selected, f.classes, f.params.Tau)
	} else {
		clusters = f.params.agglomerate(selected, f.classes, f.params.Tau)
	}

	out := make([]detections.Fused, 0, len(clusters))
	for _, c := range clusters {
		fused := f.params.fuse(c, f.classes, f.sources)
		if fused.Score < f.params.ScoreThreshold {
			continue
		}
		out = append(out, fused)
	}
	detections.SortByScore(out)
	return out, nil
}

// collect validates the image's detections and drops those below the input
// selection threshold. Detectors are walked in sorted identifier order so
// the seed clusters, and with them every tie-break downstream, are
// deterministic.
func (f *Fuser) collect(
	perDetector map[detections.SourceID][]detections.Detection,
) ([]detections.Detection, error) {
	var selected []detections.Detection
	for _, src := range f.sources {
		for _, d := range perDetector[src] {
			if err := d.Validate(f.classes, f.sourceOK); err != nil {
				return nil, err
			}
			if d.Source != src {
				return nil, errors.Wrapf(detections.ErrInvalidDetection,
					"detection from %q filed under %q", d.Source, src)
			}
			if d.Score < f.params.SelectThreshold {
				continue
			}
			selected = append(selected, d)
		}
	}
	for src := range perDetector {
		if !f.sourceOK[src] {
			return nil, errors.Wrapf(detections.ErrInvalidDetection, "unknown detector %q", src)
		}
	}
	return selected, nil
}
