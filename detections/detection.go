package detections

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// SourceID identifies the detector that produced a detection.
type SourceID string

// Detector identifiers used by the reference ensembles.
const (
	SourceSSD        SourceID = "ssd"
	SourceDeNet      SourceID = "denet"
	SourceFasterRCNN SourceID = "faster-rcnn"
)

// ErrInvalidDetection reports a malformed input detection. The fusion run
// for the offending image aborts rather than continuing with corrupt state.
var ErrInvalidDetection = errors.New("invalid detection")

// Detection is a single immutable detector output: one box, one label, one
// confidence score, and the identity of the detector that produced it.
//
// ClassScores optionally carries the detector's full class-score
// distribution (index 0 is the "no object" entry, index i+1 the score of
// class i). Detectors that only report a scalar confidence leave it nil and
// the fusion core synthesizes a two-point distribution from Label and Score.
type Detection struct {
	Box         Box       `json:"box"                   yaml:"box"`
	Label       string    `json:"label"                 yaml:"label"`
	Score       float32   `json:"score"                 yaml:"score"`
	Source      SourceID  `json:"source"                yaml:"source"`
	ClassScores []float32 `json:"classScores,omitempty" yaml:"classScores,omitempty"`
}

// String formats the detection for display.
func (d Detection) String() string {
	return fmt.Sprintf("Object %s (confidence %f, source %s): %s", d.Label, d.Score, d.Source, d.Box)
}

// Validate checks the detection against the run's class set and known
// detector identifiers.
//
// Returns:
//   - error: ErrInvalidDetection (wrapped with context) when the box is
//     inverted, the score falls outside [0, 1], the label is not in the
//     class set, the source is unknown, or a class-score vector has the
//     wrong length.
func (d Detection) Validate(classes *ClassSet, sources map[SourceID]bool) error {
	if !d.Box.Valid() {
		return errors.Wrapf(ErrInvalidDetection, "box %s has min > max", d.Box)
	}
	if d.Score < 0 || d.Score > 1 {
		return errors.Wrapf(ErrInvalidDetection, "score %f outside [0, 1]", d.Score)
	}
	if !classes.Contains(d.Label) {
		return errors.Wrapf(ErrInvalidDetection, "unknown label %q", d.Label)
	}
	if !sources[d.Source] {
		return errors.Wrapf(ErrInvalidDetection, "unknown source %q", d.Source)
	}
	if d.ClassScores != nil && len(d.ClassScores) != classes.Len()+1 {
		return errors.Wrapf(ErrInvalidDetection, "class scores have length %d, want %d",
			len(d.ClassScores), classes.Len()+1)
	}
	return nil
}

// Fused is the output of collapsing one cluster of detections. It has the
// same shape as Detection, with the single source replaced by the set of
// detectors that contributed members to the cluster.
type Fused struct {
	Box         Box        `json:"box"         yaml:"box"`
	Label       string     `json:"label"       yaml:"label"`
	Score       float32    `json:"score"       yaml:"score"`
	Sources     []SourceID `json:"sources"     yaml:"sources"`
	ClassScores []float32  `json:"classScores" yaml:"classScores"`
}

// SortByScore orders fused detections confidence-descending for downstream
// consumers. Ties break on box coordinates so repeated runs on identical
// input produce identical output order.
func SortByScore(out []Fused) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		a, b := out[i].Box, out[j].Box
		if a.X1 != b.X1 {
			return a.X1 < b.X1
		}
		return a.Y1 < b.Y1
	})
}
