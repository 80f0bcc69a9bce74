// Package fusion - the Agglomerative Late Fusion Algorithm (ALFA) core.
//
// The package turns the per-image outputs of several independent object
// detectors into a single improved set of detections by agglomeratively
// clustering geometrically overlapping boxes and fusing each cluster's
// scores into one detection.
package fusion

import (
	"encoding/json"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-fusion/detections"
)

// ErrInvalidConfiguration reports a malformed parameter set. It is raised
// at run start, before any image is processed.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// BoxFusionMethod selects how a cluster's member boxes collapse into one.
type BoxFusionMethod string

// Box fusion methods.
const (
	BoxFusionMin             BoxFusionMethod = "MIN"
	BoxFusionMax             BoxFusionMethod = "MAX"
	BoxFusionMostConfident   BoxFusionMethod = "MOST_CONFIDENT"
	BoxFusionAverage         BoxFusionMethod = "AVERAGE"
	BoxFusionWeightedAverage BoxFusionMethod = "WEIGHTED_AVERAGE"
	// BoxFusionWeightedAverageFinalLabel averages only the members whose
	// label matches the fused class.
	BoxFusionWeightedAverageFinalLabel BoxFusionMethod = "WEIGHTED_AVERAGE_FINAL_LABEL"
)

// ScoreFusionMethod selects how member class-score vectors combine.
type ScoreFusionMethod string

// Score fusion methods.
const (
	ScoreFusionMostConfident ScoreFusionMethod = "MOST_CONFIDENT"
	ScoreFusionAverage       ScoreFusionMethod = "AVERAGE"
	ScoreFusionMultiply      ScoreFusionMethod = "MULTIPLY"
)

// ConfidenceStyle selects how the fused confidence is read off the fused
// class-score vector.
type ConfidenceStyle string

// Confidence styles.
const (
	// ConfidenceLabel reads the score of the fused label.
	ConfidenceLabel ConfidenceStyle = "LABEL"
	// ConfidenceOneMinusNoObject reads 1 minus the "no object" score. With
	// multiplicative score fusion this behaves like a noisy-OR: every
	// corroborating detector can only push the fused confidence up.
	ConfidenceOneMinusNoObject ConfidenceStyle = "ONE_MINUS_NO_OBJECT"
)

// Parameters is the tunable configuration consumed by a fusion run. The
// values are produced by an external cross-validation sweep and are
// read-only for the duration of fusion over an entire dataset.
type Parameters struct {
	// Tau is the minimum affinity for two clusters to merge.
	Tau float32 `json:"tau" yaml:"tau"`
	// Gamma is the exponent applied to a member's confidence when deriving
	// its weight in the weighted combinations (weighted-average box fusion
	// and averaged score fusion): weight = detectorWeight * score^gamma.
	// Zero gives every member equal say; larger values let confident
	// members dominate.
	Gamma float32 `json:"gamma" yaml:"gamma"`
	// BoxFusion selects the fused-box policy.
	BoxFusion BoxFusionMethod `json:"boundingBoxFusionMethod" yaml:"boundingBoxFusionMethod"`
	// ScoreFusion selects the fused-score policy.
	ScoreFusion ScoreFusionMethod `json:"classScoresFusionMethod" yaml:"classScoresFusionMethod"`
	// AddEmptyDetections adds a low-confidence pseudo score vector to each
	// cluster for every detector that contributed nothing to it.
	AddEmptyDetections bool `json:"addEmptyDetections" yaml:"addEmptyDetections"`
	// Epsilon is the object belief assigned to those pseudo vectors.
	Epsilon float32 `json:"epsilon" yaml:"epsilon"`
	// SameLabelsOnly restricts merging to detections with equal labels.
	SameLabelsOnly bool `json:"sameLabelsOnly" yaml:"sameLabelsOnly"`
	// ConfidenceStyle selects how fused confidence is derived.
	ConfidenceStyle ConfidenceStyle `json:"confidenceStyle" yaml:"confidenceStyle"`
	// UseBC multiplies the geometric affinity by the Bhattacharyya
	// coefficient of the two class-score distributions.
	UseBC bool `json:"useBC" yaml:"useBC"`
	// Max1BoxPerDetector forbids a cluster from holding two detections of
	// the same detector.
	Max1BoxPerDetector bool `json:"max1BoxPerDetector" yaml:"max1BoxPerDetector"`
	// SelectThreshold drops input detections below this score before
	// clustering starts.
	SelectThreshold float32 `json:"selectThreshold" yaml:"selectThreshold"`
	// ScoreThreshold drops fused detections below this confidence from the
	// output.
	ScoreThreshold float32 `json:"scoreThreshold" yaml:"scoreThreshold"`
	// Fast selects the single-pass, max-linkage variant.
	Fast bool `json:"fast" yaml:"fast"`
	// DetectorWeights holds the per-detector weight table. Empty means unit
	// weights for every detector.
	DetectorWeights map[detections.SourceID]float32 `json:"detectorWeights" yaml:"detectorWeights"`
}

// DefaultParameters returns the configuration used when no cross-validated
// parameter file is supplied. Multiplicative score fusion with the
// one-minus-no-object confidence style guarantees that corroboration never
// lowers the fused confidence below the best single detection.
func DefaultParameters() Parameters {
	return Parameters{
		Tau:             0.5,
		Gamma:           0.3,
		BoxFusion:       BoxFusionWeightedAverage,
		ScoreFusion:     ScoreFusionMultiply,
		Epsilon:         0.1,
		SameLabelsOnly:  true,
		ConfidenceStyle: ConfidenceOneMinusNoObject,
		SelectThreshold: 0.015,
		ScoreThreshold:  0.01,
	}
}

// ParametersFromJSON decodes a parameter set from JSON bytes, the encoding
// the cross-validation sweep writes its winners in.
func ParametersFromJSON(data []byte) (Parameters, error) {
	p := DefaultParameters()
	if err := json.Unmarshal(data, &p); err != nil {
		return Parameters{}, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return p, nil
}

// ParametersFromYAML decodes a parameter set from YAML bytes.
func ParametersFromYAML(data []byte) (Parameters, error) {
	p := DefaultParameters()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Parameters{}, errors.Wrap(ErrInvalidConfiguration, err.Error())
	}
	return p, nil
}

// Validate checks the parameter set against the detectors participating in
// the run. It fails fast with ErrInvalidConfiguration so that no image is
// processed with a broken configuration.
func (p Parameters) Validate(sources []detections.SourceID) error {
	for name, v := range map[string]float32{
		"tau":             p.Tau,
		"gamma":           p.Gamma,
		"epsilon":         p.Epsilon,
		"selectThreshold": p.SelectThreshold,
		"scoreThreshold":  p.ScoreThreshold,
	} {
		if v < 0 || v > 1 {
			return errors.Wrapf(ErrInvalidConfiguration, "%s %f outside [0, 1]", name, v)
		}
	}
	switch p.BoxFusion {
	case BoxFusionMin, BoxFusionMax, BoxFusionMostConfident, BoxFusionAverage,
		BoxFusionWeightedAverage, BoxFusionWeightedAverageFinalLabel:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown box fusion method %q", p.BoxFusion)
	}
	switch p.ScoreFusion {
	case ScoreFusionMostConfident, ScoreFusionAverage, ScoreFusionMultiply:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown score fusion method %q", p.ScoreFusion)
	}
	switch p.ConfidenceStyle {
	case ConfidenceLabel, ConfidenceOneMinusNoObject:
	default:
		return errors.Wrapf(ErrInvalidConfiguration, "unknown confidence style %q", p.ConfidenceStyle)
	}
	if len(p.DetectorWeights) > 0 {
		for _, src := range sources {
			w, ok := p.DetectorWeights[src]
			if !ok {
				return errors.Wrapf(ErrInvalidConfiguration, "no weight for detector %q", src)
			}
			if w <= 0 {
				return errors.Wrapf(ErrInvalidConfiguration, "non-positive weight %f for detector %q", w, src)
			}
		}
	}
	return nil
}

// weight returns the configured weight for a detector, defaulting to 1.
func (p Parameters) weight(src detections.SourceID) float32 {
	if len(p.DetectorWeights) == 0 {
		return 1
	}
	return p.DetectorWeights[src]
}

// memberWeight is a cluster member's say in the weighted combinations:
// its detector's weight scaled by its confidence raised to gamma.
func (p Parameters) memberWeight(src detections.SourceID, score float32) float32 {
	w := p.weight(src)
	if p.Gamma == 0 {
		return w
	}
	return w * math32.Pow(score, p.Gamma)
}
