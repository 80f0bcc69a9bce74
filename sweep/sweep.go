// Package sweep - cross-validation search over fusion parameter sets.
//
// The sweep is a stateless outer loop: it repeatedly invokes the fusion
// driver with candidate configurations, scores each candidate's output
// against held-out ground truth by mean average precision, and returns the
// best configuration. Nothing here mutates shared state; configurations
// are passed explicitly and scoring is a pure function of fused output and
// truth.
package sweep

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/nvr-ai/go-fusion/detections"
	"github.com/nvr-ai/go-fusion/fusion"
	"github.com/nvr-ai/go-fusion/runner"
)

// GroundTruth is one annotated object on a validation image.
type GroundTruth struct {
	Box   detections.Box `json:"box"   yaml:"box"`
	Label string         `json:"label" yaml:"label"`
}

// ValidationSet is the held-out data a sweep scores candidates against.
type ValidationSet struct {
	// Images holds the per-detector detections for each validation image.
	Images []runner.Image
	// Truth maps image identifiers to their annotated objects.
	Truth map[string][]GroundTruth
}

// Options tunes the sweep itself, not the candidates.
type Options struct {
	// MatchIoU is the overlap required to count a fused detection as a
	// true positive. The conventional value is 0.5.
	MatchIoU float32
	// Workers is the per-candidate fusion pool size.
	Workers int
}

// Search evaluates every candidate configuration on the validation set and
// returns the one with the highest mean average precision. Equal scores
// resolve to the earliest candidate, so a sweep over a fixed candidate
// grid is deterministic.
//
// Arguments:
//   - ctx: Cancels between images of a candidate evaluation.
//   - candidates: The parameter grid. Must be non-empty.
//   - classes: The run's class set.
//   - sources: The detectors contributing to the validation images.
//   - val: Held-out detections plus ground truth.
//   - opts: Sweep tuning; a zero MatchIoU defaults to 0.5.
//
// Returns:
//   - fusion.Parameters: The winning configuration.
//   - float64: Its mean average precision.
//   - error: An invalid candidate or detection surfaces immediately.
func Search(
	ctx context.Context,
	candidates []fusion.Parameters,
	classes *detections.ClassSet,
	sources []detections.SourceID,
	val ValidationSet,
	opts Options,
) (fusion.Parameters, float64, error) {
	if len(candidates) == 0 {
		return fusion.Parameters{}, 0, errors.Wrap(fusion.ErrInvalidConfiguration, "no candidates")
	}
	if opts.MatchIoU <= 0 {
		opts.MatchIoU = 0.5
	}

	best := 0
	bestScore := -1.0
	for i, candidate := range candidates {
		fuser, err := fusion.NewFuser(candidate, classes, sources)
		if err != nil {
			return fusion.Parameters{}, 0, errors.Wrapf(err, "candidate %d", i)
		}
		results, err := runner.Run(ctx, fuser, val.Images, opts.Workers)
		if err != nil {
			return fusion.Parameters{}, 0, errors.Wrapf(err, "candidate %d", i)
		}
		score := MeanAveragePrecision(results, val.Truth, classes, opts.MatchIoU)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}
	return candidates[best], bestScore, nil
}

// match is one fused detection flattened for per-class ranking.
type match struct {
	imageID string
	box     detections.Box
	score   float32
}

// MeanAveragePrecision scores fused results against ground truth: per
// class, fused detections are ranked confidence-descending and matched
// greedily to unclaimed truth boxes at the given IoU; the area under the
// resulting precision/recall curve is that class's average precision, and
// the mean over classes with any truth is the final score.
func MeanAveragePrecision(
	results []runner.Result,
	truth map[string][]GroundTruth,
	classes *detections.ClassSet,
	matchIoU float32,
) float64 {
	var aps []float64
	for _, label := range classes.Labels {
		ap, hasTruth := averagePrecision(results, truth, label, matchIoU)
		if hasTruth {
			aps = append(aps, ap)
		}
	}
	if len(aps) == 0 {
		return 0
	}
	return stat.Mean(aps, nil)
}

func averagePrecision(
	results []runner.Result,
	truth map[string][]GroundTruth,
	label string,
	matchIoU float32,
) (float64, bool) {
	totalTruth := 0
	truthBoxes := make(map[string][]detections.Box)
	for id, objects := range truth {
		for _, gt := range objects {
			if gt.Label == label {
				truthBoxes[id] = append(truthBoxes[id], gt.Box)
				totalTruth++
			}
		}
	}
	if totalTruth == 0 {
		return 0, false
	}

	var ranked []match
	for _, r := range results {
		for _, f := range r.Fused {
			if f.Label == label {
				ranked = append(ranked, match{imageID: r.ID, box: f.Box, score: f.Score})
			}
		}
	}
	if len(ranked) == 0 {
		return 0, true
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	claimed := make(map[string][]bool, len(truthBoxes))
	for id, boxes := range truthBoxes {
		claimed[id] = make([]bool, len(boxes))
	}

	recall := make([]float64, 0, len(ranked)+1)
	precision := make([]float64, 0, len(ranked)+1)
	recall = append(recall, 0)
	precision = append(precision, 1)

	tp, fp := 0, 0
	for _, m := range ranked {
		bestIdx := -1
		var bestIoU float32
		for gi, gt := range truthBoxes[m.imageID] {
			if claimed[m.imageID][gi] {
				continue
			}
			if iou := m.box.IoU(gt); iou >= matchIoU && iou > bestIoU {
				bestIoU = iou
				bestIdx = gi
			}
		}
		if bestIdx >= 0 {
			claimed[m.imageID][bestIdx] = true
			tp++
		} else {
			fp++
		}
		recall = append(recall, float64(tp)/float64(totalTruth))
		precision = append(precision, float64(tp)/float64(tp+fp))
	}

	return integrate.Trapezoidal(recall, precision), true
}
