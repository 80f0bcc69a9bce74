package sweep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-fusion/detections"
	"github.com/nvr-ai/go-fusion/fusion"
	"github.com/nvr-ai/go-fusion/runner"
)

var valSources = []detections.SourceID{detections.SourceSSD, detections.SourceDeNet}

func valClasses() *detections.ClassSet {
	return detections.NewClassSet("car", "person")
}

func det(src detections.SourceID, label string, score, x1, y1, x2, y2 float32) detections.Detection {
	return detections.Detection{
		Box:    detections.Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
		Label:  label,
		Score:  score,
		Source: src,
	}
}

// validationSet builds two images with one annotated car each. On the
// first image both detectors fire on the same car; leaving the duplicates
// unmerged costs precision because only one detection can claim the truth
// box.
func validationSet() ValidationSet {
	return ValidationSet{
		Images: []runner.Image{
			{
				ID: "00000.png",
				Detections: map[detections.SourceID][]detections.Detection{
					detections.SourceSSD:   {det(detections.SourceSSD, "car", 0.9, 0, 0, 100, 100)},
					detections.SourceDeNet: {det(detections.SourceDeNet, "car", 0.85, 5, 5, 105, 105)},
				},
			},
			{
				ID: "00001.png",
				Detections: map[detections.SourceID][]detections.Detection{
					detections.SourceSSD: {det(detections.SourceSSD, "car", 0.8, 200, 200, 300, 300)},
				},
			},
		},
		Truth: map[string][]GroundTruth{
			"00000.png": {{Box: detections.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "car"}},
			"00001.png": {{Box: detections.Box{X1: 200, Y1: 200, X2: 300, Y2: 300}, Label: "car"}},
		},
	}
}

// TestSearchPicksBetterCandidate verifies that the sweep prefers the
// configuration that actually merges duplicates over one whose threshold
// is too strict to ever merge, independent of candidate order.
func TestSearchPicksBetterCandidate(t *testing.T) {
	tooStrict := fusion.DefaultParameters()
	tooStrict.Tau = 0.99

	good := fusion.DefaultParameters()

	best, score, err := Search(
		context.Background(),
		[]fusion.Parameters{tooStrict, good},
		valClasses(),
		valSources,
		validationSet(),
		Options{Workers: 2},
	)
	require.NoError(t, err)

	assert.InDelta(t, good.Tau, best.Tau, 1e-6)
	assert.InDelta(t, 1.0, score, 1e-6, "merging every duplicate yields perfect AP here")
}

func TestSearchRejectsInvalidCandidate(t *testing.T) {
	broken := fusion.DefaultParameters()
	broken.Tau = 1.5

	_, _, err := Search(
		context.Background(),
		[]fusion.Parameters{broken},
		valClasses(),
		valSources,
		validationSet(),
		Options{},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, fusion.ErrInvalidConfiguration)
}

func TestSearchNoCandidates(t *testing.T) {
	_, _, err := Search(context.Background(), nil, valClasses(), valSources, validationSet(), Options{})
	assert.Error(t, err)
}

// TestMeanAveragePrecision exercises the scorer directly on hand-built
// results.
func TestMeanAveragePrecision(t *testing.T) {
	truth := map[string][]GroundTruth{
		"a": {{Box: detections.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "car"}},
		"b": {{Box: detections.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Label: "person"}},
	}

	t.Run("perfect detections score 1", func(t *testing.T) {
		results := []runner.Result{
			{ID: "a", Fused: []detections.Fused{{
				Box: detections.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "car", Score: 0.9,
			}}},
			{ID: "b", Fused: []detections.Fused{{
				Box: detections.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Label: "person", Score: 0.8,
			}}},
		}
		assert.InDelta(t, 1.0, MeanAveragePrecision(results, truth, valClasses(), 0.5), 1e-6)
	})

	t.Run("no detections score 0", func(t *testing.T) {
		results := []runner.Result{{ID: "a"}, {ID: "b"}}
		assert.InDelta(t, 0.0, MeanAveragePrecision(results, truth, valClasses(), 0.5), 1e-6)
	})

	t.Run("mislocalized detection is a false positive", func(t *testing.T) {
		results := []runner.Result{
			{ID: "a", Fused: []detections.Fused{{
				Box: detections.Box{X1: 500, Y1: 500, X2: 600, Y2: 600}, Label: "car", Score: 0.9,
			}}},
			{ID: "b", Fused: []detections.Fused{{
				Box: detections.Box{X1: 0, Y1: 0, X2: 50, Y2: 50}, Label: "person", Score: 0.8,
			}}},
		}
		// Car AP 0, person AP 1, mean 0.5.
		assert.InDelta(t, 0.5, MeanAveragePrecision(results, truth, valClasses(), 0.5), 1e-6)
	})

	t.Run("classes without truth are excluded from the mean", func(t *testing.T) {
		carOnly := map[string][]GroundTruth{
			"a": {{Box: detections.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "car"}},
		}
		results := []runner.Result{
			{ID: "a", Fused: []detections.Fused{{
				Box: detections.Box{X1: 0, Y1: 0, X2: 100, Y2: 100}, Label: "car", Score: 0.9,
			}}},
		}
		assert.InDelta(t, 1.0, MeanAveragePrecision(results, carOnly, valClasses(), 0.5), 1e-6)
	})
}
