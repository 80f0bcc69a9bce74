package fusion

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-fusion/detections"
)

func TestDefaultParametersValid(t *testing.T) {
	assert.NoError(t, DefaultParameters().Validate(testSources))
}

// TestParametersValidate verifies the fail-fast configuration checks that
// run before any image is processed.
func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Parameters)
	}{
		{
			name:   "tau above one",
			mutate: func(p *Parameters) { p.Tau = 1.5 },
		},
		{
			name:   "negative gamma",
			mutate: func(p *Parameters) { p.Gamma = -0.2 },
		},
		{
			name:   "epsilon above one",
			mutate: func(p *Parameters) { p.Epsilon = 2 },
		},
		{
			name:   "unknown box fusion method",
			mutate: func(p *Parameters) { p.BoxFusion = "MEDIAN" },
		},
		{
			name:   "unknown score fusion method",
			mutate: func(p *Parameters) { p.ScoreFusion = "SUM" },
		},
		{
			name:   "unknown confidence style",
			mutate: func(p *Parameters) { p.ConfidenceStyle = "SOFTMAX" },
		},
		{
			name: "weight table missing a present detector",
			mutate: func(p *Parameters) {
				p.DetectorWeights = map[detections.SourceID]float32{
					detections.SourceSSD: 1,
				}
			},
		},
		{
			name: "non-positive weight",
			mutate: func(p *Parameters) {
				p.DetectorWeights = map[detections.SourceID]float32{
					detections.SourceSSD:        1,
					detections.SourceDeNet:      0,
					detections.SourceFasterRCNN: 1,
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := DefaultParameters()
			tt.mutate(&params)

			err := params.Validate(testSources)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration),
				"expected ErrInvalidConfiguration, got %v", err)

			_, err = NewFuser(params, testClasses(), testSources)
			assert.Error(t, err, "NewFuser must reject the configuration before any image")
		})
	}
}

func TestParametersFromJSON(t *testing.T) {
	data := []byte(`{
		"tau": 0.59,
		"gamma": 0.21,
		"boundingBoxFusionMethod": "AVERAGE",
		"classScoresFusionMethod": "MULTIPLY",
		"addEmptyDetections": true,
		"epsilon": 0.26,
		"sameLabelsOnly": true,
		"confidenceStyle": "ONE_MINUS_NO_OBJECT",
		"max1BoxPerDetector": true,
		"fast": true,
		"detectorWeights": {"ssd": 1.0, "denet": 0.9, "faster-rcnn": 1.1}
	}`)

	params, err := ParametersFromJSON(data)
	require.NoError(t, err)

	assert.InDelta(t, 0.59, params.Tau, 1e-6)
	assert.InDelta(t, 0.21, params.Gamma, 1e-6)
	assert.Equal(t, BoxFusionAverage, params.BoxFusion)
	assert.Equal(t, ScoreFusionMultiply, params.ScoreFusion)
	assert.True(t, params.AddEmptyDetections)
	assert.True(t, params.Max1BoxPerDetector)
	assert.True(t, params.Fast)
	assert.InDelta(t, 0.9, params.DetectorWeights[detections.SourceDeNet], 1e-6)
	// Fields absent from the file keep their defaults.
	assert.InDelta(t, 0.015, params.SelectThreshold, 1e-6)

	assert.NoError(t, params.Validate(testSources))

	_, err = ParametersFromJSON([]byte(`{not json`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestParametersFromYAML(t *testing.T) {
	data := []byte(`
tau: 0.45
boundingBoxFusionMethod: MAX
classScoresFusionMethod: AVERAGE
confidenceStyle: LABEL
scoreThreshold: 0.05
`)

	params, err := ParametersFromYAML(data)
	require.NoError(t, err)

	assert.InDelta(t, 0.45, params.Tau, 1e-6)
	assert.Equal(t, BoxFusionMax, params.BoxFusion)
	assert.Equal(t, ScoreFusionAverage, params.ScoreFusion)
	assert.Equal(t, ConfidenceLabel, params.ConfidenceStyle)
	assert.InDelta(t, 0.05, params.ScoreThreshold, 1e-6)

	_, err = ParametersFromYAML([]byte("tau: [broken"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}
