package leafnet

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	t.Parallel()

	data := []byte("tomato_healthy\n\n# training order, do not sort\ntomato_late_blight\n  pepper_bacterial_spot  \n")
	labels, err := parseLabels(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"tomato_healthy", "tomato_late_blight", "pepper_bacterial_spot"}, labels)
}

func TestParseLabelsEmpty(t *testing.T) {
	t.Parallel()

	_, err := parseLabels([]byte("\n# only comments\n"))
	assert.Error(t, err)
}

func TestBundledLabelPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "model/leafnet.labels.txt", bundledLabelPath("model/leafnet.tflite"))
	assert.Equal(t, "/data/model/pepper_cnn.labels.txt", bundledLabelPath("/data/model/pepper_cnn.tflite"))
}

func TestTopPrediction(t *testing.T) {
	t.Parallel()

	labels := []string{"tomato_healthy", "tomato_late_blight", "pepper_bacterial_spot"}

	pred, err := topPrediction(labels, []float32{0.05, 0.923, 0.027})
	require.NoError(t, err)
	assert.Equal(t, "tomato_late_blight", pred.Label)
	assert.InDelta(t, 92.3, pred.Confidence, 0.001)
}

func TestTopPredictionRounding(t *testing.T) {
	t.Parallel()

	pred, err := topPrediction([]string{"a", "b"}, []float32{0.123456, 0.876544})
	require.NoError(t, err)
	assert.Equal(t, "b", pred.Label)
	assert.InDelta(t, 87.65, pred.Confidence, 0.0001)
}

func TestTopPredictionLengthMismatch(t *testing.T) {
	t.Parallel()

	// A mismatch between serving labels and the output vector means the
	// label list drifted from the model; it must never be papered over.
	_, err := topPrediction([]string{"a", "b"}, []float32{0.5})
	assert.Error(t, err)
}

func TestImageToTensorShapeAndScale(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			src.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	tensor := imageToTensor(src, 4, 4)
	require.Len(t, tensor, 4*4*3)

	// A solid red source stays red after scaling: R channel saturated, G and
	// B empty, all values in [0,1].
	for i := 0; i < len(tensor); i += 3 {
		assert.InDelta(t, 1.0, float64(tensor[i]), 0.01)
		assert.InDelta(t, 0.0, float64(tensor[i+1]), 0.01)
		assert.InDelta(t, 0.0, float64(tensor[i+2]), 0.01)
	}
}

func TestImageToTensorResizes(t *testing.T) {
	t.Parallel()

	// Any source resolution maps onto the model's fixed input resolution.
	src := image.NewRGBA(image.Rect(0, 0, 640, 480))
	tensor := imageToTensor(src, 150, 150)
	assert.Len(t, tensor, 150*150*3)
}

func TestRoundConfidence(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 92.3, roundConfidence(92.3), 0.0001)
	assert.InDelta(t, 47.0, roundConfidence(46.999), 0.0001)
	assert.InDelta(t, 87.65, roundConfidence(87.654), 0.0001)
}
