package leafnet

import (
	"fmt"
	"image"
	"math"

	tflite "github.com/tphakala/go-tflite"
	"golang.org/x/image/draw"
)

// Prediction is the classifier's top result for one image.
type Prediction struct {
	Label      string  // class label in serving order
	Confidence float64 // percent, rounded to two decimals
}

// Classify runs a single forward pass over a validated image and returns the
// arg-max class label with its confidence. The confidence gate is policy of
// the caller, not of the classifier.
func (ln *LeafNet) Classify(img image.Image) (Prediction, error) {
	// The interpreter is not reentrant; serialize access across requests.
	ln.mu.Lock()
	defer ln.mu.Unlock()

	inputTensor := ln.interpreter.GetInputTensor(0)
	if inputTensor == nil {
		return Prediction{}, fmt.Errorf("cannot get input tensor")
	}

	copy(inputTensor.Float32s(), imageToTensor(img, ln.inputWidth, ln.inputHeight))

	if status := ln.interpreter.Invoke(); status != tflite.OK {
		return Prediction{}, fmt.Errorf("tensor invoke failed: %v", status)
	}

	outputTensor := ln.interpreter.GetOutputTensor(0)
	probs := extractPredictions(outputTensor)

	return topPrediction(ln.labels, probs)
}

// imageToTensor resizes an image to the model's input resolution and lays it
// out as a NHWC float32 tensor with pixel values scaled to [0,1]. The batch
// dimension is always 1.
func imageToTensor(img image.Image, width, height int) []float32 {
	scaled := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, img.Bounds(), draw.Over, nil)

	tensor := make([]float32, width*height*3)
	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			offset := scaled.PixOffset(x, y)
			tensor[i] = float32(scaled.Pix[offset]) / 255.0
			tensor[i+1] = float32(scaled.Pix[offset+1]) / 255.0
			tensor[i+2] = float32(scaled.Pix[offset+2]) / 255.0
			i += 3
		}
	}
	return tensor
}

// extractPredictions copies the probability vector out of the output tensor.
func extractPredictions(tensor *tflite.Tensor) []float32 {
	predSize := tensor.Dim(tensor.NumDims() - 1)
	predictions := make([]float32, predSize)
	copy(predictions, tensor.Float32s())
	return predictions
}

// topPrediction pairs the probability vector with the serving labels and
// returns the arg-max as a percentage rounded to two decimals.
func topPrediction(labels []string, probs []float32) (Prediction, error) {
	if len(labels) != len(probs) {
		return Prediction{}, fmt.Errorf("mismatched labels and predictions lengths: %d vs %d",
			len(labels), len(probs))
	}

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}

	return Prediction{
		Label:      labels[best],
		Confidence: roundConfidence(float64(probs[best]) * 100),
	}, nil
}

// roundConfidence rounds a percentage to two-decimal precision.
func roundConfidence(pct float64) float64 {
	return math.Round(pct*100) / 100
}
