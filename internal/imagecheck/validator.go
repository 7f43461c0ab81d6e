// Package imagecheck rejects images unlikely to be usable leaf photos before
// any inference is attempted.
package imagecheck

import (
	"bytes"
	"image"
	_ "image/jpeg" // JPEG decoding
	_ "image/png"  // PNG decoding

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/errors"
)

// Reason identifies why an image was rejected.
type Reason string

const (
	ReasonTooSmall    Reason = "too-small"
	ReasonNotLeafLike Reason = "not-leaf-like"
	ReasonTooBlurry   Reason = "too-blurry"
)

// Vegetative-green band on a 0-1 hue scale, with low floors on saturation and
// value so near-gray and near-black pixels don't count as foliage.
const (
	greenHueLow  = 0.15
	greenHueHigh = 0.55
	satFloor     = 0.15
	valFloor     = 0.15
)

// Result carries the validation verdict and the measured values, which are
// returned on both acceptance and rejection for telemetry and user feedback.
type Result struct {
	OK         bool
	Reason     Reason  // set when OK is false
	Width      int
	Height     int
	GreenRatio float64 // fraction of vegetative-green pixels
	Sharpness  float64 // variance of the Laplacian
}

// Validator checks submitted images against configured thresholds. It has no
// side effects; validation is a pure function of the image bytes.
type Validator struct {
	minDimension  int
	minGreenRatio float64
	minSharpness  float64
}

// New creates a Validator from the configured thresholds.
func New(settings *conf.ValidatorSettings) *Validator {
	return &Validator{
		minDimension:  settings.MinDimension,
		minGreenRatio: settings.MinGreenRatio,
		minSharpness:  settings.MinSharpness,
	}
}

// Validate decodes the image and applies the size, leaf-likeness and
// sharpness checks in order. A non-nil error means the bytes could not be
// decoded at all; content rejections come back as Result.OK == false.
func (v *Validator) Validate(data []byte) (Result, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Result{}, errors.New(err).
			Component("imagecheck").
			Category(errors.CategoryImageDecode).
			Context("bytes", len(data)).
			Build()
	}
	_ = format

	bounds := img.Bounds()
	result := Result{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}

	if result.Width < v.minDimension || result.Height < v.minDimension {
		result.Reason = ReasonTooSmall
		return result, nil
	}

	result.GreenRatio = greenFraction(img)
	result.Sharpness = laplacianVariance(img)

	// Leaf-likeness is checked before sharpness: a sharp photo of the wrong
	// subject is still useless, and the reason shown to the grower should
	// say so.
	if result.GreenRatio < v.minGreenRatio {
		result.Reason = ReasonNotLeafLike
		return result, nil
	}

	if result.Sharpness < v.minSharpness {
		result.Reason = ReasonTooBlurry
		return result, nil
	}

	result.OK = true
	return result, nil
}

// Suggestion maps a rejection reason to an actionable hint for the grower.
func Suggestion(reason Reason) string {
	switch reason {
	case ReasonTooSmall:
		return "The photo is too small. Use a camera resolution of at least 100x100 pixels."
	case ReasonNotLeafLike:
		return "The photo does not look like a leaf. Make sure the leaf fills most of the frame."
	case ReasonTooBlurry:
		return "The photo is too blurry. Hold the camera steady and retake with better focus."
	default:
		return "Retake the photo and try again."
	}
}

// greenFraction computes the fraction of pixels whose hue falls in the
// vegetative-green band with saturation and value above the floors.
func greenFraction(img image.Image) float64 {
	bounds := img.Bounds()
	total := bounds.Dx() * bounds.Dy()
	if total == 0 {
		return 0
	}

	green := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			h, s, val := rgbToHSV(float64(r)/65535.0, float64(g)/65535.0, float64(b)/65535.0)
			if h >= greenHueLow && h <= greenHueHigh && s > satFloor && val > valFloor {
				green++
			}
		}
	}

	return float64(green) / float64(total)
}

// rgbToHSV converts normalized RGB values to HSV with hue on a 0-1 scale.
func rgbToHSV(r, g, b float64) (h, s, v float64) {
	maxC := max(r, g, b)
	minC := min(r, g, b)
	v = maxC

	delta := maxC - minC
	if maxC > 0 {
		s = delta / maxC
	}
	if delta == 0 {
		return 0, s, v
	}

	switch maxC {
	case r:
		h = (g - b) / delta
		if h < 0 {
			h += 6
		}
	case g:
		h = (b-r)/delta + 2
	default:
		h = (r-g)/delta + 4
	}
	return h / 6, s, v
}

// laplacianVariance measures image sharpness as the variance of a discrete
// Laplacian over the grayscale image. Blurry images score low because edges
// are the main contributors.
func laplacianVariance(img image.Image) float64 {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	// Grayscale via the standard luma weights.
	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			gray[y*w+x] = 0.299*float64(r)/257.0 + 0.587*float64(g)/257.0 + 0.114*float64(b)/257.0
		}
	}

	// 4-neighbor Laplacian over interior pixels.
	n := (w - 2) * (h - 2)
	lap := make([]float64, 0, n)
	var sum float64
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			v := gray[(y-1)*w+x] + gray[(y+1)*w+x] + gray[y*w+x-1] + gray[y*w+x+1] - 4*gray[y*w+x]
			lap = append(lap, v)
			sum += v
		}
	}

	mean := sum / float64(n)
	var variance float64
	for _, v := range lap {
		d := v - mean
		variance += d * d
	}
	return variance / float64(n)
}
