package detection

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/imagecheck"
	"github.com/agroguard/leafguard-go/internal/leafnet"
	"github.com/agroguard/leafguard-go/internal/severity"
	"github.com/agroguard/leafguard-go/internal/taxonomy"
)

// stubClassifier returns a canned prediction, or blocks until the context
// used by the pipeline would have expired.
type stubClassifier struct {
	pred  leafnet.Prediction
	err   error
	delay time.Duration
}

func (s *stubClassifier) Classify(_ image.Image) (leafnet.Prediction, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.pred, s.err
}

func (s *stubClassifier) ModelName() string { return "stub.tflite" }

func (s *stubClassifier) Labels() []string {
	return []string{"tomato_healthy", "tomato_late_blight"}
}

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	settings := &conf.Settings{UploadDir: t.TempDir()}
	settings.LeafNet.ConfidenceGate = 50.0
	settings.LeafNet.InferenceTimeout = 5
	settings.Validator.MinDimension = 100
	settings.Validator.MinGreenRatio = 0.15
	settings.Validator.MinSharpness = 50.0
	settings.Validator.MaxUploadBytes = 10 * 1024 * 1024
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "detection_test.db")
	return settings
}

func newTestService(t *testing.T, settings *conf.Settings, classifier Classifier) (*Service, datastore.Interface) {
	t.Helper()

	ds := datastore.New(settings)
	require.NoError(t, ds.Open())
	t.Cleanup(func() { _ = ds.Close() })

	svc := NewService(settings,
		imagecheck.New(&settings.Validator),
		classifier,
		taxonomy.NewResolver(ds),
		ds, nil)
	return svc, ds
}

// leafPhoto renders a green/dark checkerboard that passes the size, green
// ratio and sharpness checks.
func leafPhoto(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.RGBA{30, 160, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{10, 40, 10, 255})
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func tinyPhoto(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessHealthyLeaf(t *testing.T) {
	settings := testSettings(t)
	svc, ds := newTestService(t, settings, &stubClassifier{
		pred: leafnet.Prediction{Label: "tomato_healthy", Confidence: 96.5},
	})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", leafPhoto(t))
	require.NoError(t, err)
	require.NotNil(t, outcome.Detection)
	assert.Nil(t, outcome.Rejection)
	assert.Equal(t, datastore.StatusCompleted, outcome.Status)
	assert.Equal(t, severity.GradeSafe, outcome.Detection.Severity)
	assert.True(t, outcome.Detection.IsHealthy)
	assert.Equal(t, 96.5, outcome.Detection.Confidence)

	img, err := ds.GetUploadedImage(outcome.ImageID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusCompleted, img.Status)
	require.NotNil(t, img.CompletedAt)

	result, err := ds.GetDetectionResult(outcome.ImageID)
	require.NoError(t, err)
	assert.Equal(t, "tomato_healthy", result.Taxonomy.Label)
}

func TestProcessDiseaseHighSeverity(t *testing.T) {
	settings := testSettings(t)
	svc, ds := newTestService(t, settings, &stubClassifier{
		pred: leafnet.Prediction{Label: "tomato_late_blight", Confidence: 91.0},
	})

	plot := uint(3)
	grower := GrowerContext{GrowerID: 7, PlotID: &plot, Note: "north field row 2"}
	outcome, err := svc.Process(context.Background(), grower, "leaf.png", "tomato", leafPhoto(t))
	require.NoError(t, err)
	require.NotNil(t, outcome.Detection)
	assert.Equal(t, severity.GradeHigh, outcome.Detection.Severity)
	assert.Contains(t, outcome.Detection.Advisory, "Act immediately")

	// The history entry carries the grower context.
	entries, err := ds.GetDetectionHistory(7, 0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "north field row 2", entries[0].Note)
	require.NotNil(t, entries[0].PlotID)
	assert.Equal(t, plot, *entries[0].PlotID)
	assert.Equal(t, datastore.HandlingPending, entries[0].HandlingStatus)

	// First sighting bumps the taxonomy attack counter.
	entry, err := ds.GetTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.DetectionCount)
}

func TestProcessLowConfidence(t *testing.T) {
	settings := testSettings(t)
	svc, ds := newTestService(t, settings, &stubClassifier{
		pred: leafnet.Prediction{Label: "tomato_late_blight", Confidence: 46.2},
	})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", leafPhoto(t))
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Nil(t, outcome.Detection)
	assert.Equal(t, ErrKindLowConfidence, outcome.Rejection.Kind)
	assert.NotEmpty(t, outcome.Rejection.Suggestion)

	img, err := ds.GetUploadedImage(outcome.ImageID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, img.Status)
	assert.Equal(t, string(ErrKindLowConfidence), img.FailReason)

	// No detection result exists for a failed image.
	_, err = ds.GetDetectionResult(outcome.ImageID)
	assert.Error(t, err)
}

func TestProcessValidationFailure(t *testing.T) {
	settings := testSettings(t)
	svc, ds := newTestService(t, settings, &stubClassifier{
		pred: leafnet.Prediction{Label: "tomato_healthy", Confidence: 99.0},
	})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "tiny.png", "tomato", tinyPhoto(t))
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindValidationFailed, outcome.Rejection.Kind)
	assert.Equal(t, string(imagecheck.ReasonTooSmall), outcome.Rejection.Reason)
	assert.Contains(t, outcome.Rejection.Suggestion, "100x100")
	require.NotNil(t, outcome.Rejection.Measurements)
	assert.Equal(t, 50, outcome.Rejection.Measurements.Width)

	img, err := ds.GetUploadedImage(outcome.ImageID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, img.Status)
	assert.Equal(t, string(imagecheck.ReasonTooSmall), img.FailReason)
}

func TestProcessUndecodableBytes(t *testing.T) {
	settings := testSettings(t)
	svc, ds := newTestService(t, settings, &stubClassifier{})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "junk.png", "tomato",
		[]byte("this is not an image at all, but long enough to pass prechecks"))
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindInvalidFormat, outcome.Rejection.Kind)

	img, err := ds.GetUploadedImage(outcome.ImageID)
	require.NoError(t, err)
	assert.Equal(t, datastore.StatusFailed, img.Status)
}

func TestPrecheckRejectionsCreateNoRecords(t *testing.T) {
	settings := testSettings(t)
	settings.Validator.MaxUploadBytes = 100
	svc, ds := newTestService(t, settings, &stubClassifier{})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", nil)
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindNoFile, outcome.Rejection.Kind)
	assert.Zero(t, outcome.ImageID)

	outcome, err = svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato",
		bytes.Repeat([]byte{0xff}, 200))
	require.NoError(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindTooLarge, outcome.Rejection.Kind)
	assert.Zero(t, outcome.ImageID)

	_, err = ds.GetUploadedImage(1)
	assert.Error(t, err)
}

func TestProcessInferenceTimeout(t *testing.T) {
	settings := testSettings(t)
	settings.LeafNet.InferenceTimeout = 1
	svc, ds := newTestService(t, settings, &stubClassifier{
		pred:  leafnet.Prediction{Label: "tomato_healthy", Confidence: 99.0},
		delay: 2 * time.Second,
	})

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", leafPhoto(t))
	require.Error(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindSystemError, outcome.Rejection.Kind)

	img, dbErr := ds.GetUploadedImage(outcome.ImageID)
	require.NoError(t, dbErr)
	assert.Equal(t, datastore.StatusFailed, img.Status)
	assert.Equal(t, string(ErrKindSystemError), img.FailReason)
}

func TestProcessWithoutClassifierIsSystemError(t *testing.T) {
	settings := testSettings(t)
	svc, _ := newTestService(t, settings, nil)

	outcome, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", leafPhoto(t))
	require.Error(t, err)
	require.NotNil(t, outcome.Rejection)
	assert.Equal(t, ErrKindSystemError, outcome.Rejection.Kind)
}

func TestProcessRemovesScratchFile(t *testing.T) {
	settings := testSettings(t)
	svc, _ := newTestService(t, settings, &stubClassifier{
		pred: leafnet.Prediction{Label: "tomato_healthy", Confidence: 96.5},
	})

	_, err := svc.Process(context.Background(), GrowerContext{GrowerID: 7}, "leaf.png", "tomato", leafPhoto(t))
	require.NoError(t, err)

	files, err := os.ReadDir(settings.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestStatus(t *testing.T) {
	settings := testSettings(t)

	svc, _ := newTestService(t, settings, &stubClassifier{})
	status := svc.Status()
	assert.True(t, status.Loaded)
	assert.Equal(t, "stub.tflite", status.ModelName)
	assert.Equal(t, 2, status.NumClasses)

	degraded, _ := newTestService(t, settings, nil)
	assert.False(t, degraded.Status().Loaded)
}
