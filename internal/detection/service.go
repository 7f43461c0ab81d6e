// Package detection orchestrates the leaf disease detection pipeline: image
// validation, classification, taxonomy resolution, severity grading and the
// transactional persistence of the outcome.
package detection

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG decoding
	_ "image/png"  // PNG decoding
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/errors"
	"github.com/agroguard/leafguard-go/internal/imagecheck"
	"github.com/agroguard/leafguard-go/internal/leafnet"
	"github.com/agroguard/leafguard-go/internal/observability/metrics"
	"github.com/agroguard/leafguard-go/internal/severity"
	"github.com/agroguard/leafguard-go/internal/taxonomy"
	"github.com/agroguard/leafguard-go/internal/telemetry"
)

// ErrorKind identifies why a submission did not produce a detection. The
// values are stable and appear in API responses.
type ErrorKind string

const (
	ErrKindNoFile           ErrorKind = "no-file"
	ErrKindInvalidFormat    ErrorKind = "invalid-format"
	ErrKindTooLarge         ErrorKind = "too-large"
	ErrKindValidationFailed ErrorKind = "validation-failed"
	ErrKindLowConfidence    ErrorKind = "low-confidence"
	ErrKindSystemError      ErrorKind = "system-error"
)

// GrowerContext identifies who submitted an image and where it was taken.
// It travels explicitly through the pipeline instead of ambient state.
type GrowerContext struct {
	GrowerID uint
	PlotID   *uint
	Note     string
}

// Classifier is the model abstraction the orchestrator depends on. LeafNet
// implements it; tests substitute stubs.
type Classifier interface {
	Classify(img image.Image) (leafnet.Prediction, error)
	ModelName() string
	Labels() []string
}

// Rejection describes a submission that was turned away, with an actionable
// suggestion for the grower. Measurements carries the validator's readings
// when a content check failed, so the caller can explain the rejection.
type Rejection struct {
	Kind         ErrorKind
	Reason       string // validation reason or failure detail
	Suggestion   string
	Measurements *imagecheck.Result
}

// Detection is the successful outcome of a submission, including the full
// taxonomy record so the caller can render guidance without a second lookup.
type Detection struct {
	ResultID    uint
	HistoryID   uint
	Label       string
	DisplayName string
	IsHealthy   bool
	Confidence  float64
	Severity    severity.Grade
	Advisory    string
	Taxonomy    datastore.TaxonomyEntry
}

// Outcome is the full result of processing one submission. Exactly one of
// Rejection and Detection is set, mirroring the image's final status.
type Outcome struct {
	ImageID   uint // zero when the submission never produced a record
	Status    string
	Rejection *Rejection
	Detection *Detection
}

// Service runs the detection pipeline. All collaborators are injected; the
// service holds no global state.
type Service struct {
	settings   *conf.Settings
	validator  *imagecheck.Validator
	classifier Classifier
	resolver   *taxonomy.Resolver
	ds         datastore.Interface
	metrics    *metrics.DetectionMetrics
}

// NewService assembles a detection service. The classifier may be nil when the
// model failed to load; the service then reports itself degraded and rejects
// submissions with a system error instead of crashing the process.
func NewService(settings *conf.Settings, validator *imagecheck.Validator, classifier Classifier,
	resolver *taxonomy.Resolver, ds datastore.Interface, m *metrics.DetectionMetrics) *Service {
	s := &Service{
		settings:   settings,
		validator:  validator,
		classifier: classifier,
		resolver:   resolver,
		ds:         ds,
		metrics:    m,
	}
	if m != nil {
		m.SetModelLoaded(classifier != nil)
	}
	return s
}

// ModelStatus describes the serving state of the classifier.
type ModelStatus struct {
	Loaded     bool   `json:"loaded"`
	ModelName  string `json:"model_name,omitempty"`
	NumClasses int    `json:"num_classes,omitempty"`
}

// Status reports whether the classifier is loaded and what it serves.
func (s *Service) Status() ModelStatus {
	if s.classifier == nil {
		return ModelStatus{}
	}
	return ModelStatus{
		Loaded:     true,
		ModelName:  s.classifier.ModelName(),
		NumClasses: len(s.classifier.Labels()),
	}
}

// Precheck applies the submission preconditions that must hold before any
// record is created. Returns nil when the submission may proceed.
func (s *Service) Precheck(size int64) *Rejection {
	if size <= 0 {
		return &Rejection{
			Kind:       ErrKindNoFile,
			Suggestion: "Attach a leaf photo to the request.",
		}
	}
	if size > s.settings.Validator.MaxUploadBytes {
		return &Rejection{
			Kind: ErrKindTooLarge,
			Suggestion: fmt.Sprintf("The photo exceeds the %d MB upload limit. Use a smaller image.",
				s.settings.Validator.MaxUploadBytes/1024/1024),
		}
	}
	return nil
}

// Process runs one submission through the full pipeline. Submissions failing
// the preconditions are rejected without creating any record; everything past
// that point leaves an UploadedImage row whose final status reflects the
// outcome. The error return is non-nil only for system errors; rejections the
// grower can fix come back in the Outcome alone.
func (s *Service) Process(ctx context.Context, grower GrowerContext, filename, plantType string, data []byte) (Outcome, error) {
	if rej := s.Precheck(int64(len(data))); rej != nil {
		s.recordRejection(rej)
		return Outcome{Rejection: rej}, nil
	}

	// Spool the upload to a scoped scratch file so a crash mid-pipeline
	// leaves something to inspect. It is removed on every exit path.
	storedFile, cleanup, err := s.spoolUpload(filename, data)
	if err != nil {
		return s.systemError(nil, err)
	}
	defer cleanup()

	img := &datastore.UploadedImage{
		GrowerID:   grower.GrowerID,
		StoredFile: storedFile,
		PlantType:  plantType,
		Status:     datastore.StatusPending,
	}
	if err := s.ds.CreateUploadedImage(img); err != nil {
		return s.systemError(nil, err)
	}
	if err := s.ds.SetImageStatus(img.ID, datastore.StatusProcessing); err != nil {
		return s.systemError(img, err)
	}

	check, err := s.validator.Validate(data)
	if err != nil {
		// Undecodable bytes: the grower sent something that is not an image.
		rej := &Rejection{
			Kind:       ErrKindInvalidFormat,
			Suggestion: "The file could not be read as an image. Upload a JPEG or PNG photo.",
		}
		return s.reject(img, rej)
	}
	if !check.OK {
		rej := &Rejection{
			Kind:         ErrKindValidationFailed,
			Reason:       string(check.Reason),
			Suggestion:   imagecheck.Suggestion(check.Reason),
			Measurements: &check,
		}
		return s.reject(img, rej)
	}

	if s.classifier == nil {
		return s.systemError(img, errors.Newf("classifier model is not loaded").
			Component("detection").
			Category(errors.CategoryState).
			Build())
	}

	pred, err := s.classify(ctx, data)
	if err != nil {
		return s.systemError(img, err)
	}

	if pred.Confidence < s.settings.LeafNet.ConfidenceGate {
		rej := &Rejection{
			Kind:   ErrKindLowConfidence,
			Reason: fmt.Sprintf("top confidence %.2f%% below %.0f%%", pred.Confidence, s.settings.LeafNet.ConfidenceGate),
			Suggestion: "The photo could not be identified with enough confidence. " +
				"Retake it closer to the affected leaf in good light.",
		}
		return s.reject(img, rej)
	}

	entry, err := s.resolver.Resolve(pred.Label)
	if err != nil {
		return s.systemError(img, err)
	}

	grade, advisory := severity.Advise(&entry, pred.Confidence)

	result := &datastore.DetectionResult{
		UploadedImageID: img.ID,
		TaxonomyEntryID: entry.ID,
		Confidence:      pred.Confidence,
		Severity:        string(grade),
		AffectedLeaves:  1,
		Advisory:        advisory,
	}
	history := &datastore.DetectionHistoryEntry{
		GrowerID: grower.GrowerID,
		PlotID:   grower.PlotID,
		Note:     grower.Note,
	}
	if err := s.ds.SaveDetection(result, history); err != nil {
		return s.systemError(img, err)
	}

	if s.metrics != nil {
		s.metrics.RecordUpload(datastore.StatusCompleted)
		s.metrics.RecordDetection(string(grade))
	}
	getLogger().Info("detection completed",
		"image_id", img.ID,
		"grower_id", grower.GrowerID,
		"label", pred.Label,
		"confidence", pred.Confidence,
		"severity", grade)

	return Outcome{
		ImageID: img.ID,
		Status:  datastore.StatusCompleted,
		Detection: &Detection{
			ResultID:    result.ID,
			HistoryID:   history.ID,
			Label:       pred.Label,
			DisplayName: entry.DisplayName,
			IsHealthy:   grade == severity.GradeSafe,
			Confidence:  pred.Confidence,
			Severity:    grade,
			Advisory:    advisory,
			Taxonomy:    entry,
		},
	}, nil
}

// classify decodes the upload and runs inference under the configured
// deadline. The interpreter cannot be interrupted, so on timeout the inference
// goroutine is abandoned and its eventual result discarded.
func (s *Service) classify(ctx context.Context, data []byte) (leafnet.Prediction, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return leafnet.Prediction{}, errors.New(err).
			Component("detection").
			Category(errors.CategoryImageDecode).
			Build()
	}

	timeout := time.Duration(s.settings.LeafNet.InferenceTimeout) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type inference struct {
		pred leafnet.Prediction
		err  error
	}
	ch := make(chan inference, 1)
	start := time.Now()
	go func() {
		pred, err := s.classifier.Classify(img)
		ch <- inference{pred, err}
	}()

	select {
	case res := <-ch:
		if s.metrics != nil {
			s.metrics.RecordInference(s.classifier.ModelName(), time.Since(start).Seconds(), res.err)
		}
		if res.err != nil {
			return leafnet.Prediction{}, errors.New(res.err).
				Component("detection").
				Category(errors.CategoryInference).
				Timing("inference", time.Since(start)).
				Build()
		}
		return res.pred, nil
	case <-ctx.Done():
		if s.metrics != nil {
			s.metrics.RecordInference(s.classifier.ModelName(), time.Since(start).Seconds(), ctx.Err())
		}
		return leafnet.Prediction{}, errors.New(ctx.Err()).
			Component("detection").
			Category(errors.CategoryTimeout).
			Context("timeout_seconds", s.settings.LeafNet.InferenceTimeout).
			Build()
	}
}

// spoolUpload writes the upload to a uniquely named file under the scratch
// directory and returns its name with a cleanup function.
func (s *Service) spoolUpload(filename string, data []byte) (string, func(), error) {
	dir := s.settings.UploadDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryFileIO).
			Context("upload_dir", dir).
			Build()
	}

	name := uuid.New().String() + filepath.Ext(filename)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return "", nil, errors.New(err).
			Component("detection").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	return name, func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			getLogger().Warn("failed to remove scratch upload", "path", path, "error", err)
		}
	}, nil
}

// reject marks the image failed with the rejection reason and returns the
// rejected outcome.
func (s *Service) reject(img *datastore.UploadedImage, rej *Rejection) (Outcome, error) {
	// Validation failures record the specific reason; other kinds record the
	// kind itself and keep the detail in the response only.
	reason := string(rej.Kind)
	if rej.Kind == ErrKindValidationFailed && rej.Reason != "" {
		reason = rej.Reason
	}
	if err := s.ds.SetImageFailed(img.ID, reason); err != nil {
		return s.systemError(img, err)
	}

	s.recordRejection(rej)
	getLogger().Info("submission rejected",
		"image_id", img.ID,
		"kind", rej.Kind,
		"reason", rej.Reason)

	return Outcome{
		ImageID:   img.ID,
		Status:    datastore.StatusFailed,
		Rejection: rej,
	}, nil
}

// systemError marks the image failed (when a record exists), reports the
// error, and returns it alongside a system-error outcome.
func (s *Service) systemError(img *datastore.UploadedImage, err error) (Outcome, error) {
	outcome := Outcome{
		Status: datastore.StatusFailed,
		Rejection: &Rejection{
			Kind:       ErrKindSystemError,
			Suggestion: "Something went wrong on our side. Try again in a moment.",
		},
	}
	if img != nil {
		outcome.ImageID = img.ID
		if ferr := s.ds.SetImageFailed(img.ID, string(ErrKindSystemError)); ferr != nil {
			getLogger().Error("failed to mark image failed", "image_id", img.ID, "error", ferr)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordUpload(datastore.StatusFailed)
	}
	telemetry.CaptureError(err, "detection")
	getLogger().Error("detection pipeline error", "error", err)

	return outcome, err
}

func (s *Service) recordRejection(rej *Rejection) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordUpload(datastore.StatusFailed)
	reason := rej.Reason
	if reason == "" || rej.Kind != ErrKindValidationFailed {
		reason = string(rej.Kind)
	}
	s.metrics.RecordRejection(reason)
}
