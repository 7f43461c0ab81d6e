// internal/api/v2/detections.go
package api

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/detection"
)

// DetectionPayload is the successful detection part of an upload response.
type DetectionPayload struct {
	ResultID    uint            `json:"result_id"`
	HistoryID   uint            `json:"history_id"`
	Label       string          `json:"label"`
	DisplayName string          `json:"display_name"`
	IsHealthy   bool            `json:"is_healthy"`
	Confidence  float64         `json:"confidence"`
	Severity    string          `json:"severity"`
	Advisory    string          `json:"advisory"`
	Taxonomy    TaxonomyPayload `json:"taxonomy"`
}

// MeasurementsPayload carries the validator's readings on content rejections.
type MeasurementsPayload struct {
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	GreenRatio float64 `json:"green_ratio"`
	Sharpness  float64 `json:"sharpness"`
}

// RejectionPayload explains why an upload did not produce a detection.
type RejectionPayload struct {
	Kind         string               `json:"kind"`
	Reason       string               `json:"reason,omitempty"`
	Suggestion   string               `json:"suggestion"`
	Measurements *MeasurementsPayload `json:"measurements,omitempty"`
}

// UploadResponse is the response body for detection submissions.
type UploadResponse struct {
	ImageID   uint              `json:"image_id,omitempty"`
	Status    string            `json:"status"`
	Detection *DetectionPayload `json:"detection,omitempty"`
	Rejection *RejectionPayload `json:"rejection,omitempty"`
}

// kindToStatus maps a pipeline error kind to an HTTP status code.
func kindToStatus(kind detection.ErrorKind) int {
	switch kind {
	case detection.ErrKindNoFile, detection.ErrKindInvalidFormat:
		return http.StatusBadRequest
	case detection.ErrKindTooLarge:
		return http.StatusRequestEntityTooLarge
	case detection.ErrKindValidationFailed, detection.ErrKindLowConfidence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func outcomeResponse(outcome *detection.Outcome) (int, UploadResponse) {
	resp := UploadResponse{
		ImageID: outcome.ImageID,
		Status:  outcome.Status,
	}
	if outcome.Detection != nil {
		d := outcome.Detection
		resp.Detection = &DetectionPayload{
			ResultID:    d.ResultID,
			HistoryID:   d.HistoryID,
			Label:       d.Label,
			DisplayName: d.DisplayName,
			IsHealthy:   d.IsHealthy,
			Confidence:  d.Confidence,
			Severity:    string(d.Severity),
			Advisory:    d.Advisory,
			Taxonomy:    taxonomyPayload(&d.Taxonomy),
		}
		return http.StatusCreated, resp
	}

	resp.Rejection = &RejectionPayload{
		Kind:       string(outcome.Rejection.Kind),
		Reason:     outcome.Rejection.Reason,
		Suggestion: outcome.Rejection.Suggestion,
	}
	if m := outcome.Rejection.Measurements; m != nil {
		resp.Rejection.Measurements = &MeasurementsPayload{
			Width:      m.Width,
			Height:     m.Height,
			GreenRatio: m.GreenRatio,
			Sharpness:  m.Sharpness,
		}
	}
	return kindToStatus(outcome.Rejection.Kind), resp
}

// UploadDetection accepts a multipart leaf photo and runs it through the
// detection pipeline.
func (c *Controller) UploadDetection(ctx echo.Context) error {
	grower := growerFromContext(ctx)
	grower.Note = strings.TrimSpace(ctx.FormValue("note"))
	if raw := ctx.FormValue("plot_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil && id > 0 {
			plot := uint(id)
			grower.PlotID = &plot
		}
	}

	file, err := ctx.FormFile("image")
	if err != nil {
		code, resp := outcomeResponse(&detection.Outcome{Rejection: &detection.Rejection{
			Kind:       detection.ErrKindNoFile,
			Suggestion: "Attach a leaf photo under the 'image' form field.",
		}})
		return ctx.JSON(code, resp)
	}

	// Reject oversized uploads on the declared size before reading the body.
	if rej := c.Service.Precheck(file.Size); rej != nil {
		code, resp := outcomeResponse(&detection.Outcome{Rejection: rej})
		return ctx.JSON(code, resp)
	}

	src, err := file.Open()
	if err != nil {
		return c.HandleError(ctx, err, "failed to open uploaded file", http.StatusInternalServerError)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, c.Settings.Validator.MaxUploadBytes+1))
	if err != nil {
		return c.HandleError(ctx, err, "failed to read uploaded file", http.StatusInternalServerError)
	}

	outcome, err := c.Service.Process(ctx.Request().Context(), grower,
		file.Filename, ctx.FormValue("plant_type"), data)
	if err != nil {
		// System errors carry an outcome too; respond with it but log the cause.
		c.apiLogger.Error("detection pipeline failure", "error", err, "image_id", outcome.ImageID)
	}

	code, resp := outcomeResponse(&outcome)
	return ctx.JSON(code, resp)
}

// GetDetection returns an uploaded image's lifecycle status and, when
// completed, its detection result.
func (c *Controller) GetDetection(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "invalid image ID", http.StatusBadRequest)
	}

	img, err := c.DS.GetUploadedImage(uint(id))
	if err != nil {
		return c.HandleError(ctx, err, "image not found", http.StatusNotFound)
	}
	if img.GrowerID != growerFromContext(ctx).GrowerID {
		return c.HandleError(ctx, nil, "image not found", http.StatusNotFound)
	}

	response := map[string]any{
		"image_id":    img.ID,
		"status":      img.Status,
		"plant_type":  img.PlantType,
		"uploaded_at": img.UploadedAt,
	}
	if img.FailReason != "" {
		response["fail_reason"] = img.FailReason
	}
	if img.CompletedAt != nil {
		response["completed_at"] = img.CompletedAt
	}

	if img.Status == datastore.StatusCompleted {
		result, err := c.DS.GetDetectionResult(img.ID)
		if err != nil {
			return c.HandleError(ctx, err, "detection result missing for completed image", http.StatusInternalServerError)
		}
		response["detection"] = map[string]any{
			"label":        result.Taxonomy.Label,
			"display_name": result.Taxonomy.DisplayName,
			"confidence":   result.Confidence,
			"severity":     result.Severity,
			"advisory":     result.Advisory,
			"detected_at":  result.DetectedAt,
		}
	}

	return ctx.JSON(http.StatusOK, response)
}
