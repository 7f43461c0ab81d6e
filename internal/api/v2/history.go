// internal/api/v2/history.go
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/agroguard/leafguard-go/internal/errors"
)

// HistoryEntry is one row of a grower's detection history.
type HistoryEntry struct {
	ID             uint    `json:"id"`
	ImageID        uint    `json:"image_id"`
	Label          string  `json:"label"`
	DisplayName    string  `json:"display_name"`
	Confidence     float64 `json:"confidence"`
	Severity       string  `json:"severity"`
	Advisory       string  `json:"advisory"`
	HandlingStatus string  `json:"handling_status"`
	PlotID         *uint   `json:"plot_id,omitempty"`
	Note           string  `json:"note,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// ListHistory returns the authenticated grower's detection history, newest
// first.
func (c *Controller) ListHistory(ctx echo.Context) error {
	grower := growerFromContext(ctx)

	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))
	offset, _ := strconv.Atoi(ctx.QueryParam("offset"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	entries, err := c.DS.GetDetectionHistory(grower.GrowerID, limit, offset)
	if err != nil {
		return c.HandleError(ctx, err, "failed to load detection history", http.StatusInternalServerError)
	}

	out := make([]HistoryEntry, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, HistoryEntry{
			ID:             e.ID,
			ImageID:        e.Result.UploadedImageID,
			Label:          e.Result.Taxonomy.Label,
			DisplayName:    e.Result.Taxonomy.DisplayName,
			Confidence:     e.Result.Confidence,
			Severity:       e.Result.Severity,
			Advisory:       e.Result.Advisory,
			HandlingStatus: e.HandlingStatus,
			PlotID:         e.PlotID,
			Note:           e.Note,
			CreatedAt:      e.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"entries": out,
		"limit":   limit,
		"offset":  offset,
	})
}

// UpdateHandling updates the handling workflow status of a history entry
// owned by the authenticated grower.
func (c *Controller) UpdateHandling(ctx echo.Context) error {
	grower := growerFromContext(ctx)

	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return c.HandleError(ctx, err, "invalid history ID", http.StatusBadRequest)
	}

	var body struct {
		HandlingStatus string `json:"handling_status"`
	}
	if err := ctx.Bind(&body); err != nil {
		return c.HandleError(ctx, err, "invalid request body", http.StatusBadRequest)
	}

	// Ownership check before mutation.
	entries, err := c.DS.GetDetectionHistory(grower.GrowerID, 0, 0)
	if err != nil {
		return c.HandleError(ctx, err, "failed to load detection history", http.StatusInternalServerError)
	}
	owned := false
	for i := range entries {
		if entries[i].ID == uint(id) {
			owned = true
			break
		}
	}
	if !owned {
		return c.HandleError(ctx, nil, "history entry not found", http.StatusNotFound)
	}

	if err := c.DS.UpdateHandlingStatus(uint(id), body.HandlingStatus); err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.IsCategory(err, errors.CategoryValidation):
			code = http.StatusBadRequest
		case errors.IsNotFound(err):
			code = http.StatusNotFound
		}
		return c.HandleError(ctx, err, "failed to update handling status", code)
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"id":              id,
		"handling_status": body.HandlingStatus,
	})
}
