// internal/api/v2/taxonomy.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/errors"
)

// TaxonomyPayload is the public view of a taxonomy entry.
type TaxonomyPayload struct {
	Label          string `json:"label"`
	DisplayName    string `json:"display_name"`
	LatinName      string `json:"latin_name,omitempty"`
	Description    string `json:"description,omitempty"`
	Symptoms       string `json:"symptoms,omitempty"`
	Prevention     string `json:"prevention,omitempty"`
	Treatment      string `json:"treatment,omitempty"`
	DetectionCount int64  `json:"detection_count"`
}

func taxonomyPayload(e *datastore.TaxonomyEntry) TaxonomyPayload {
	return TaxonomyPayload{
		Label:          e.Label,
		DisplayName:    e.DisplayName,
		LatinName:      e.LatinName,
		Description:    e.Description,
		Symptoms:       e.Symptoms,
		Prevention:     e.Prevention,
		Treatment:      e.Treatment,
		DetectionCount: e.DetectionCount,
	}
}

// ListTaxonomy returns all known diseases and pests, most detected first.
func (c *Controller) ListTaxonomy(ctx echo.Context) error {
	entries, err := c.DS.ListTaxonomyEntries()
	if err != nil {
		return c.HandleError(ctx, err, "failed to list taxonomy", http.StatusInternalServerError)
	}

	out := make([]TaxonomyPayload, 0, len(entries))
	for i := range entries {
		out = append(out, taxonomyPayload(&entries[i]))
	}
	return ctx.JSON(http.StatusOK, map[string]any{"entries": out})
}

// GetTaxonomy returns one taxonomy entry by class label.
func (c *Controller) GetTaxonomy(ctx echo.Context) error {
	entry, err := c.DS.GetTaxonomyEntry(ctx.Param("label"))
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HandleError(ctx, err, "taxonomy entry not found", http.StatusNotFound)
		}
		return c.HandleError(ctx, err, "failed to load taxonomy entry", http.StatusInternalServerError)
	}
	return ctx.JSON(http.StatusOK, taxonomyPayload(&entry))
}
