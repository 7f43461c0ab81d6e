// internal/api/v2/model.go
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetModelStatus reports whether the classifier model is loaded and what it
// serves. Operators use this to tell a degraded deployment from a healthy one.
func (c *Controller) GetModelStatus(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Service.Status())
}
