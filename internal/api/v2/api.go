// internal/api/v2/api.go
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/detection"
	"github.com/agroguard/leafguard-go/internal/logging"
	"github.com/agroguard/leafguard-go/internal/observability"
)

const growerHeader = "X-Grower-ID"

// Controller manages the API routes and handlers.
type Controller struct {
	Echo      *echo.Echo
	Group     *echo.Group
	DS        datastore.Interface
	Settings  *conf.Settings
	Service   *detection.Service
	Metrics   *observability.Metrics
	apiLogger *slog.Logger
	startTime time.Time
}

// New creates a new API controller with all routes registered.
func New(settings *conf.Settings, ds datastore.Interface, svc *detection.Service,
	m *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:      e,
		DS:        ds,
		Settings:  settings,
		Service:   svc,
		Metrics:   m,
		apiLogger: logging.ForService("api"),
		startTime: time.Now(),
	}

	c.Group = e.Group("/api/v2")
	c.Group.Use(c.LoggingMiddleware())
	c.initRoutes()

	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.HTTPHandler()))
	}

	return c
}

func (c *Controller) initRoutes() {
	// Publicly accessible, no grower context required
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/model/status", c.GetModelStatus)
	c.Group.GET("/taxonomy", c.ListTaxonomy)
	c.Group.GET("/taxonomy/:label", c.GetTaxonomy)

	// Grower-scoped routes
	grower := c.Group.Group("", c.GrowerContextMiddleware())
	grower.POST("/detections", c.UploadDetection)
	grower.GET("/detections/:id", c.GetDetection)
	grower.GET("/history", c.ListHistory)
	grower.PATCH("/history/:id/handling", c.UpdateHandling)
}

// GrowerContextMiddleware extracts the grower identity from request headers
// and stores it as a typed value on the request context. Requests without a
// valid grower ID are rejected before any handler runs.
func (c *Controller) GrowerContextMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			raw := ctx.Request().Header.Get(growerHeader)
			if raw == "" {
				return c.HandleError(ctx, nil, "missing "+growerHeader+" header", http.StatusUnauthorized)
			}
			id, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || id == 0 {
				return c.HandleError(ctx, err, "invalid "+growerHeader+" header", http.StatusBadRequest)
			}
			ctx.Set("grower", detection.GrowerContext{GrowerID: uint(id)})
			return next(ctx)
		}
	}
}

// growerFromContext returns the typed grower context set by the middleware.
func growerFromContext(ctx echo.Context) detection.GrowerContext {
	gc, _ := ctx.Get("grower").(detection.GrowerContext)
	return gc
}

// LoggingMiddleware logs API requests with timing information.
func (c *Controller) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			c.apiLogger.Info("API request",
				"method", ctx.Request().Method,
				"path", ctx.Request().URL.Path,
				"status", ctx.Response().Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"ip", ctx.RealIP())
			return err
		}
	}
}

// HealthCheck handles the API health check endpoint.
func (c *Controller) HealthCheck(ctx echo.Context) error {
	response := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(c.startTime).String(),
	}

	dbStatus := "connected"
	if _, err := c.DS.ListTaxonomyEntries(); err != nil {
		dbStatus = "disconnected"
		response["status"] = "degraded"
	}
	response["database_status"] = dbStatus

	if !c.Service.Status().Loaded {
		response["status"] = "degraded"
		response["model_status"] = "not loaded"
	}

	return ctx.JSON(http.StatusOK, response)
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// HandleError constructs and returns an appropriate error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := ErrorResponse{
		Error:         message,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.New().String()[:8],
	}
	if err != nil {
		resp.Error = err.Error()
	}

	c.apiLogger.Error("API Error",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"error", fmt.Sprintf("%v", err),
		"code", code,
		"path", ctx.Request().URL.Path,
		"method", ctx.Request().Method,
		"ip", ctx.RealIP())

	return ctx.JSON(code, resp)
}
