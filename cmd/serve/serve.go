// Package serve implements the HTTP server subcommand.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	api "github.com/agroguard/leafguard-go/internal/api/v2"
	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/datastore"
	"github.com/agroguard/leafguard-go/internal/detection"
	"github.com/agroguard/leafguard-go/internal/imagecheck"
	"github.com/agroguard/leafguard-go/internal/leafnet"
	"github.com/agroguard/leafguard-go/internal/logging"
	"github.com/agroguard/leafguard-go/internal/observability"
	"github.com/agroguard/leafguard-go/internal/taxonomy"
	"github.com/agroguard/leafguard-go/internal/telemetry"
)

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the detection API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(settings)
		},
	}

	cmd.PersistentFlags().StringVar(&settings.WebServer.Port, "port", settings.WebServer.Port, "Port to listen on")

	return cmd
}

func runServer(settings *conf.Settings) error {
	logger := logging.ForService("serve")

	if err := telemetry.InitSentry(settings); err != nil {
		logger.Warn("telemetry initialization failed", "error", err)
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("failed to open datastore: %w", err)
	}
	defer func() { _ = ds.Close() }()

	// A broken model must not keep the whole service down: history and
	// taxonomy endpoints stay available while uploads report a system error.
	var classifier detection.Classifier
	ln, err := leafnet.New(settings)
	if err != nil {
		telemetry.CaptureError(err, "leafnet")
		logger.Error("classifier failed to load, serving degraded", "error", err)
	} else {
		classifier = ln
		defer ln.Delete()
	}

	service := detection.NewService(settings,
		imagecheck.New(&settings.Validator),
		classifier,
		taxonomy.NewResolver(ds),
		ds,
		metrics.Detection)

	controller := api.New(settings, ds, service, metrics)

	errChan := make(chan error, 1)
	go func() {
		addr := ":" + settings.WebServer.Port
		logger.Info("starting HTTP server", "addr", addr)
		if err := controller.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("HTTP server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := controller.Echo.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	telemetry.Flush(3 * time.Second)

	return nil
}
