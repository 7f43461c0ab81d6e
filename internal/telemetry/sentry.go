// Package telemetry provides opt-in error tracking via Sentry.
package telemetry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/logging"
)

var sentryEnabled atomic.Bool

// InitSentry initializes the Sentry SDK. Telemetry is strictly opt-in: when
// disabled in settings this is a no-op and all capture calls become no-ops.
func InitSentry(settings *conf.Settings) error {
	if !settings.Sentry.Enabled {
		logging.Info("Sentry telemetry is disabled (opt-in required)", "service", "telemetry")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:        settings.Sentry.DSN,
		SampleRate: 1.0,

		// Privacy-compliant settings: no stack traces, no hostname.
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentryEnabled.Store(true)
	logging.Info("Sentry telemetry initialized", "service", "telemetry")
	return nil
}

// Enabled reports whether Sentry capture is active.
func Enabled() bool {
	return sentryEnabled.Load()
}

// CaptureError reports an error to Sentry, tagged with the component that
// produced it. No-op when telemetry is disabled.
func CaptureError(err error, component string) {
	if !Enabled() || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureException(err)
	})
}

// CaptureMessage reports an informational message to Sentry. No-op when
// telemetry is disabled.
func CaptureMessage(message, component string) {
	if !Enabled() || message == "" {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", component)
		sentry.CaptureMessage(message)
	})
}

// Flush waits up to the given timeout for buffered events to be sent. Called
// on shutdown.
func Flush(timeout time.Duration) {
	if !Enabled() {
		return
	}
	sentry.Flush(timeout)
}
