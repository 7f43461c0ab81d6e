package leafnet

import (
	"log/slog"
	"sync"

	"github.com/agroguard/leafguard-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the leafnet service logger.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("leafnet")
	})
	return serviceLogger
}
