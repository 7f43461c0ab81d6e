package datastore

import (
	"log/slog"
	"sync"

	"github.com/agroguard/leafguard-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

// GetLogger returns the datastore service logger.
func GetLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("datastore")
	})
	return serviceLogger
}
