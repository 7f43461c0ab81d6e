package detection

import (
	"log/slog"
	"sync"

	"github.com/agroguard/leafguard-go/internal/logging"
)

var (
	serviceLogger *slog.Logger
	loggerOnce    sync.Once
)

func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		serviceLogger = logging.ForService("detection")
	})
	return serviceLogger
}
