// Package conf loads and validates the application configuration.
package conf

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/spf13/viper"

	"github.com/agroguard/leafguard-go/internal/errors"
)

// LeafNetSettings holds classifier model configuration.
type LeafNetSettings struct {
	ModelPath        string  // path to the .tflite model file
	LabelPath        string  // optional override for the bundled label file
	Threads          int     // interpreter thread count, 0 = all cores
	ConfidenceGate   float64 // minimum confidence (percent) for a detection to count
	InferenceTimeout int     // seconds allowed for a single forward pass
	Debug            bool
}

// ValidatorSettings holds image validation thresholds.
type ValidatorSettings struct {
	MinDimension   int     // minimum width and height in pixels
	MinGreenRatio  float64 // minimum fraction of vegetative-green pixels
	MinSharpness   float64 // minimum Laplacian variance
	MaxUploadBytes int64   // upload size cap enforced at the API boundary
}

// SQLiteSettings holds SQLite database configuration.
type SQLiteSettings struct {
	Enabled bool
	Path    string
}

// MySQLSettings holds MySQL database configuration.
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Database string
	Host     string
	Port     string
}

// OutputSettings groups the datastore backends.
type OutputSettings struct {
	SQLite SQLiteSettings
	MySQL  MySQLSettings
}

// WebServerSettings holds the HTTP API configuration.
type WebServerSettings struct {
	Enabled bool
	Port    string
	Debug   bool
}

// SentrySettings holds optional telemetry configuration.
type SentrySettings struct {
	Enabled bool // opt-in only
	DSN     string
}

// Settings is the root configuration object.
type Settings struct {
	Debug     bool
	UploadDir string // scratch directory for in-flight upload files

	LeafNet   LeafNetSettings
	Validator ValidatorSettings
	Output    OutputSettings
	WebServer WebServerSettings
	Sentry    SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	once             sync.Once
)

// Load reads the configuration into a new Settings instance and stores it as
// the package singleton.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}

	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig()

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, run on defaults
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetSettings returns the current settings instance.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the settings singleton, loading it on first use.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				log.Fatalf("Error loading settings: %v", err)
			}
		}
	})
	return GetSettings()
}

// GetDefaultConfigPaths returns a list of default configuration paths for the
// current operating system, following standard conventions for application
// configuration files.
func GetDefaultConfigPaths() ([]string, error) {
	var configPaths []string

	exePath, err := os.Executable()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-executable-path").
			Build()
	}
	exeDir := filepath.Dir(exePath)

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			exeDir,
			filepath.Join(homeDir, "AppData", "Roaming", "leafguard-go"),
		}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "leafguard-go"),
			"/etc/leafguard-go",
			".",
		}
	}

	return configPaths, nil
}

// GetBasePath expands environment variables in the given path and ensures the
// resulting directory exists.
func GetBasePath(path string) string {
	expandedPath := os.ExpandEnv(path)
	basePath := filepath.Clean(expandedPath)

	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		if err := os.MkdirAll(basePath, 0o750); err != nil {
			fmt.Printf("failed to create directory '%s': %v\n", basePath, err)
		}
	}

	return basePath
}
