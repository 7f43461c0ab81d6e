package conf

import (
	"github.com/agroguard/leafguard-go/internal/errors"
)

// ValidateSettings checks the loaded settings for inconsistencies that would
// make the pipeline misbehave at runtime.
func ValidateSettings(settings *Settings) error {
	if settings.LeafNet.ConfidenceGate < 0 || settings.LeafNet.ConfidenceGate > 100 {
		return errors.Newf("leafnet.confidencegate must be between 0 and 100, got %v",
			settings.LeafNet.ConfidenceGate).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.LeafNet.InferenceTimeout <= 0 {
		return errors.Newf("leafnet.inferencetimeout must be positive, got %d",
			settings.LeafNet.InferenceTimeout).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Validator.MinDimension <= 0 {
		return errors.Newf("validator.mindimension must be positive, got %d",
			settings.Validator.MinDimension).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Validator.MinGreenRatio < 0 || settings.Validator.MinGreenRatio > 1 {
		return errors.Newf("validator.mingreenratio must be between 0 and 1, got %v",
			settings.Validator.MinGreenRatio).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Validator.MaxUploadBytes <= 0 {
		return errors.Newf("validator.maxuploadbytes must be positive, got %d",
			settings.Validator.MaxUploadBytes).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if !settings.Output.SQLite.Enabled && !settings.Output.MySQL.Enabled {
		return errors.Newf("no datastore enabled, enable output.sqlite or output.mysql").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		return errors.Newf("sentry.enabled is true but sentry.dsn is empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return nil
}
