package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a settings struct that passes validation, for tests
// to break one field at a time.
func validSettings() *Settings {
	return &Settings{
		UploadDir: "uploads",
		LeafNet: LeafNetSettings{
			ModelPath:        "model/leafnet.tflite",
			ConfidenceGate:   50,
			InferenceTimeout: 30,
		},
		Validator: ValidatorSettings{
			MinDimension:   100,
			MinGreenRatio:  0.15,
			MinSharpness:   50,
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		Output: OutputSettings{
			SQLite: SQLiteSettings{Enabled: true, Path: "leafguard.db"},
		},
	}
}

func TestValidateSettingsOK(t *testing.T) {
	t.Parallel()
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"confidence gate above 100", func(s *Settings) { s.LeafNet.ConfidenceGate = 150 }},
		{"confidence gate negative", func(s *Settings) { s.LeafNet.ConfidenceGate = -1 }},
		{"zero inference timeout", func(s *Settings) { s.LeafNet.InferenceTimeout = 0 }},
		{"zero min dimension", func(s *Settings) { s.Validator.MinDimension = 0 }},
		{"green ratio above 1", func(s *Settings) { s.Validator.MinGreenRatio = 1.5 }},
		{"zero upload cap", func(s *Settings) { s.Validator.MaxUploadBytes = 0 }},
		{"no datastore enabled", func(s *Settings) { s.Output.SQLite.Enabled = false }},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}
