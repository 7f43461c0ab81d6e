package severity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agroguard/leafguard-go/internal/datastore"
)

func TestIsHealthyLabel(t *testing.T) {
	t.Parallel()

	assert.True(t, IsHealthyLabel("tomato_healthy"))
	assert.True(t, IsHealthyLabel("Pepper_Healthy"))
	assert.True(t, IsHealthyLabel(" chili_healthy "))
	assert.False(t, IsHealthyLabel("tomato_late_blight"))
	assert.False(t, IsHealthyLabel("healthy_look_alike_blight"))
}

func TestGradeForBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		label      string
		confidence float64
		want       Grade
	}{
		{"healthy high confidence", "tomato_healthy", 99.9, GradeSafe},
		{"healthy at gate", "tomato_healthy", 50.0, GradeSafe},
		{"disease at high band", "tomato_late_blight", 85.0, GradeHigh},
		{"disease above high band", "tomato_late_blight", 91.0, GradeHigh},
		{"disease just below high band", "tomato_late_blight", 84.99, GradeMedium},
		{"disease at medium band", "tomato_late_blight", 70.0, GradeMedium},
		{"disease just below medium band", "tomato_late_blight", 69.99, GradeLow},
		{"disease at gate", "tomato_late_blight", 50.0, GradeLow},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GradeFor(tt.label, tt.confidence))
		})
	}
}

func TestAdviseHealthy(t *testing.T) {
	t.Parallel()

	entry := &datastore.TaxonomyEntry{Label: "tomato_healthy", DisplayName: "tomato_healthy"}
	grade, advisory := Advise(entry, 92.3)
	assert.Equal(t, GradeSafe, grade)
	assert.Contains(t, advisory, "routine care")

	// A curated treatment text takes precedence over the generic message.
	entry.Treatment = "Keep watering schedule, prune lower leaves monthly."
	_, advisory = Advise(entry, 92.3)
	assert.Equal(t, entry.Treatment, advisory)
}

func TestAdviseDiseaseUsesUrgencyPrefix(t *testing.T) {
	t.Parallel()

	entry := &datastore.TaxonomyEntry{
		Label:       "tomato_late_blight",
		DisplayName: "Late Blight",
		Treatment:   "Apply copper fungicide and remove infected leaves.",
	}

	grade, advisory := Advise(entry, 91.0)
	assert.Equal(t, GradeHigh, grade)
	assert.True(t, strings.HasPrefix(advisory, "Act immediately: "))
	assert.Contains(t, advisory, entry.Treatment)

	grade, advisory = Advise(entry, 75.0)
	assert.Equal(t, GradeMedium, grade)
	assert.True(t, strings.HasPrefix(advisory, "Needs attention: "))

	grade, advisory = Advise(entry, 55.0)
	assert.Equal(t, GradeLow, grade)
	assert.True(t, strings.HasPrefix(advisory, "Monitor: "))
}

func TestAdviseDiseaseWithoutTreatment(t *testing.T) {
	t.Parallel()

	// First-sight placeholder entries carry no treatment text; the advisory
	// must still be actionable.
	entry := &datastore.TaxonomyEntry{Label: "corn_rust", DisplayName: "corn_rust"}
	grade, advisory := Advise(entry, 88.0)
	assert.Equal(t, GradeHigh, grade)
	assert.Contains(t, advisory, "extension officer")
	assert.True(t, strings.HasPrefix(advisory, "Act immediately: "))
}
