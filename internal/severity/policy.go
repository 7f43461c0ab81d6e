// Package severity converts a class label and confidence into a discrete
// severity grade and a human-readable advisory.
package severity

import (
	"strings"

	"github.com/agroguard/leafguard-go/internal/datastore"
)

// Grade is the coarse severity bucket used to drive urgency messaging.
type Grade string

const (
	GradeSafe   Grade = "safe"
	GradeLow    Grade = "low"
	GradeMedium Grade = "medium"
	GradeHigh   Grade = "high"
)

// Confidence bands for diseased labels, in percent. Confidence below the
// low band never reaches this policy; the orchestrator rejects it upstream.
const (
	highBand   = 85.0
	mediumBand = 70.0
)

// Urgency prefixes keyed by grade.
const (
	prefixHigh   = "Act immediately: "
	prefixMedium = "Needs attention: "
	prefixLow    = "Monitor: "
)

// defaultSafeAdvisory is used for healthy detections when the taxonomy entry
// carries no specific guidance.
const defaultSafeAdvisory = "Plant looks healthy. Maintain routine care and check the crop weekly."

// IsHealthyLabel reports whether a class label denotes a healthy state.
// Training labels follow the <plant>_healthy convention.
func IsHealthyLabel(label string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(label)), "healthy")
}

// Grade maps a label and confidence to a severity grade. Healthy labels are
// always safe, independent of confidence.
func GradeFor(label string, confidence float64) Grade {
	if IsHealthyLabel(label) {
		return GradeSafe
	}
	switch {
	case confidence >= highBand:
		return GradeHigh
	case confidence >= mediumBand:
		return GradeMedium
	default:
		return GradeLow
	}
}

// Advise grades a detection and assembles its advisory text from the urgency
// prefix and the taxonomy entry's treatment guidance.
func Advise(entry *datastore.TaxonomyEntry, confidence float64) (Grade, string) {
	grade := GradeFor(entry.Label, confidence)

	if grade == GradeSafe {
		// Use the taxonomy treatment text when a curator wrote one; the
		// placeholder entries created on first sight have none.
		if treatment := strings.TrimSpace(entry.Treatment); treatment != "" {
			return grade, treatment
		}
		return grade, defaultSafeAdvisory
	}

	treatment := strings.TrimSpace(entry.Treatment)
	if treatment == "" {
		treatment = "No treatment guidance recorded yet for " + entry.DisplayName +
			". Consult an agricultural extension officer."
	}

	switch grade {
	case GradeHigh:
		return grade, prefixHigh + treatment
	case GradeMedium:
		return grade, prefixMedium + treatment
	default:
		return grade, prefixLow + treatment
	}
}
