package datastore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agroguard/leafguard-go/internal/conf"
)

// createDatabase initializes a temporary SQLite database for testing.
func createDatabase(t *testing.T) Interface {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = t.TempDir() + "/test.db"

	store := New(settings)
	require.NoError(t, store.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, store.Close(), "Failed to close datastore")
	})

	return store
}

// createImage inserts an uploaded image in processing state and returns it.
func createImage(t *testing.T, store Interface, growerID uint) UploadedImage {
	t.Helper()
	img := UploadedImage{
		GrowerID:   growerID,
		StoredFile: "uploads/leaf.jpg",
		PlantType:  "tomato",
	}
	require.NoError(t, store.CreateUploadedImage(&img))
	require.NoError(t, store.SetImageStatus(img.ID, StatusProcessing))
	return img
}

func TestUploadedImageLifecycle(t *testing.T) {
	store := createDatabase(t)

	img := UploadedImage{GrowerID: 7, StoredFile: "uploads/a.jpg"}
	require.NoError(t, store.CreateUploadedImage(&img))
	require.NotZero(t, img.ID)

	got, err := store.GetUploadedImage(img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
	assert.Nil(t, got.CompletedAt)

	require.NoError(t, store.SetImageStatus(img.ID, StatusProcessing))
	got, err = store.GetUploadedImage(img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, got.Status)

	require.NoError(t, store.SetImageFailed(img.ID, "too-blurry"))
	got, err = store.GetUploadedImage(img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "too-blurry", got.FailReason)
	assert.NotNil(t, got.CompletedAt)
}

func TestSetImageStatusUnknownID(t *testing.T) {
	store := createDatabase(t)

	err := store.SetImageStatus(9999, StatusProcessing)
	assert.Error(t, err)
}

func TestResolveTaxonomyEntryCreatesPlaceholder(t *testing.T) {
	store := createDatabase(t)

	entry, err := store.ResolveTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, "tomato_late_blight", entry.Label)
	assert.Equal(t, "tomato_late_blight", entry.DisplayName, "first sight uses the label as display name")
	require.NotZero(t, entry.ID)

	// Resolving again must return the same row, not a duplicate.
	again, err := store.ResolveTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)

	entries, err := store.ListTaxonomyEntries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSaveDetectionTransaction(t *testing.T) {
	store := createDatabase(t)

	img := createImage(t, store, 3)
	entry, err := store.ResolveTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)

	result := DetectionResult{
		UploadedImageID: img.ID,
		TaxonomyEntryID: entry.ID,
		Confidence:      91.27,
		Severity:        "high",
		AffectedLeaves:  1,
		Advisory:        "Act immediately.",
	}
	history := DetectionHistoryEntry{GrowerID: 3}

	require.NoError(t, store.SaveDetection(&result, &history))
	require.NotZero(t, result.ID)
	assert.Equal(t, result.ID, history.DetectionResultID)
	assert.Equal(t, HandlingPending, history.HandlingStatus)

	// Image must be completed with a timestamp.
	got, err := store.GetUploadedImage(img.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)

	// Attack counter incremented.
	entry, err = store.GetTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.DetectionCount)

	// Result readable back with taxonomy preloaded.
	loaded, err := store.GetDetectionResult(img.ID)
	require.NoError(t, err)
	assert.InDelta(t, 91.27, loaded.Confidence, 0.001)
	assert.Equal(t, "tomato_late_blight", loaded.Taxonomy.Label)
}

func TestSaveDetectionRollsBackOnDuplicate(t *testing.T) {
	store := createDatabase(t)

	img := createImage(t, store, 3)
	entry, err := store.ResolveTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)

	first := DetectionResult{UploadedImageID: img.ID, TaxonomyEntryID: entry.ID, Confidence: 90, Severity: "high", AffectedLeaves: 1}
	require.NoError(t, store.SaveDetection(&first, &DetectionHistoryEntry{GrowerID: 3}))

	// A second result for the same image violates the 1:1 constraint; the
	// whole transaction must fail and leave no extra history row behind.
	second := DetectionResult{UploadedImageID: img.ID, TaxonomyEntryID: entry.ID, Confidence: 80, Severity: "medium", AffectedLeaves: 1}
	err = store.SaveDetection(&second, &DetectionHistoryEntry{GrowerID: 3})
	require.Error(t, err)

	entries, err := store.GetDetectionHistory(3, 0, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// Counter reflects only the committed detection.
	entry, err = store.GetTaxonomyEntry("tomato_late_blight")
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.DetectionCount)
}

func TestDetectionHistoryOrderingAndHandling(t *testing.T) {
	store := createDatabase(t)

	entry, err := store.ResolveTaxonomyEntry("pepper_bacterial_spot")
	require.NoError(t, err)

	var lastHistory DetectionHistoryEntry
	for i := 0; i < 3; i++ {
		img := createImage(t, store, 5)
		result := DetectionResult{
			UploadedImageID: img.ID,
			TaxonomyEntryID: entry.ID,
			Confidence:      float64(70 + i),
			Severity:        "medium",
			AffectedLeaves:  1,
		}
		lastHistory = DetectionHistoryEntry{GrowerID: 5}
		require.NoError(t, store.SaveDetection(&result, &lastHistory))
	}

	entries, err := store.GetDetectionHistory(5, 2, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "pepper_bacterial_spot", entries[0].Result.Taxonomy.Label)

	require.NoError(t, store.UpdateHandlingStatus(lastHistory.ID, HandlingResolved))
	assert.Error(t, store.UpdateHandlingStatus(lastHistory.ID, "bogus"))

	// History is scoped per grower.
	other, err := store.GetDetectionHistory(99, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCountStaleProcessing(t *testing.T) {
	store := createDatabase(t)

	img := createImage(t, store, 1)
	_ = img

	// Freshly created images are not stale yet.
	count, err := store.CountStaleProcessing(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	// With a zero cutoff everything in processing counts.
	count, err = store.CountStaleProcessing(-time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
