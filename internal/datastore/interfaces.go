// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agroguard/leafguard-go/internal/conf"
	"github.com/agroguard/leafguard-go/internal/errors"
)

// Interface abstracts the underlying database implementation and defines the
// operations the detection pipeline needs.
type Interface interface {
	Open() error
	Close() error

	// Uploaded image lifecycle
	CreateUploadedImage(img *UploadedImage) error
	GetUploadedImage(id uint) (UploadedImage, error)
	SetImageStatus(id uint, status string) error
	SetImageFailed(id uint, reason string) error
	CountStaleProcessing(olderThan time.Duration) (int64, error)

	// Taxonomy
	ResolveTaxonomyEntry(label string) (TaxonomyEntry, error)
	GetTaxonomyEntry(label string) (TaxonomyEntry, error)
	ListTaxonomyEntries() ([]TaxonomyEntry, error)

	// Detection outcome, committed as one unit
	SaveDetection(result *DetectionResult, history *DetectionHistoryEntry) error
	GetDetectionResult(imageID uint) (DetectionResult, error)

	// History
	GetDetectionHistory(growerID uint, limit, offset int) ([]DetectionHistoryEntry, error)
	UpdateHandlingStatus(historyID uint, status string) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		// Settings validation rejects this combination before we get here
		return nil
	}
}

// CreateUploadedImage inserts a new uploaded image record.
func (ds *DataStore) CreateUploadedImage(img *UploadedImage) error {
	if img.Status == "" {
		img.Status = StatusPending
	}
	if img.UploadedAt.IsZero() {
		img.UploadedAt = time.Now()
	}
	if err := ds.DB.Create(img).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "create-uploaded-image").
			Build()
	}
	return nil
}

// GetUploadedImage retrieves an uploaded image by its ID.
func (ds *DataStore) GetUploadedImage(id uint) (UploadedImage, error) {
	var img UploadedImage
	if err := ds.DB.First(&img, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return UploadedImage{}, errors.Newf("uploaded image %d not found", id).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return UploadedImage{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("image_id", id).
			Build()
	}
	return img, nil
}

// SetImageStatus advances the lifecycle status of an uploaded image.
func (ds *DataStore) SetImageStatus(id uint, status string) error {
	result := ds.DB.Model(&UploadedImage{}).Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("image_id", id).
			Context("status", status).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("uploaded image %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// SetImageFailed marks an uploaded image as failed with the given reason and
// stamps the completion time.
func (ds *DataStore) SetImageFailed(id uint, reason string) error {
	now := time.Now()
	result := ds.DB.Model(&UploadedImage{}).Where("id = ?", id).
		Updates(map[string]any{
			"status":       StatusFailed,
			"fail_reason":  reason,
			"completed_at": &now,
		})
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("image_id", id).
			Context("reason", reason).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("uploaded image %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// CountStaleProcessing counts images stuck in processing longer than the given
// age. A separate sweep is expected to resolve them; this only reports.
func (ds *DataStore) CountStaleProcessing(olderThan time.Duration) (int64, error) {
	var count int64
	cutoff := time.Now().Add(-olderThan)
	err := ds.DB.Model(&UploadedImage{}).
		Where("status = ? AND uploaded_at < ?", StatusProcessing, cutoff).
		Count(&count).Error
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "count-stale-processing").
			Build()
	}
	return count, nil
}

// ResolveTaxonomyEntry returns the taxonomy entry for a class label, creating
// a placeholder entry on first sight. The create is an insert-on-conflict-
// do-nothing followed by a re-read, so concurrent first sightings of the same
// label converge on a single row.
func (ds *DataStore) ResolveTaxonomyEntry(label string) (TaxonomyEntry, error) {
	placeholder := TaxonomyEntry{
		Label:       label,
		DisplayName: label,
	}
	err := ds.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "label"}},
		DoNothing: true,
	}).Create(&placeholder).Error
	if err != nil {
		return TaxonomyEntry{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "taxonomy-upsert").
			Context("label", label).
			Build()
	}

	// Re-read regardless of whether the insert won the race; the row that
	// exists now is the canonical entry.
	return ds.GetTaxonomyEntry(label)
}

// GetTaxonomyEntry retrieves a taxonomy entry by class label.
func (ds *DataStore) GetTaxonomyEntry(label string) (TaxonomyEntry, error) {
	var entry TaxonomyEntry
	if err := ds.DB.Where("label = ?", label).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return TaxonomyEntry{}, errors.Newf("taxonomy entry %q not found", label).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return TaxonomyEntry{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("label", label).
			Build()
	}
	return entry, nil
}

// ListTaxonomyEntries returns all taxonomy entries ordered by detection count
// descending, most-attacked first.
func (ds *DataStore) ListTaxonomyEntries() ([]TaxonomyEntry, error) {
	var entries []TaxonomyEntry
	if err := ds.DB.Order("detection_count DESC, label ASC").Find(&entries).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "list-taxonomy").
			Build()
	}
	return entries, nil
}

// SaveDetection stores a detection result, its history entry, the taxonomy
// attack counter bump and the image's completed status as a single
// transaction. Either all records exist afterwards or none do.
func (ds *DataStore) SaveDetection(result *DetectionResult, history *DetectionHistoryEntry) error {
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		if result.DetectedAt.IsZero() {
			result.DetectedAt = time.Now()
		}
		if err := tx.Create(result).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "save-result").
				Context("image_id", result.UploadedImageID).
				Build()
		}

		history.DetectionResultID = result.ID
		if history.HandlingStatus == "" {
			history.HandlingStatus = HandlingPending
		}
		if err := tx.Create(history).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "save-history").
				Context("result_id", result.ID).
				Build()
		}

		if err := tx.Model(&TaxonomyEntry{}).
			Where("id = ?", result.TaxonomyEntryID).
			UpdateColumn("detection_count", gorm.Expr("detection_count + 1")).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "bump-detection-count").
				Context("taxonomy_id", result.TaxonomyEntryID).
				Build()
		}

		now := time.Now()
		update := tx.Model(&UploadedImage{}).
			Where("id = ?", result.UploadedImageID).
			Updates(map[string]any{
				"status":       StatusCompleted,
				"completed_at": &now,
			})
		if update.Error != nil {
			return errors.New(update.Error).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("operation", "complete-image").
				Context("image_id", result.UploadedImageID).
				Build()
		}
		if update.RowsAffected == 0 {
			return errors.Newf("uploaded image %d vanished during save", result.UploadedImageID).
				Component("datastore").
				Category(errors.CategoryState).
				Build()
		}
		return nil
	})
	return err
}

// GetDetectionResult retrieves the detection result for an uploaded image,
// with its taxonomy entry preloaded.
func (ds *DataStore) GetDetectionResult(imageID uint) (DetectionResult, error) {
	var result DetectionResult
	err := ds.DB.Preload("Taxonomy").
		Where("uploaded_image_id = ?", imageID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DetectionResult{}, errors.Newf("no detection result for image %d", imageID).
				Component("datastore").
				Category(errors.CategoryNotFound).
				Build()
		}
		return DetectionResult{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("image_id", imageID).
			Build()
	}
	return result, nil
}

// GetDetectionHistory returns a grower's history entries newest first, with
// results and taxonomy preloaded.
func (ds *DataStore) GetDetectionHistory(growerID uint, limit, offset int) ([]DetectionHistoryEntry, error) {
	var entries []DetectionHistoryEntry
	query := ds.DB.Preload("Result").Preload("Result.Taxonomy").
		Where("grower_id = ?", growerID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("grower_id", growerID).
			Build()
	}
	return entries, nil
}

// UpdateHandlingStatus updates the handling workflow state of a history entry.
func (ds *DataStore) UpdateHandlingStatus(historyID uint, status string) error {
	switch status {
	case HandlingPending, HandlingInProgress, HandlingResolved:
	default:
		return errors.Newf("invalid handling status %q", status).
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	result := ds.DB.Model(&DetectionHistoryEntry{}).
		Where("id = ?", historyID).
		Update("handling_status", status)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("history_id", historyID).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("history entry %d not found", historyID).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// Close closes the database connection.
func (ds *DataStore) Close() error {
	if ds.DB == nil {
		return nil
	}
	sqlDB, err := ds.DB.DB()
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "close").
			Build()
	}
	return sqlDB.Close()
}
