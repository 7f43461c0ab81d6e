// model.go this code defines the data model for the application
package datastore

import "time"

// UploadedImage lifecycle states.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DetectionHistoryEntry handling states.
const (
	HandlingPending    = "pending"
	HandlingInProgress = "in_progress"
	HandlingResolved   = "resolved"
)

// UploadedImage represents a single submitted leaf photo and its processing
// lifecycle. The detection orchestrator is the only writer of Status.
type UploadedImage struct {
	ID          uint   `gorm:"primaryKey"`
	GrowerID    uint   `gorm:"index:idx_images_grower;not null"`
	StoredFile  string // reference into external file storage
	PlantType   string // declared by the grower, free text
	Status      string `gorm:"type:varchar(20);index:idx_images_status"`
	FailReason  string `gorm:"type:varchar(40)"` // set when Status is failed
	UploadedAt  time.Time
	CompletedAt *time.Time
}

// TaxonomyEntry is the knowledge-base record for a disease/pest, keyed by the
// classifier's class label. Exactly one entry exists per distinct label.
type TaxonomyEntry struct {
	ID             uint   `gorm:"primaryKey"`
	Label          string `gorm:"uniqueIndex;not null"`
	DisplayName    string
	LatinName      string
	Description    string `gorm:"type:text"`
	Symptoms       string `gorm:"type:text"`
	Prevention     string `gorm:"type:text"`
	Treatment      string `gorm:"type:text"`
	DetectionCount int64  `gorm:"default:0"` // successful detections of this label
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DetectionResult is the outcome of a successful classification. There is
// exactly one per UploadedImage, created only when the pipeline completes.
type DetectionResult struct {
	ID              uint    `gorm:"primaryKey"`
	UploadedImageID uint    `gorm:"uniqueIndex;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:UploadedImageID;references:ID"`
	TaxonomyEntryID uint    `gorm:"index;not null"`
	Confidence      float64 // percent, two-decimal precision
	Severity        string  `gorm:"type:varchar(10)"`
	AffectedLeaves  int
	Advisory        string `gorm:"type:text"`
	DetectedAt      time.Time

	Taxonomy TaxonomyEntry `gorm:"foreignKey:TaxonomyEntryID"`
}

// DetectionHistoryEntry is the per-grower log row linking a result to its
// handling workflow. Created in the same transaction as the result.
type DetectionHistoryEntry struct {
	ID                uint  `gorm:"primaryKey"`
	GrowerID          uint  `gorm:"index:idx_history_grower;not null"`
	DetectionResultID uint  `gorm:"uniqueIndex;not null;constraint:OnDelete:CASCADE,OnUpdate:CASCADE;foreignKey:DetectionResultID;references:ID"`
	PlotID            *uint `gorm:"index"` // optional plot/land reference
	Note              string `gorm:"type:text"`
	HandlingStatus    string `gorm:"type:varchar(20)"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Result DetectionResult `gorm:"foreignKey:DetectionResultID"`
}
