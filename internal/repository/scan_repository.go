package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrScanNotFound indicates no scan exists for the requested id.
var ErrScanNotFound = errors.New("scan not found")

// Scan represents a persisted classification result and its stored image.
// StoragePath holds the object key so deletion never has to re-derive it from
// the public URL.
type Scan struct {
	ID                string    `gorm:"primaryKey;size:36"`
	UserID            string    `gorm:"column:user_id;index;size:64"`
	OriginalImageURL  string    `gorm:"column:original_image_url;type:text"`
	AnnotatedImageURL string    `gorm:"column:annotated_image_url;type:text"`
	StoragePath       string    `gorm:"column:storage_path;type:text"`
	PredictionLabel   string    `gorm:"column:prediction_label;size:16"`
	ConfidenceScore   float32   `gorm:"column:confidence_score"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (Scan) TableName() string {
	return "scans"
}

// ScanRepository provides persistence APIs for scan records.
type ScanRepository struct {
	db *gorm.DB
}

// NewScanRepository creates a new repository instance.
func NewScanRepository(db *gorm.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *ScanRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Scan{})
}

// Insert persists a new scan record.
func (r *ScanRepository) Insert(ctx context.Context, scan *Scan) error {
	return r.db.WithContext(ctx).Create(scan).Error
}

// FindByID retrieves a scan by its id.
func (r *ScanRepository) FindByID(ctx context.Context, id string) (*Scan, error) {
	var scan Scan
	if err := r.db.WithContext(ctx).First(&scan, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrScanNotFound
		}
		return nil, err
	}
	return &scan, nil
}

// ListByUser retrieves all scans owned by a user, newest first.
func (r *ScanRepository) ListByUser(ctx context.Context, userID string) ([]*Scan, error) {
	var scans []*Scan
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&scans).Error; err != nil {
		return nil, err
	}
	return scans, nil
}

// DeleteByID removes a scan record. Returns ErrScanNotFound when no row
// matched the id.
func (r *ScanRepository) DeleteByID(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&Scan{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrScanNotFound
	}
	return nil
}
