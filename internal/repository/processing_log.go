package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// ProcessingLog records the outcome of one preprocessing or try-on request.
// Only metadata and content hashes are stored; image pixels never reach the
// database.
type ProcessingLog struct {
	ID                   uint      `gorm:"primaryKey"`
	RequestID            string    `gorm:"column:request_id;uniqueIndex;size:64"`
	UserID               string    `gorm:"column:user_id;size:64"`
	GarmentType          string    `gorm:"column:garment_type;size:32"`
	PersonBgRemoved      bool      `gorm:"column:person_bg_removed"`
	GarmentBgRemoved     bool      `gorm:"column:garment_bg_removed"`
	GarmentSegmented     bool      `gorm:"column:garment_segmented"`
	PersonRemovalMethod  string    `gorm:"column:person_removal_method;size:32"`
	GarmentRemovalMethod string    `gorm:"column:garment_removal_method;size:32"`
	DurationMs           int64     `gorm:"column:duration_ms"`
	Success              bool      `gorm:"column:success"`
	Error                string    `gorm:"column:error;type:text"`
	PersonSHA1           string    `gorm:"column:person_sha1;size:40"`
	GarmentSHA1          string    `gorm:"column:garment_sha1;size:40"`
	CreatedAt            time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (ProcessingLog) TableName() string {
	return "processing_logs"
}

// MetricsAggregation holds raw aggregates computed over processing logs.
type MetricsAggregation struct {
	TotalCount        int64
	SuccessCount      int64
	AverageDurationMs float64
	RemoteRemovals    int64
	LocalRemovals     int64
}

// ProcessingLogRepository provides persistence APIs for processing logs.
type ProcessingLogRepository struct {
	db *gorm.DB
}

// NewProcessingLogRepository creates a new repository instance.
func NewProcessingLogRepository(db *gorm.DB) *ProcessingLogRepository {
	return &ProcessingLogRepository{db: db}
}

// AutoMigrate ensures the schema is available.
func (r *ProcessingLogRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ProcessingLog{})
}

// SaveLog persists a processing log entry.
func (r *ProcessingLogRepository) SaveLog(ctx context.Context, log *ProcessingLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

// FindByRequestIDAndUser retrieves a processing log matching the request and owner.
func (r *ProcessingLogRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ProcessingLog, error) {
	var log ProcessingLog
	if err := r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics summarizes processing outcomes across all requests.
func (r *ProcessingLogRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	if err := r.db.WithContext(ctx).Model(&ProcessingLog{}).
		Count(&agg.TotalCount).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&ProcessingLog{}).
		Where("success = ?", true).Count(&agg.SuccessCount).Error; err != nil {
		return nil, err
	}
	row := r.db.WithContext(ctx).Model(&ProcessingLog{}).
		Select("COALESCE(AVG(duration_ms), 0)").Row()
	if err := row.Scan(&agg.AverageDurationMs); err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&ProcessingLog{}).
		Where("person_removal_method = ? OR garment_removal_method = ?", "remote", "remote").
		Count(&agg.RemoteRemovals).Error; err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(&ProcessingLog{}).
		Where("person_removal_method = ? OR garment_removal_method = ?", "local", "local").
		Count(&agg.LocalRemovals).Error; err != nil {
		return nil, err
	}
	return &agg, nil
}

// PurgeOlderThan removes log rows created before the cutoff. Used by the
// retention job so request metadata does not accumulate indefinitely.
func (r *ProcessingLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&ProcessingLog{})
	return result.RowsAffected, result.Error
}
