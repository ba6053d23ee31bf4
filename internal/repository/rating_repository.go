package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/matcha-check/internal/retry"
)

// ErrNotFound is returned when no rating matches the lookup.
var ErrNotFound = errors.New("rating not found")

// RatingRecord represents a persisted matcha rating.
type RatingRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	AnalysisID string    `gorm:"column:analysis_id;uniqueIndex;size:64" json:"analysis_id"`
	UserID     string    `gorm:"column:user_id;index;size:64" json:"user_id,omitempty"`
	ImageURL   string    `gorm:"column:image_url;type:text" json:"image_url"`
	ImageHash  string    `gorm:"column:image_hash;index;size:40" json:"image_hash"`
	AIScore    float64   `gorm:"column:ai_score" json:"ai_score"`
	MaxScore   float64   `gorm:"column:max_score" json:"max_score"`
	UserScore  float64   `gorm:"column:user_score" json:"user_score"`
	Comment    *string   `gorm:"column:comment;type:text" json:"comment"`
	Location   *string   `gorm:"column:location;size:255" json:"location"`
	CupFound   bool      `gorm:"column:cup_found" json:"cup_found"`
	AvgColor   string    `gorm:"column:avg_color;size:7" json:"avg_color"`
	CreatedAt  time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (RatingRecord) TableName() string {
	return "matcha_ratings"
}

// MetricsAggregation is the raw aggregate over all ratings.
type MetricsAggregation struct {
	TotalCount       int64   `gorm:"column:total_count"`
	CupFoundCount    int64   `gorm:"column:cup_found_count"`
	AverageAIScore   float64 `gorm:"column:average_ai_score"`
	AverageUserScore float64 `gorm:"column:average_user_score"`
}

// RatingRepository provides persistence APIs for matcha ratings.
type RatingRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewRatingRepository creates a new repository instance.
func NewRatingRepository(db *gorm.DB, logger *zap.Logger) *RatingRepository {
	policy := retry.DefaultPolicy()
	return &RatingRepository{
		db:             db,
		logger:         logger.Named("rating_repository"),
		retryAttempts:  policy.Attempts,
		initialBackoff: policy.InitialBackoff,
		maxBackoff:     policy.MaxBackoff,
	}
}

// AutoMigrate ensures the schema is available.
func (r *RatingRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&RatingRecord{})
	})
}

// SaveRating persists a rating.
func (r *RatingRepository) SaveRating(ctx context.Context, record *RatingRecord) error {
	return r.executeWithRetry(ctx, "repository.save_rating", record.AnalysisID, func() error {
		return r.db.WithContext(ctx).Create(record).Error
	})
}

// FindByID retrieves a rating by primary key.
func (r *RatingRepository) FindByID(ctx context.Context, id uint) (*RatingRecord, error) {
	var record RatingRecord
	err := r.executeWithRetry(ctx, "repository.find_by_id", "", func() error {
		return notFound(r.db.WithContext(ctx).First(&record, id).Error)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListRatings returns ratings newest first.
func (r *RatingRepository) ListRatings(ctx context.Context, limit, offset int) ([]*RatingRecord, error) {
	var records []*RatingRecord
	err := r.executeWithRetry(ctx, "repository.list_ratings", "", func() error {
		records = records[:0]
		return r.db.WithContext(ctx).
			Order("created_at DESC").
			Order("id DESC").
			Limit(limit).
			Offset(offset).
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// FindDuplicatesByHash returns the user's other ratings of the same image.
func (r *RatingRepository) FindDuplicatesByHash(ctx context.Context, userID, hash string, excludeID uint) ([]*RatingRecord, error) {
	var records []*RatingRecord
	err := r.executeWithRetry(ctx, "repository.find_duplicates", "", func() error {
		records = records[:0]
		return r.db.WithContext(ctx).
			Where("user_id = ? AND image_hash = ? AND id <> ?", userID, hash, excludeID).
			Order("created_at DESC").
			Find(&records).Error
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// AggregateMetrics computes counts and averages over all ratings.
func (r *RatingRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&RatingRecord{}).
			Select("COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN cup_found THEN 1 ELSE 0 END), 0) AS cup_found_count, " +
				"COALESCE(AVG(ai_score), 0) AS average_ai_score, " +
				"COALESCE(AVG(user_score), 0) AS average_user_score").
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *RatingRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	policy := retry.Policy{
		Attempts:       r.retryAttempts,
		InitialBackoff: r.initialBackoff,
		MaxBackoff:     r.maxBackoff,
	}
	return retry.Do(ctx, r.logger, policy, operation, requestID, fn)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
