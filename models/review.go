package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Review struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	StationId        string                      `gorm:"size:36;not null;index" json:"station_id"`
	PhoneNumber      string                      `gorm:"size:20;not null;index:idx_review_phone_created,priority:1" json:"phone_number"`
	CustomerName     string                      `gorm:"size:100" json:"customer_name"`
	Rating           int                         `gorm:"not null" json:"rating"`
	Content          string                      `gorm:"type:text;not null" json:"content"`
	Categories       datatypes.JSONSlice[string] `json:"categories"`
	Category         *TopicCategory              `gorm:"size:30;index" json:"category"`
	Language         string                      `gorm:"size:10" json:"language"`
	Sentiment        *Sentiment                  `gorm:"size:20;index" json:"sentiment"`
	SentimentScore   decimal.NullDecimal         `gorm:"type:decimal(4,2)" json:"sentiment_score"`
	Keywords         datatypes.JSONSlice[string] `json:"keywords"`
	FlaggedAsSpam    bool                        `gorm:"not null;default:false" json:"flagged_as_spam"`
	SpamConfidence   decimal.NullDecimal         `gorm:"type:decimal(4,2)" json:"spam_confidence"`
	Status           ReviewStatus                `gorm:"size:20;not null;default:'new'" json:"status"`
	EnrichedAt       *time.Time                  `json:"enriched_at"`
	LastSubmissionAt *time.Time                  `json:"last_submission_at"`
	CreatedAt        time.Time                   `gorm:"index:idx_review_phone_created,priority:2" json:"created_at"`
	UpdatedAt        time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

type NewReview struct {
	StationId    string           `json:"-"`
	Rating       int              `json:"rating" binding:"required,min=1,max=5"`
	Content      string           `json:"content" binding:"required,max=2000"`
	Categories   []ReviewCategory `json:"categories"`
	CustomerName string           `json:"customerName" binding:"max=100"`
	PhoneNumber  string           `json:"phoneNumber" binding:"required"`
	Language     string           `json:"language"`
}

func (input *NewReview) validate() error {
	if input.Rating < 1 || input.Rating > 5 {
		return &ValidationError{Field: "rating", Message: "must be between 1 and 5"}
	}
	if input.Content == "" {
		return &ValidationError{Field: "content", Message: "is required"}
	}
	if input.StationId == "" {
		return &ValidationError{Field: "stationId", Message: "is required"}
	}
	for _, c := range input.Categories {
		if !c.IsValid() {
			return &ValidationError{Field: "categories", Message: "unknown category " + string(c)}
		}
	}
	return nil
}

// EnrichmentResult is everything the enrich task writes back in one update.
type EnrichmentResult struct {
	Language       string
	Sentiment      Sentiment
	SentimentScore float64
	Keywords       []string
	Category       TopicCategory
	IsSpam         bool
	SpamConfidence float64
}

func GetReview(ctx context.Context, id string) (*Review, error) {
	return utils.FetchModel[Review](ctx, id)
}

// ApplyEnrichment persists all NLU fields of a review in a single update.
func ApplyEnrichment(ctx context.Context, reviewId string, result EnrichmentResult) error {
	now := time.Now().UTC()
	keywords := datatypes.JSONSlice[string](result.Keywords)
	if keywords == nil {
		keywords = datatypes.JSONSlice[string]{}
	}
	res := config.GetDB().WithContext(ctx).Model(&Review{}).
		Where("id = ?", reviewId).
		Updates(map[string]interface{}{
			"language":        result.Language,
			"sentiment":       result.Sentiment,
			"sentiment_score": decimal.NewNullDecimal(decimal.NewFromFloat(result.SentimentScore).Round(2)),
			"keywords":        keywords,
			"category":        result.Category,
			"flagged_as_spam": result.IsSpam,
			"spam_confidence": decimal.NewNullDecimal(decimal.NewFromFloat(result.SpamConfidence).Round(2)),
			"enriched_at":     &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// CountReviewsByPhone is the contact's lifetime review count.
func CountReviewsByPhone(tx *gorm.DB, phone string) (int64, error) {
	var count int64
	err := tx.Model(&Review{}).Where("phone_number = ?", phone).Count(&count).Error
	return count, err
}

// ListStationReviews returns a station's reviews created in [from, to).
func ListStationReviews(ctx context.Context, stationId string, from, to time.Time, limit int) ([]Review, error) {
	var reviews []Review
	err := config.GetDB().WithContext(ctx).
		Where("station_id = ? AND created_at >= ? AND created_at < ?", stationId, from, to).
		Order("created_at DESC").
		Limit(limit).
		Find(&reviews).Error
	return reviews, err
}
