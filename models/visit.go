package models

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Visit is append-only; one per review when the review id is known.
type Visit struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	PhoneNumber string    `gorm:"size:20;not null;index" json:"phone_number"`
	StationId   string    `gorm:"size:36;not null;index" json:"station_id"`
	ReviewId    *string   `gorm:"size:36;uniqueIndex" json:"review_id"`
	VisitDate   time.Time `gorm:"not null" json:"visit_date"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (v *Visit) BeforeCreate(tx *gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// RecordVisit is idempotent per review id.
func RecordVisit(tx *gorm.DB, phone, stationId, reviewId string, at time.Time) error {
	visit := Visit{
		PhoneNumber: phone,
		StationId:   stationId,
		VisitDate:   at,
	}
	if reviewId != "" {
		visit.ReviewId = &reviewId
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&visit).Error
}
