package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/gorm"
)

type Campaign struct {
	ID              string         `gorm:"primaryKey;size:36" json:"id"`
	Name            string         `gorm:"size:150;not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	ReviewThreshold int            `gorm:"not null" json:"review_threshold"`
	RewardType      RewardType     `gorm:"size:30;not null" json:"reward_type"`
	Status          CampaignStatus `gorm:"size:20;not null;default:'active';index" json:"status"`
	StartDate       *time.Time     `json:"start_date"`
	EndDate         *time.Time     `json:"end_date"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	if c.ReviewThreshold < 1 {
		return &ValidationError{Field: "reviewThreshold", Message: "must be at least 1"}
	}
	return nil
}

// ActiveCampaigns are active campaigns whose optional date window contains now, oldest first.
func ActiveCampaigns(tx *gorm.DB, now time.Time) ([]Campaign, error) {
	var campaigns []Campaign
	err := tx.
		Where("status = ?", CampaignStatusActive).
		Where("start_date IS NULL OR start_date <= ?", now).
		Where("end_date IS NULL OR end_date >= ?", now).
		Order("created_at ASC").
		Order("id ASC").
		Find(&campaigns).Error
	return campaigns, err
}

func GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	var campaign Campaign
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return &campaign, nil
}
