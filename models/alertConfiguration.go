package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultNegativeRatingThreshold = 3

type AlertConfiguration struct {
	ID                        string                      `gorm:"primaryKey;size:36" json:"id"`
	StationId                 string                      `gorm:"size:36;not null;uniqueIndex" json:"station_id"`
	IsEnabled                 bool                        `gorm:"not null;default:true" json:"is_enabled"`
	NegativeRatingThreshold   int                         `gorm:"not null;default:3" json:"negative_rating_threshold"`
	CriticalKeywords          datatypes.JSONSlice[string] `json:"critical_keywords"`
	SentimentBasedAlerts      bool                        `gorm:"not null;default:true" json:"sentiment_based_alerts"`
	SpamDetectionAlerts       bool                        `gorm:"not null;default:true" json:"spam_detection_alerts"`
	EmailNotificationsEnabled bool                        `gorm:"not null;default:true" json:"email_notifications_enabled"`
	SmsNotificationsEnabled   bool                        `gorm:"not null;default:true" json:"sms_notifications_enabled"`
	CreatedAt                 time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                 time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *AlertConfiguration) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// NewAlertConfiguration is a partial update; nil fields keep their current value.
type NewAlertConfiguration struct {
	IsEnabled                 *bool    `json:"isEnabled"`
	NegativeRatingThreshold   *int     `json:"negativeRatingThreshold" binding:"omitempty,min=1,max=5"`
	CriticalKeywords          []string `json:"criticalKeywords"`
	SentimentBasedAlerts      *bool    `json:"sentimentBasedAlerts"`
	SpamDetectionAlerts       *bool    `json:"spamDetectionAlerts"`
	EmailNotificationsEnabled *bool    `json:"emailNotificationsEnabled"`
	SmsNotificationsEnabled   *bool    `json:"smsNotificationsEnabled"`
}

func defaultAlertConfiguration(stationId string) AlertConfiguration {
	return AlertConfiguration{
		StationId:                 stationId,
		IsEnabled:                 true,
		NegativeRatingThreshold:   DefaultNegativeRatingThreshold,
		CriticalKeywords:          datatypes.JSONSlice[string]{},
		SentimentBasedAlerts:      true,
		SpamDetectionAlerts:       true,
		EmailNotificationsEnabled: true,
		SmsNotificationsEnabled:   true,
	}
}

// GetAlertConfiguration returns (nil, nil) when the station has never been configured.
func GetAlertConfiguration(ctx context.Context, stationId string) (*AlertConfiguration, error) {
	return getAlertConfigurationTx(config.GetDB().WithContext(ctx), stationId)
}

func getAlertConfigurationTx(tx *gorm.DB, stationId string) (*AlertConfiguration, error) {
	var cfg AlertConfiguration
	err := tx.Where("station_id = ?", stationId).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// UpsertAlertConfiguration creates the station's configuration with defaults on first use,
// then applies the given fields.
func UpsertAlertConfiguration(ctx context.Context, stationId string, input NewAlertConfiguration) (*AlertConfiguration, error) {
	if input.NegativeRatingThreshold != nil && (*input.NegativeRatingThreshold < 1 || *input.NegativeRatingThreshold > 5) {
		return nil, &ValidationError{Field: "negativeRatingThreshold", Message: "must be between 1 and 5"}
	}
	if err := utils.ValidateResourceId[Station](ctx, stationId); err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			return nil, ErrStationNotFound
		}
		return nil, err
	}

	var result AlertConfiguration
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := defaultAlertConfiguration(stationId)
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "station_id"}},
			DoNothing: true,
		}).Create(&seed).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if input.IsEnabled != nil {
			updates["is_enabled"] = *input.IsEnabled
		}
		if input.NegativeRatingThreshold != nil {
			updates["negative_rating_threshold"] = *input.NegativeRatingThreshold
		}
		if input.CriticalKeywords != nil {
			updates["critical_keywords"] = datatypes.JSONSlice[string](input.CriticalKeywords)
		}
		if input.SentimentBasedAlerts != nil {
			updates["sentiment_based_alerts"] = *input.SentimentBasedAlerts
		}
		if input.SpamDetectionAlerts != nil {
			updates["spam_detection_alerts"] = *input.SpamDetectionAlerts
		}
		if input.EmailNotificationsEnabled != nil {
			updates["email_notifications_enabled"] = *input.EmailNotificationsEnabled
		}
		if input.SmsNotificationsEnabled != nil {
			updates["sms_notifications_enabled"] = *input.SmsNotificationsEnabled
		}
		if len(updates) > 0 {
			if err := tx.Model(&AlertConfiguration{}).Where("station_id = ?", stationId).Updates(updates).Error; err != nil {
				return err
			}
		}
		return tx.Where("station_id = ?", stationId).First(&result).Error
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}
