package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/qrclaim"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RewardClaim struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	PhoneNumber string     `gorm:"size:20;not null;uniqueIndex:uniq_claim_phone_campaign,priority:1" json:"phone_number"`
	CampaignId  string     `gorm:"size:36;not null;uniqueIndex:uniq_claim_phone_campaign,priority:2" json:"campaign_id"`
	Campaign    *Campaign  `gorm:"foreignKey:CampaignId" json:"campaign,omitempty"`
	StationId   string     `gorm:"size:36;not null;index" json:"station_id"`
	ReviewId    *string    `gorm:"size:36" json:"review_id"`
	QrCode      string     `gorm:"type:text" json:"qr_code"`
	IsClaimed   bool       `gorm:"not null;default:false" json:"is_claimed"`
	ClaimedAt   *time.Time `json:"claimed_at"`
	ClaimNotes  *string    `gorm:"type:text" json:"claim_notes"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *RewardClaim) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// IssuedReward is what the submitter gets back when a review unlocks a reward.
type IssuedReward struct {
	ClaimId      string     `json:"claimId"`
	QrCode       string     `json:"qrCode"`
	RewardType   RewardType `json:"rewardType"`
	CampaignName string     `json:"campaignName"`
}

type ClaimCodeEncoder interface {
	Encode(ctx context.Context, p qrclaim.Payload) (string, error)
}

// RewardMatcher records visits and issues claims for campaigns whose threshold is hit exactly.
type RewardMatcher struct {
	Encoder ClaimCodeEncoder
	Logger  *logrus.Logger
}

func NewRewardMatcher(encoder ClaimCodeEncoder, logger *logrus.Logger) *RewardMatcher {
	return &RewardMatcher{Encoder: encoder, Logger: logger}
}

func (m *RewardMatcher) encode(ctx context.Context, p qrclaim.Payload) string {
	if m.Encoder == nil {
		return ""
	}
	code, err := m.Encoder.Encode(ctx, p)
	if err != nil {
		config.LogError(m.Logger, "RewardMatcher", "encode", "qr claim code", p, err)
		return ""
	}
	return code
}

// Match returns the first reward unlocked by this review, or nil.
// A claim that already exists for (phone, campaign) is never issued again.
func (m *RewardMatcher) Match(ctx context.Context, phone, reviewId, stationId string, now time.Time) (*IssuedReward, error) {
	var claim *RewardClaim
	var campaign Campaign
	err := config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := RecordVisit(tx, phone, stationId, reviewId, now); err != nil {
			return err
		}
		campaigns, err := ActiveCampaigns(tx, now)
		if err != nil || len(campaigns) == 0 {
			return err
		}
		count, err := CountReviewsByPhone(tx, phone)
		if err != nil {
			return err
		}
		for _, c := range campaigns {
			if count != int64(c.ReviewThreshold) {
				continue
			}
			payload := qrclaim.Payload{
				PhoneNumber: phone,
				CampaignId:  c.ID,
				RewardType:  string(c.RewardType),
				ReviewId:    reviewId,
				StationId:   stationId,
			}
			candidate := RewardClaim{
				PhoneNumber: phone,
				CampaignId:  c.ID,
				StationId:   stationId,
				ReviewId:    &reviewId,
				QrCode:      m.encode(ctx, payload),
			}
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&candidate)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// already claimed for this campaign
				continue
			}
			claim = &candidate
			campaign = c
			return nil
		}
		return nil
	})
	if err != nil || claim == nil {
		return nil, err
	}

	final := m.encode(ctx, qrclaim.Payload{
		ClaimId:     claim.ID,
		PhoneNumber: phone,
		CampaignId:  campaign.ID,
		RewardType:  string(campaign.RewardType),
		ReviewId:    reviewId,
		StationId:   stationId,
	})
	if final != "" {
		if err := config.GetDB().WithContext(ctx).Model(&RewardClaim{}).
			Where("id = ?", claim.ID).
			Update("qr_code", final).Error; err != nil {
			config.LogError(m.Logger, "RewardMatcher", "Match", "store final qr code", claim.ID, err)
		} else {
			claim.QrCode = final
		}
	}

	return &IssuedReward{
		ClaimId:      claim.ID,
		QrCode:       claim.QrCode,
		RewardType:   campaign.RewardType,
		CampaignName: campaign.Name,
	}, nil
}

func GetRewardClaim(ctx context.Context, id string) (*RewardClaim, error) {
	var claim RewardClaim
	err := config.GetDB().WithContext(ctx).Preload("Campaign").Where("id = ?", id).First(&claim).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRewardClaimNotFound
		}
		return nil, err
	}
	return &claim, nil
}

func ListRewardClaimsByPhone(ctx context.Context, phone string) ([]RewardClaim, error) {
	normalized, err := normalizeContact(phone)
	if err != nil {
		return nil, err
	}
	var claims []RewardClaim
	err = config.GetDB().WithContext(ctx).Preload("Campaign").
		Where("phone_number = ?", normalized).
		Order("created_at DESC").
		Find(&claims).Error
	return claims, err
}

// ClaimReward redeems a claim exactly once.
func ClaimReward(ctx context.Context, id string, notes *string) (*RewardClaim, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"is_claimed": true,
		"claimed_at": &now,
	}
	if notes != nil {
		updates["claim_notes"] = *notes
	}
	res := config.GetDB().WithContext(ctx).Model(&RewardClaim{}).
		Where("id = ? AND is_claimed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetRewardClaim(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrRewardAlreadyClaimed
	}
	return GetRewardClaim(ctx, id)
}
