package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CheckCooldown rejects when the previous submission is younger than window.
// A zero lastAt (no previous review) always passes.
func CheckCooldown(lastAt, now time.Time, window time.Duration) error {
	if lastAt.IsZero() || window <= 0 {
		return nil
	}
	elapsed := now.Sub(lastAt)
	if elapsed < window {
		return &CooldownActiveError{Remaining: window - elapsed, Window: window}
	}
	return nil
}

// ReviewSubmitter runs the synchronous submission path.
type ReviewSubmitter struct {
	Cooldown    time.Duration
	PhoneRegion string
	Matcher     *RewardMatcher
	Logger      *logrus.Logger
	Now         func() time.Time
}

func NewReviewSubmitter(matcher *RewardMatcher, logger *logrus.Logger) *ReviewSubmitter {
	return &ReviewSubmitter{
		Cooldown:    config.ReviewCooldown(),
		PhoneRegion: config.PhoneRegion(),
		Matcher:     matcher,
		Logger:      logger,
		Now:         func() time.Time { return time.Now().UTC() },
	}
}

type SubmissionResult struct {
	Review  *Review
	AlertId *string
	Reward  *IssuedReward
}

func (s *ReviewSubmitter) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Submit validates and stores a review, then runs the alert engine and the reward matcher.
// Alert and reward failures are logged; they never fail the submission.
func (s *ReviewSubmitter) Submit(ctx context.Context, input NewReview) (*SubmissionResult, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	phone, err := utils.NormalizePhoneNumber(input.PhoneNumber, s.PhoneRegion)
	if err != nil {
		return nil, &ValidationError{Field: "phoneNumber", Message: err.Error()}
	}
	if _, err := GetStation(ctx, input.StationId); err != nil {
		return nil, err
	}

	release := obtainContactLock(ctx, s.Logger, phone)
	defer release()

	now := s.now()
	var review Review
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockContactRow(tx, phone); err != nil {
			return fmt.Errorf("lock contact: %w", err)
		}

		var last Review
		var lastAt time.Time
		err := tx.Where("phone_number = ?", phone).Order("created_at DESC").First(&last).Error
		if err == nil {
			lastAt = last.CreatedAt
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := CheckCooldown(lastAt, now, s.Cooldown); err != nil {
			return err
		}

		categories := make(datatypes.JSONSlice[string], 0, len(input.Categories))
		for _, c := range input.Categories {
			categories = append(categories, string(c))
		}
		review = Review{
			StationId:    input.StationId,
			PhoneNumber:  phone,
			CustomerName: input.CustomerName,
			Rating:       input.Rating,
			Content:      input.Content,
			Categories:   categories,
			Language:     input.Language,
			Keywords:     datatypes.JSONSlice[string]{},
			Status:       ReviewStatusNew,
			CreatedAt:    now,
		}
		if !lastAt.IsZero() {
			review.LastSubmissionAt = &lastAt
		}
		if err := tx.Create(&review).Error; err != nil {
			return err
		}
		if err := touchContactRow(tx, phone, review.ID, now); err != nil {
			return err
		}
		_, err = EnqueueTask(ctx, tx, config.ChannelEnrich, EnrichTaskPayload{
			ReviewId:  review.ID,
			StationId: review.StationId,
			Text:      review.Content,
			Language:  review.Language,
			Rating:    review.Rating,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &SubmissionResult{Review: &review}

	alert, err := RunAlertRules(ctx, review.ID)
	if err != nil {
		config.LogError(s.Logger, "ReviewSubmitter", "Submit", "alert rules", review.ID, err)
	} else if alert != nil {
		result.AlertId = &alert.ID
	}

	if s.Matcher != nil {
		reward, err := s.Matcher.Match(ctx, phone, review.ID, review.StationId, now)
		if err != nil {
			config.LogError(s.Logger, "ReviewSubmitter", "Submit", "reward matcher", review.ID, err)
		} else {
			result.Reward = reward
		}
	}
	return result, nil
}
