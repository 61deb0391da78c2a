package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/gorm"
)

// AlertDecision is what one rule emits; the engine persists it as an Alert.
type AlertDecision struct {
	Type     AlertType
	Priority AlertPriority
	Reason   string
	Payload  map[string]interface{}
}

type alertRule func(review *Review, cfg *AlertConfiguration) *AlertDecision

// alertRuleChain is evaluated in order; the first rule that fires wins.
var alertRuleChain = []alertRule{
	negativeRatingRule,
	negativeSentimentRule,
	spamRule,
}

func negativeRatingRule(review *Review, cfg *AlertConfiguration) *AlertDecision {
	if review.Rating > cfg.NegativeRatingThreshold {
		return nil
	}
	return &AlertDecision{
		Type:     AlertTypeNegativeRating,
		Priority: PriorityForRating(review.Rating),
		Reason:   fmt.Sprintf("Low rating (%d/5) review submitted", review.Rating),
		Payload:  map[string]interface{}{"rating": review.Rating},
	}
}

func negativeSentimentRule(review *Review, cfg *AlertConfiguration) *AlertDecision {
	if !cfg.SentimentBasedAlerts || review.Sentiment == nil || *review.Sentiment != SentimentNegative {
		return nil
	}
	var score interface{}
	if review.SentimentScore.Valid {
		score, _ = review.SentimentScore.Decimal.Float64()
	}
	return &AlertDecision{
		Type:     AlertTypeNegativeSentiment,
		Priority: AlertPriorityMedium,
		Reason:   "Negative sentiment detected in review",
		Payload:  map[string]interface{}{"sentimentScore": score},
	}
}

func spamRule(review *Review, cfg *AlertConfiguration) *AlertDecision {
	if !cfg.SpamDetectionAlerts || !review.FlaggedAsSpam {
		return nil
	}
	return &AlertDecision{
		Type:     AlertTypeSpamDetected,
		Priority: AlertPriorityLow,
		Reason:   "Spam/fake review detected",
		Payload:  map[string]interface{}{},
	}
}

// PriorityForRating maps a low rating to alert priority.
func PriorityForRating(rating int) AlertPriority {
	switch rating {
	case 1:
		return AlertPriorityCritical
	case 2:
		return AlertPriorityHigh
	default:
		return AlertPriorityMedium
	}
}

// EvaluateAlertRules is pure: it returns zero or one decision for the review.
func EvaluateAlertRules(review *Review, cfg *AlertConfiguration) *AlertDecision {
	if review == nil || cfg == nil || !cfg.IsEnabled {
		return nil
	}
	for _, rule := range alertRuleChain {
		if decision := rule(review, cfg); decision != nil {
			return decision
		}
	}
	return nil
}

// RunAlertRules evaluates a stored review and persists at most one alert.
// A missing review or configuration yields (nil, nil). Running it again for the same
// review returns the existing alert without enqueueing a second notification.
func RunAlertRules(ctx context.Context, reviewId string) (*Alert, error) {
	review, err := GetReview(ctx, reviewId)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cfg, err := GetAlertConfiguration(ctx, review.StationId)
	if err != nil {
		return nil, err
	}
	decision := EvaluateAlertRules(review, cfg)
	if decision == nil {
		return nil, nil
	}

	dedupeKey := alertDedupeKey(review.ID, decision.Type)
	if existing, err := findAlertByDedupeKey(config.GetDB().WithContext(ctx), dedupeKey); err != nil || existing != nil {
		return existing, err
	}

	manager, err := GetStationManager(ctx, review.StationId)
	if err != nil {
		return nil, fmt.Errorf("station manager lookup: %w", err)
	}

	payload, err := json.Marshal(decision.Payload)
	if err != nil {
		return nil, err
	}
	alert := Alert{
		StationId: review.StationId,
		ReviewId:  &review.ID,
		Type:      decision.Type,
		Priority:  decision.Priority,
		Status:    AlertStatusNew,
		Reason:    decision.Reason,
		Payload:   payload,
		DedupeKey: &dedupeKey,
	}
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&alert).Error; err != nil {
			return err
		}
		if manager == nil {
			return nil
		}
		_, err := EnqueueTask(ctx, tx, config.ChannelNotify, NotifyTaskPayload{
			AlertId:        alert.ID,
			StationId:      alert.StationId,
			ReviewId:       review.ID,
			Priority:       alert.Priority,
			Reason:         alert.Reason,
			ManagerContact: manager.Email,
			ManagerPhone:   manager.Phone,
		})
		return err
	})
	if err != nil {
		if isDuplicateKeyErr(err) {
			return findAlertByDedupeKey(config.GetDB().WithContext(ctx), dedupeKey)
		}
		return nil, err
	}
	return &alert, nil
}

func findAlertByDedupeKey(tx *gorm.DB, key string) (*Alert, error) {
	var alert Alert
	err := tx.Where("dedupe_key = ?", key).First(&alert).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}
