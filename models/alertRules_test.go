package models

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateAlertRules_RatingPriority(t *testing.T) {
	cfg := defaultAlertConfiguration("s1")
	cases := []struct {
		rating   int
		priority AlertPriority
		fires    bool
	}{
		{1, AlertPriorityCritical, true},
		{2, AlertPriorityHigh, true},
		{3, AlertPriorityMedium, true},
		{4, "", false},
		{5, "", false},
	}
	for _, tc := range cases {
		decision := EvaluateAlertRules(&Review{ID: "r", Rating: tc.rating}, &cfg)
		if !tc.fires {
			assert.Nil(t, decision, "rating %d", tc.rating)
			continue
		}
		require.NotNil(t, decision, "rating %d", tc.rating)
		assert.Equal(t, AlertTypeNegativeRating, decision.Type)
		assert.Equal(t, tc.priority, decision.Priority, "rating %d", tc.rating)
		assert.Equal(t, tc.rating, decision.Payload["rating"])
	}
}

func TestEvaluateAlertRules_OrderAndToggles(t *testing.T) {
	negative := SentimentNegative
	review := &Review{
		Rating:         2,
		Sentiment:      &negative,
		SentimentScore: decimal.NewNullDecimal(decimal.RequireFromString("0.15")),
		FlaggedAsSpam:  true,
	}
	cfg := defaultAlertConfiguration("s1")

	// rating wins over sentiment and spam
	assert.Equal(t, AlertTypeNegativeRating, EvaluateAlertRules(review, &cfg).Type)

	review.Rating = 5
	decision := EvaluateAlertRules(review, &cfg)
	require.NotNil(t, decision)
	assert.Equal(t, AlertTypeNegativeSentiment, decision.Type)
	assert.Equal(t, AlertPriorityMedium, decision.Priority)
	assert.Equal(t, 0.15, decision.Payload["sentimentScore"])

	cfg.SentimentBasedAlerts = false
	decision = EvaluateAlertRules(review, &cfg)
	require.NotNil(t, decision)
	assert.Equal(t, AlertTypeSpamDetected, decision.Type)
	assert.Equal(t, AlertPriorityLow, decision.Priority)

	cfg.SpamDetectionAlerts = false
	assert.Nil(t, EvaluateAlertRules(review, &cfg))

	cfg.IsEnabled = false
	review.Rating = 1
	assert.Nil(t, EvaluateAlertRules(review, &cfg))
	assert.Nil(t, EvaluateAlertRules(review, nil))
}

func TestRunAlertRules_IdempotentPerReview(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	station := seedStation(t, db, "manager@example.com")
	_, err := UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{NegativeRatingThreshold: intPtr(2)})
	require.NoError(t, err)

	review := seedReview(t, db, station.ID, "+923001234567", 2, time.Now())

	first, err := RunAlertRules(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, AlertPriorityHigh, first.Priority)

	second, err := RunAlertRules(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1), countTasks(t, db, config.ChannelNotify))
}

func TestRunAlertRules_NoConfigNoReviewNoManager(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	station := seedStation(t, db, "")
	review := seedReview(t, db, station.ID, "+923001234567", 1, time.Now())

	alert, err := RunAlertRules(ctx, review.ID)
	require.NoError(t, err)
	assert.Nil(t, alert, "unconfigured station raises nothing")

	alert, err = RunAlertRules(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, alert)

	_, err = UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{})
	require.NoError(t, err)
	alert, err = RunAlertRules(ctx, review.ID)
	require.NoError(t, err)
	require.NotNil(t, alert, "alert persists without a manager")
	assert.Equal(t, int64(0), countTasks(t, db, config.ChannelNotify))
}

func TestUpsertAlertConfiguration_Partial(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	station := seedStation(t, db, "")

	cfg, err := UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{SmsNotificationsEnabled: boolPtr(false)})
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled)
	assert.Equal(t, DefaultNegativeRatingThreshold, cfg.NegativeRatingThreshold)
	assert.False(t, cfg.SmsNotificationsEnabled)

	cfg, err = UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{NegativeRatingThreshold: intPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.NegativeRatingThreshold)
	assert.False(t, cfg.SmsNotificationsEnabled, "untouched fields keep their value")

	_, err = UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{NegativeRatingThreshold: intPtr(9)})
	assert.True(t, IsClientError(err))

	var n int64
	require.NoError(t, db.Model(&AlertConfiguration{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestTransitionAlert_ForwardOnly(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	station := seedStation(t, db, "")
	alert := Alert{StationId: station.ID, Type: AlertTypeNegativeRating, Priority: AlertPriorityHigh, Status: AlertStatusNew, Reason: "r"}
	require.NoError(t, db.Create(&alert).Error)

	_, err := TransitionAlert(ctx, alert.ID, AlertStatusResolved, "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidAlertTransition)

	require.NoError(t, MarkAlertNotified(db, alert.ID))
	got, err := GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, AlertStatusNotified, got.Status)
	assert.NotNil(t, got.NotifiedAt)

	got, err = TransitionAlert(ctx, alert.ID, AlertStatusAcknowledged, "u1", nil)
	require.NoError(t, err)
	assert.Equal(t, "u1", *got.AcknowledgedBy)

	// automated delivery never rewinds a human decision
	require.NoError(t, MarkAlertNotified(db, alert.ID))
	got, err = GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, AlertStatusAcknowledged, got.Status)

	_, err = TransitionAlert(ctx, alert.ID, AlertStatusNotified, "u1", nil)
	assert.ErrorIs(t, err, ErrInvalidAlertTransition)

	got, err = TransitionAlert(ctx, alert.ID, AlertStatusResolved, "u2", strPtr("refunded"))
	require.NoError(t, err)
	assert.Equal(t, "refunded", *got.ResolutionNote)

	_, err = TransitionAlert(ctx, alert.ID, AlertStatusEscalated, "u2", nil)
	assert.ErrorIs(t, err, ErrInvalidAlertTransition)

	_, err = TransitionAlert(ctx, "missing", AlertStatusAcknowledged, "u2", nil)
	assert.True(t, IsNotFound(err))
}
