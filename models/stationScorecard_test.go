package models

import (
	"context"
	"testing"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func sentimentPtr(s Sentiment) *Sentiment { return &s }

func TestAggregateReviews(t *testing.T) {
	reviews := []Review{
		{Rating: 5, Sentiment: sentimentPtr(SentimentPositive), Keywords: datatypes.JSONSlice[string]{"clean", "fast"}},
		{Rating: 2, Sentiment: sentimentPtr(SentimentNegative), Keywords: datatypes.JSONSlice[string]{"slow", "fast"}},
		{Rating: 4, Sentiment: sentimentPtr(SentimentNeutral), Keywords: datatypes.JSONSlice[string]{"fast"}},
		{Rating: 4},
	}
	stats := AggregateReviews(reviews)
	assert.Equal(t, 4, stats.TotalReviews)
	assert.Equal(t, "3.75", stats.AvgRating.String())
	assert.Equal(t, 1, stats.PositiveCount)
	assert.Equal(t, 1, stats.NegativeCount)
	assert.Equal(t, 1, stats.NeutralCount)
	assert.Equal(t, []string{"fast", "clean", "slow"}, stats.TopKeywords)

	empty := AggregateReviews(nil)
	assert.Equal(t, 0, empty.TotalReviews)
	assert.True(t, empty.AvgRating.IsZero())
}

func TestScorecardWindow(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

	start, end := ScorecardWindow(ScorecardPeriodDaily, now)
	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), end)

	start, _ = ScorecardWindow(ScorecardPeriodWeekly, now)
	assert.Equal(t, time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC), start)

	start, end = ScorecardWindow(ScorecardPeriodMonthly, now)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestEnqueueScorecardTasks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	seedStation(t, db, "")
	seedStation(t, db, "")

	n, err := EnqueueScorecardTasks(ctx, ScorecardPeriodDaily, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int64(2), countTasks(t, db, config.ChannelSummarize))

	_, err = EnqueueScorecardTasks(ctx, "yearly", time.Now())
	assert.True(t, IsClientError(err))
}
