package models

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckCooldown(t *testing.T) {
	window := 18 * time.Hour
	last := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.NoError(t, CheckCooldown(time.Time{}, last, window), "first review is always allowed")

	err := CheckCooldown(last, last.Add(17*time.Hour+59*time.Minute), window)
	var cooldown *CooldownActiveError
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, 0.0, cooldown.RemainingHours())
	assert.Equal(t, "Please wait 0.0 more hours before submitting another review. You can only submit one review every 18 hours.", err.Error())

	err = CheckCooldown(last, last.Add(6*time.Hour), window)
	require.True(t, errors.As(err, &cooldown))
	assert.Equal(t, 12.0, cooldown.RemainingHours())

	assert.NoError(t, CheckCooldown(last, last.Add(window), window), "acceptance resumes exactly at the boundary")
	assert.NoError(t, CheckCooldown(last, last.Add(30*time.Hour), window))
}

func newTestSubmitter(now *time.Time) *ReviewSubmitter {
	return &ReviewSubmitter{
		Cooldown:    18 * time.Hour,
		PhoneRegion: "PK",
		Matcher:     NewRewardMatcher(nil, nil),
		Now:         func() time.Time { return *now },
	}
}

func TestSubmit_CooldownPerContact(t *testing.T) {
	db := setupTestDB(t)
	station := seedStation(t, db, "")
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	s := newTestSubmitter(&now)

	first, err := s.Submit(ctx, NewReview{StationId: station.ID, Rating: 4, Content: "Quick service", PhoneNumber: "0300 1234567"})
	require.NoError(t, err)
	assert.Equal(t, "+923001234567", first.Review.PhoneNumber)
	assert.Nil(t, first.Review.LastSubmissionAt)
	assert.Equal(t, int64(1), countTasks(t, db, config.ChannelEnrich))

	now = now.Add(17*time.Hour + 59*time.Minute)
	_, err = s.Submit(ctx, NewReview{StationId: station.ID, Rating: 5, Content: "Again", PhoneNumber: "+923001234567"})
	var cooldown *CooldownActiveError
	require.True(t, errors.As(err, &cooldown), "same contact in another format is still the same identity")
	assert.Equal(t, 0.0, cooldown.RemainingHours())
	assert.True(t, IsClientError(err))

	// another contact is unaffected
	_, err = s.Submit(ctx, NewReview{StationId: station.ID, Rating: 5, Content: "Nice", PhoneNumber: "03219876543"})
	require.NoError(t, err)

	now = now.Add(time.Minute)
	second, err := s.Submit(ctx, NewReview{StationId: station.ID, Rating: 5, Content: "Back again", PhoneNumber: "03001234567"})
	require.NoError(t, err)
	require.NotNil(t, second.Review.LastSubmissionAt)
	assert.True(t, second.Review.LastSubmissionAt.Equal(first.Review.CreatedAt))

	var stored int64
	require.NoError(t, db.Model(&Review{}).Where("phone_number = ?", "+923001234567").Count(&stored).Error)
	assert.Equal(t, int64(2), stored)
}

func TestSubmit_ConcurrentSameContactOneWins(t *testing.T) {
	db := setupTestDB(t)
	station := seedStation(t, db, "")
	ctx := context.Background()

	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	s := newTestSubmitter(&now)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Submit(ctx, NewReview{StationId: station.ID, Rating: 4, Content: "Quick service", PhoneNumber: "03001234567"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted, rejected := 0, 0
	for err := range errs {
		var cooldown *CooldownActiveError
		switch {
		case err == nil:
			accepted++
		case errors.As(err, &cooldown):
			rejected++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, n-1, rejected)

	var stored int64
	require.NoError(t, db.Model(&Review{}).Where("phone_number = ?", "+923001234567").Count(&stored).Error)
	assert.Equal(t, int64(1), stored)
	assert.Equal(t, int64(1), countTasks(t, db, config.ChannelEnrich))
}

func TestSubmit_Validation(t *testing.T) {
	db := setupTestDB(t)
	station := seedStation(t, db, "")
	now := time.Now().UTC()
	s := newTestSubmitter(&now)
	ctx := context.Background()

	_, err := s.Submit(ctx, NewReview{StationId: station.ID, Rating: 6, Content: "x", PhoneNumber: "03001234567"})
	assert.True(t, IsClientError(err))

	_, err = s.Submit(ctx, NewReview{StationId: station.ID, Rating: 3, Content: "x", PhoneNumber: "12"})
	assert.True(t, IsClientError(err))

	_, err = s.Submit(ctx, NewReview{StationId: station.ID, Rating: 3, Content: "x", PhoneNumber: "03001234567", Categories: []ReviewCategory{"lounge"}})
	assert.True(t, IsClientError(err))

	_, err = s.Submit(ctx, NewReview{StationId: "missing", Rating: 3, Content: "x", PhoneNumber: "03001234567"})
	assert.True(t, IsNotFound(err))
}

func TestSubmit_LowRatingRaisesAlertAndNotifyTask(t *testing.T) {
	db := setupTestDB(t)
	station := seedStation(t, db, "manager@example.com")
	ctx := context.Background()
	_, err := UpsertAlertConfiguration(ctx, station.ID, NewAlertConfiguration{})
	require.NoError(t, err)

	now := time.Now().UTC()
	s := newTestSubmitter(&now)
	res, err := s.Submit(ctx, NewReview{StationId: station.ID, Rating: 1, Content: "Pump was broken", PhoneNumber: "03001234567"})
	require.NoError(t, err)
	require.NotNil(t, res.AlertId)

	alert, err := GetAlert(ctx, *res.AlertId)
	require.NoError(t, err)
	assert.Equal(t, AlertPriorityCritical, alert.Priority)
	assert.Equal(t, AlertStatusNew, alert.Status)
	assert.Equal(t, "Low rating (1/5) review submitted", alert.Reason)
	assert.Equal(t, int64(1), countTasks(t, db, config.ChannelNotify))
}
