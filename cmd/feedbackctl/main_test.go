package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupCtlDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	return db
}

func runCtl(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestScorecardsEnqueue(t *testing.T) {
	db := setupCtlDB(t)
	inactive := false
	require.NoError(t, db.Create(&models.Station{Name: "Canal Road", StationCode: "CR-1"}).Error)
	require.NoError(t, db.Create(&models.Station{Name: "Closed", StationCode: "CL-1", IsActive: &inactive}).Error)

	out, err := runCtl(t, "scorecards", "enqueue", "--period", "weekly", "--at", "2024-03-15")
	require.NoError(t, err)
	assert.Contains(t, out, "enqueued 1 weekly scorecard task(s) for 2024-03-08 .. 2024-03-15")

	var count int64
	require.NoError(t, db.Model(&models.TaskRecord{}).Where("channel = ?", config.ChannelSummarize).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = runCtl(t, "scorecards", "enqueue", "--period", "yearly")
	assert.Error(t, err)
}

func TestTasksStatusAndReplay(t *testing.T) {
	db := setupCtlDB(t)
	rec := models.TaskRecord{
		Channel:          config.ChannelNotify,
		Payload:          []byte(`{"alert_id":"a1"}`),
		CorrelationId:    "cid-1",
		PublishStatus:    models.OutboxPublishStatusSent,
		ProcessingStatus: models.OutboxProcessStatusDead,
		ProcessAttempts:  5,
	}
	require.NoError(t, db.Create(&rec).Error)

	out, err := runCtl(t, "tasks", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "notify")
	assert.Contains(t, out, "DEAD")

	out, err = runCtl(t, "tasks", "replay", "--all-dead", "--channel", config.ChannelNotify)
	require.NoError(t, err)
	assert.Contains(t, out, "requeued 1 dead task(s)")

	var stored models.TaskRecord
	require.NoError(t, db.First(&stored, rec.ID).Error)
	assert.Equal(t, models.OutboxProcessStatusPending, stored.ProcessingStatus)
	assert.Equal(t, 0, stored.ProcessAttempts)

	_, err = runCtl(t, "tasks", "replay")
	assert.Error(t, err)
	_, err = runCtl(t, "tasks", "replay", "--id", "999")
	assert.Error(t, err)
	_, err = runCtl(t, "tasks", "status", "--channel", "bogus")
	assert.Error(t, err)
}

func TestClaimsShowAndRedeem(t *testing.T) {
	db := setupCtlDB(t)
	station := models.Station{Name: "Canal Road", StationCode: "CR-1"}
	require.NoError(t, db.Create(&station).Error)
	campaign := models.Campaign{
		Name:            "Fifth visit tea",
		ReviewThreshold: 5,
		RewardType:      models.RewardTypeFreeTea,
		Status:          models.CampaignStatusActive,
	}
	require.NoError(t, db.Create(&campaign).Error)
	claim := models.RewardClaim{PhoneNumber: "+923001234567", CampaignId: campaign.ID, StationId: station.ID}
	require.NoError(t, db.Create(&claim).Error)

	out, err := runCtl(t, "claims", "show", claim.ID)
	require.NoError(t, err)
	var shown models.RewardClaim
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, claim.ID, shown.ID)
	assert.False(t, shown.IsClaimed)

	out, err = runCtl(t, "claims", "redeem", claim.ID, "--notes", "till 2")
	require.NoError(t, err)
	var redeemed models.RewardClaim
	require.NoError(t, json.Unmarshal([]byte(out), &redeemed))
	assert.True(t, redeemed.IsClaimed)
	require.NotNil(t, redeemed.ClaimNotes)
	assert.Equal(t, "till 2", *redeemed.ClaimNotes)

	_, err = runCtl(t, "claims", "redeem", claim.ID)
	assert.ErrorIs(t, err, models.ErrRewardAlreadyClaimed)

	_, err = runCtl(t, "claims", "list")
	assert.Error(t, err)
}
