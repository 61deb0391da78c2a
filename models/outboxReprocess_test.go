package models

import (
	"context"
	"testing"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func enqueueWithStatus(t *testing.T, db *gorm.DB, channel, publish, processing string) *TaskRecord {
	t.Helper()
	rec, err := EnqueueTask(context.Background(), db, channel, EnrichTaskPayload{ReviewId: "r1"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&TaskRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
		"publish_status":    publish,
		"processing_status": processing,
		"process_attempts":  3,
	}).Error)
	return rec
}

func TestReplayTask_ResetsDeadTask(t *testing.T) {
	db := setupTestDB(t)
	rec := enqueueWithStatus(t, db, config.ChannelEnrich, OutboxPublishStatusSent, OutboxProcessStatusDead)

	replayed, err := ReplayTask(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, OutboxPublishStatusPending, replayed.PublishStatus)
	assert.Equal(t, OutboxProcessStatusPending, replayed.ProcessingStatus)
	assert.Equal(t, 0, replayed.ProcessAttempts)
	assert.NotNil(t, replayed.NextAttemptAt)
}

func TestReplayTask_SucceededOrMissingIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	done := enqueueWithStatus(t, db, config.ChannelEnrich, OutboxPublishStatusSent, OutboxProcessStatusSucceeded)

	_, err := ReplayTask(context.Background(), done.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = ReplayTask(context.Background(), done.ID+100)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = EnqueueTask(context.Background(), db, "unknown", nil)
	assert.Error(t, err)
}

func TestReplayDeadTasks_FiltersByChannel(t *testing.T) {
	db := setupTestDB(t)
	enqueueWithStatus(t, db, config.ChannelEnrich, OutboxPublishStatusDead, OutboxProcessStatusPending)
	enqueueWithStatus(t, db, config.ChannelNotify, OutboxPublishStatusSent, OutboxProcessStatusDead)
	enqueueWithStatus(t, db, config.ChannelNotify, OutboxPublishStatusSent, OutboxProcessStatusSucceeded)

	n, err := ReplayDeadTasks(context.Background(), config.ChannelNotify)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = ReplayDeadTasks(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the enrich task is still dead")
}

func TestCountTasksByStatus(t *testing.T) {
	db := setupTestDB(t)
	enqueueWithStatus(t, db, config.ChannelNotify, OutboxPublishStatusSent, OutboxProcessStatusDead)
	enqueueWithStatus(t, db, config.ChannelEnrich, OutboxPublishStatusSent, OutboxProcessStatusSucceeded)
	enqueueWithStatus(t, db, config.ChannelEnrich, OutboxPublishStatusSent, OutboxProcessStatusSucceeded)

	rows, err := CountTasksByStatus(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, TaskStatusCount{
		Channel:          config.ChannelEnrich,
		PublishStatus:    OutboxPublishStatusSent,
		ProcessingStatus: OutboxProcessStatusSucceeded,
		Count:            2,
	}, rows[0])
	assert.Equal(t, config.ChannelNotify, rows[1].Channel)

	rows, err = CountTasksByStatus(context.Background(), config.ChannelNotify)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].Count)
}
