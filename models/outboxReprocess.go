package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/gorm"
)

// ReplayTask puts a task (typically DEAD) back into the dispatch queue and resets its processing state.
func ReplayTask(ctx context.Context, id int) (*TaskRecord, error) {
	now := time.Now().UTC()
	db := config.GetDB()

	res := db.WithContext(ctx).
		Model(&TaskRecord{}).
		Where("id = ? AND processing_status <> ?", id, OutboxProcessStatusSucceeded).
		Updates(map[string]interface{}{
			"locked_at":               nil,
			"locked_by":               nil,
			"publish_status":          OutboxPublishStatusPending,
			"publish_attempts":        0,
			"next_attempt_at":         &now,
			"last_publish_error":      nil,
			"processing_status":       OutboxProcessStatusPending,
			"process_attempts":        0,
			"next_process_attempt_at": &now,
			"last_process_error":      nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return GetTaskRecord(ctx, id)
}

// ReplayDeadTasks replays every DEAD task on a channel (all channels when empty).
func ReplayDeadTasks(ctx context.Context, channel string) (int64, error) {
	now := time.Now().UTC()
	q := config.GetDB().WithContext(ctx).Model(&TaskRecord{}).
		Where("publish_status = ? OR processing_status = ?", OutboxPublishStatusDead, OutboxProcessStatusDead)
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	res := q.Updates(map[string]interface{}{
		"locked_at":               nil,
		"locked_by":               nil,
		"publish_status":          OutboxPublishStatusPending,
		"publish_attempts":        0,
		"next_attempt_at":         &now,
		"last_publish_error":      nil,
		"processing_status":       OutboxProcessStatusPending,
		"process_attempts":        0,
		"next_process_attempt_at": &now,
		"last_process_error":      nil,
	})
	return res.RowsAffected, res.Error
}
