package workflow

import (
	"context"
	"math"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type processRetryConfig struct {
	maxAttempts int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func getProcessRetryConfig() processRetryConfig {
	return processRetryConfig{
		maxAttempts: config.TaskProcessMaxAttempts(),
		baseBackoff: time.Duration(config.IntFromEnv("TASK_PROCESS_BASE_BACKOFF_SECONDS", 5)) * time.Second,
		maxBackoff:  time.Duration(config.IntFromEnv("TASK_PROCESS_MAX_BACKOFF_SECONDS", 600)) * time.Second,
	}
}

func processBackoff(attempt int, cfg processRetryConfig) time.Duration {
	if attempt <= 0 {
		return cfg.baseBackoff
	}
	// base * 2^(attempt-1), capped.
	exp := float64(attempt - 1)
	delay := time.Duration(float64(cfg.baseBackoff) * math.Pow(2, exp))
	if delay > cfg.maxBackoff || delay <= 0 {
		return cfg.maxBackoff
	}
	return delay
}

// taskProcessingStatus is "" when the task has no outbox row.
func taskProcessingStatus(ctx context.Context, db *gorm.DB, id int) string {
	if id <= 0 {
		return ""
	}
	var rec models.TaskRecord
	if err := db.WithContext(ctx).
		Select("id,processing_status").
		Where("id = ?", id).
		First(&rec).Error; err != nil {
		return ""
	}
	return rec.ProcessingStatus
}

func markTaskProcessing(ctx context.Context, db *gorm.DB, id int) {
	if id <= 0 {
		return
	}
	_ = db.WithContext(ctx).
		Model(&models.TaskRecord{}).
		Where("id = ? AND processing_status NOT IN ?", id, []string{models.OutboxProcessStatusDead, models.OutboxProcessStatusSucceeded}).
		Updates(map[string]interface{}{
			"processing_status": models.OutboxProcessStatusProcessing,
		}).Error
}

// markTaskProcessFailure returns whether the record is now DEAD.
func markTaskProcessFailure(ctx context.Context, db *gorm.DB, logger *logrus.Logger, m config.TaskMessage, err error) bool {
	if m.ID <= 0 {
		return false
	}

	cfg := getProcessRetryConfig()
	now := time.Now().UTC()
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	var rec models.TaskRecord
	if qerr := db.WithContext(ctx).
		Select("id,channel,process_attempts").
		Where("id = ?", m.ID).
		First(&rec).Error; qerr != nil {
		// still record the error even if attempts can't be read
		_ = db.WithContext(ctx).Model(&models.TaskRecord{}).
			Where("id = ?", m.ID).
			Updates(map[string]interface{}{
				"last_process_error": &errMsg,
				"processing_status":  models.OutboxProcessStatusFailed,
			}).Error
		return false
	}

	attempts := rec.ProcessAttempts + 1
	status := models.OutboxProcessStatusFailed

	var nextAttemptAt *time.Time
	if attempts >= cfg.maxAttempts {
		status = models.OutboxProcessStatusDead
	} else {
		t := now.Add(processBackoff(attempts, cfg))
		nextAttemptAt = &t
	}

	_ = db.WithContext(ctx).Model(&models.TaskRecord{}).
		Where("id = ?", m.ID).
		Updates(map[string]interface{}{
			"last_process_error":      &errMsg,
			"process_attempts":        attempts,
			"next_process_attempt_at": nextAttemptAt,
			"processing_status":       status,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{
			"field":             "TaskProcessing",
			"channel":           rec.Channel,
			"record_id":         rec.ID,
			"processing_status": status,
			"process_attempts":  attempts,
		}).Error("task processing failed: " + errMsg)
	}

	return status == models.OutboxProcessStatusDead
}

// markTaskPoisoned parks a task whose payload can never be processed.
func markTaskPoisoned(ctx context.Context, db *gorm.DB, logger *logrus.Logger, m config.TaskMessage, err error) {
	errMsg := err.Error()
	if m.ID > 0 {
		_ = db.WithContext(ctx).Model(&models.TaskRecord{}).
			Where("id = ?", m.ID).
			Updates(map[string]interface{}{
				"last_process_error":      &errMsg,
				"next_process_attempt_at": nil,
				"processing_status":       models.OutboxProcessStatusDead,
				"locked_at":               nil,
				"locked_by":               nil,
			}).Error
	}
	if logger != nil {
		logger.WithFields(utils.LogFields(ctx)).WithFields(logrus.Fields{
			"field":     "TaskProcessing",
			"channel":   m.Channel,
			"record_id": m.ID,
		}).Error("poison task acked: " + errMsg)
	}
}

func markTaskProcessSuccess(ctx context.Context, db *gorm.DB, logger *logrus.Logger, m config.TaskMessage) {
	if m.ID <= 0 {
		return
	}
	now := time.Now().UTC()

	_ = db.WithContext(ctx).Model(&models.TaskRecord{}).
		Where("id = ? AND processing_status <> ?", m.ID, models.OutboxProcessStatusDead).
		Updates(map[string]interface{}{
			"processing_status":       models.OutboxProcessStatusSucceeded,
			"processed_at":            &now,
			"next_process_attempt_at": nil,
			"last_process_error":      nil,
			"locked_at":               nil,
			"locked_by":               nil,
		}).Error

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":             "TaskProcessing",
			"channel":           m.Channel,
			"record_id":         m.ID,
			"correlation_id":    m.CorrelationId,
			"processing_status": models.OutboxProcessStatusSucceeded,
		}).Info("task processed successfully")
	}
}
