package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DirectProcessor runs outbox tasks in-process without a broker.
// Used with QUEUE_BACKEND=direct (local/dev, single-instance deployments).
type DirectProcessor struct {
	DB        *gorm.DB
	Logger    *logrus.Logger
	Processor *Processor
	WorkerID  string
	BatchSize int
	Interval  time.Duration
	LockTTL   time.Duration
}

func NewDirectProcessor(db *gorm.DB, logger *logrus.Logger, processor *Processor) *DirectProcessor {
	return &DirectProcessor{
		DB:        db,
		Logger:    logger,
		Processor: processor,
		WorkerID:  "direct-" + time.Now().Format("20060102-150405.000"),
		BatchSize: 50,
		Interval:  2 * time.Second,
		LockTTL:   30 * time.Second,
	}
}

func (p *DirectProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil || p.Processor == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.processOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

// processOnce claims a batch of unprocessed tasks that are due and runs them. It returns
// how many were claimed.
func (p *DirectProcessor) processOnce(ctx context.Context) int {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.LockTTL)

	var claimed []models.TaskRecord
	err := p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.
			Where("processing_status IN ?", []string{
				models.OutboxProcessStatusPending,
				models.OutboxProcessStatusFailed,
				models.OutboxProcessStatusProcessing,
			}).
			Where("publish_status <> ?", models.OutboxPublishStatusDead).
			Where("(next_process_attempt_at IS NULL OR next_process_attempt_at <= ?)", now).
			Where("(locked_at IS NULL OR locked_at <= ?)", staleBefore).
			Order("id ASC").
			Limit(p.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			brokerId := fmt.Sprintf("direct:%d", claimed[i].ID)
			if err := tx.Model(&models.TaskRecord{}).
				Where("id = ?", claimed[i].ID).
				Updates(map[string]interface{}{
					"locked_at":         &now,
					"locked_by":         p.WorkerID,
					"publish_status":    models.OutboxPublishStatusSent,
					"published_at":      &now,
					"broker_message_id": brokerId,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":     "DirectProcessor",
				"worker_id": p.WorkerID,
			}).Error("direct claim failed: " + err.Error())
		}
		return 0
	}

	for _, rec := range claimed {
		// ProcessTask records success, failure and backoff on the row itself.
		if err := p.Processor.ProcessTask(ctx, models.ConvertToTaskMessage(rec)); err != nil {
			_ = p.DB.WithContext(ctx).Model(&models.TaskRecord{}).
				Where("id = ?", rec.ID).
				Updates(map[string]interface{}{
					"locked_at": nil,
					"locked_by": nil,
				}).Error
		}
	}
	return len(claimed)
}
