package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
)

// Publish side of a task, driven by the outbox dispatcher.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// Processing side of a task, driven by whichever consumer received it.
const (
	OutboxProcessStatusPending    = "PENDING"
	OutboxProcessStatusProcessing = "PROCESSING"
	OutboxProcessStatusSucceeded  = "SUCCEEDED"
	OutboxProcessStatusFailed     = "FAILED"
	OutboxProcessStatusDead       = "DEAD"
)

// TaskRecord is one outbox row: a task written with its producing transaction and
// later published to the broker topic of its channel.
type TaskRecord struct {
	ID            int             `gorm:"primary_key;index:idx_task_dispatch,priority:3" json:"id"`
	Channel       string          `gorm:"size:20;not null;index" json:"channel"`
	Payload       json.RawMessage `gorm:"type:blob" json:"payload"`
	CorrelationId string          `gorm:"size:64;index" json:"correlation_id"`
	// publish side (dispatcher)
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_task_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	BrokerMessageId  *string    `gorm:"size:255" json:"broker_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_task_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`
	// processing side (consumer)
	ProcessingStatus     string     `gorm:"size:20;index;not null;default:'PENDING'" json:"processing_status"` // PENDING|PROCESSING|SUCCEEDED|FAILED|DEAD
	ProcessAttempts      int        `gorm:"not null;default:0" json:"process_attempts"`
	NextProcessAttemptAt *time.Time `gorm:"index" json:"next_process_attempt_at"`
	LastProcessError     *string    `gorm:"type:text" json:"last_process_error"`
	ProcessedAt          *time.Time `gorm:"index" json:"processed_at"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToTaskMessage(record TaskRecord) config.TaskMessage {
	return config.TaskMessage{
		ID:            record.ID,
		Channel:       record.Channel,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
		CreatedAt:     record.CreatedAt,
	}
}

// EnrichTaskPayload asks the enrichment worker to tag a review.
type EnrichTaskPayload struct {
	ReviewId  string `json:"review_id"`
	StationId string `json:"station_id"`
	Text      string `json:"text"`
	Language  string `json:"language"`
	Rating    int    `json:"rating"`
}

// NotifyTaskPayload asks the notification worker to tell a manager about an alert.
type NotifyTaskPayload struct {
	AlertId        string        `json:"alert_id"`
	StationId      string        `json:"station_id"`
	ReviewId       string        `json:"review_id"`
	Priority       AlertPriority `json:"priority"`
	Reason         string        `json:"reason"`
	ManagerContact string        `json:"manager_contact"`
	ManagerPhone   string        `json:"manager_phone"`
}

// SummarizeTaskPayload asks the scorecard worker to snapshot a station's window.
type SummarizeTaskPayload struct {
	StationId string          `json:"station_id"`
	Period    ScorecardPeriod `json:"period"`
	StartDate time.Time       `json:"start_date"`
	EndDate   time.Time       `json:"end_date"`
}

func GetTaskRecord(ctx context.Context, id int) (*TaskRecord, error) {
	var rec TaskRecord
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey records that a handler has run (or is running) for one delivered task.
// A redelivered task finds its SUCCEEDED key and is skipped.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	Channel     string            `gorm:"size:20;not null;uniqueIndex:uniq_task_handler" json:"channel"`
	HandlerName string            `gorm:"size:100;not null;uniqueIndex:uniq_task_handler" json:"handler_name"`
	MessageId   string            `gorm:"size:64;not null;uniqueIndex:uniq_task_handler" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:20;not null;index" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
