package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"gorm.io/gorm"
)

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// EnqueueTask implements the transactional outbox:
// it writes the task inside the caller's DB transaction but does NOT publish it.
// Publishing is performed asynchronously by the outbox dispatcher after commit.
func EnqueueTask(ctx context.Context, tx *gorm.DB, channel string, payload interface{}) (*TaskRecord, error) {
	if !config.IsKnownChannel(channel) {
		return nil, fmt.Errorf("unknown task channel %q", channel)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	record := TaskRecord{
		Channel:          channel,
		Payload:          body,
		PublishStatus:    OutboxPublishStatusPending,
		ProcessingStatus: OutboxProcessStatusPending,
		CorrelationId:    correlationIdFromContextOrNew(ctx),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}

// normalizeContact turns a phone number into the E.164 contact identity.
func normalizeContact(phone string) (string, error) {
	normalized, err := utils.NormalizePhoneNumber(phone, config.PhoneRegion())
	if err != nil {
		return "", &ValidationError{Field: "phoneNumber", Message: err.Error()}
	}
	return normalized, nil
}
