package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Alert struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	StationId      string         `gorm:"size:36;not null;index" json:"station_id"`
	ReviewId       *string        `gorm:"size:36;index" json:"review_id"`
	Type           AlertType      `gorm:"size:30;not null" json:"type"`
	Priority       AlertPriority  `gorm:"size:20;not null;index" json:"priority"`
	Status         AlertStatus    `gorm:"size:20;not null;default:'new';index" json:"status"`
	Reason         string         `gorm:"size:255;not null" json:"reason"`
	Payload        datatypes.JSON `json:"payload"`
	DedupeKey      *string        `gorm:"size:80;uniqueIndex" json:"dedupe_key"`
	NotifiedAt     *time.Time     `json:"notified_at"`
	AcknowledgedBy *string        `gorm:"size:36" json:"acknowledged_by"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at"`
	ResolvedBy     *string        `gorm:"size:36" json:"resolved_by"`
	ResolvedAt     *time.Time     `json:"resolved_at"`
	ResolutionNote *string        `gorm:"type:text" json:"resolution_note"`
	EscalatedBy    *string        `gorm:"size:36" json:"escalated_by"`
	EscalatedAt    *time.Time     `json:"escalated_at"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

func alertDedupeKey(reviewId string, alertType AlertType) string {
	return reviewId + ":" + string(alertType)
}

// alertTransitions lists the allowed next states. Alerts only move forward.
var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusNew:          {AlertStatusNotified, AlertStatusAcknowledged, AlertStatusEscalated},
	AlertStatusNotified:     {AlertStatusAcknowledged, AlertStatusEscalated},
	AlertStatusAcknowledged: {AlertStatusResolved, AlertStatusEscalated},
	AlertStatusEscalated:    {AlertStatusResolved},
}

func CanTransitionAlert(from, to AlertStatus) bool {
	for _, next := range alertTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func GetAlert(ctx context.Context, id string) (*Alert, error) {
	var alert Alert
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, err
	}
	return &alert, nil
}

// TransitionAlert moves an alert to a human-driven status and records who did it.
// The update is conditional on the status read, so a concurrent transition loses cleanly.
func TransitionAlert(ctx context.Context, id string, to AlertStatus, actor string, note *string) (*Alert, error) {
	alert, err := GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransitionAlert(alert.Status, to) {
		return nil, ErrInvalidAlertTransition
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": to}
	switch to {
	case AlertStatusAcknowledged:
		updates["acknowledged_by"] = actor
		updates["acknowledged_at"] = &now
	case AlertStatusResolved:
		updates["resolved_by"] = actor
		updates["resolved_at"] = &now
		if note != nil {
			updates["resolution_note"] = *note
		}
	case AlertStatusEscalated:
		updates["escalated_by"] = actor
		updates["escalated_at"] = &now
	case AlertStatusNotified:
		updates["notified_at"] = &now
	}

	res := config.GetDB().WithContext(ctx).Model(&Alert{}).
		Where("id = ? AND status = ?", id, alert.Status).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidAlertTransition
	}
	return GetAlert(ctx, id)
}

// MarkAlertNotified records automated delivery. Only a new alert moves to notified;
// any later status is left untouched, so redelivery is harmless.
func MarkAlertNotified(tx *gorm.DB, id string) error {
	now := time.Now().UTC()
	return tx.Model(&Alert{}).
		Where("id = ? AND status = ?", id, AlertStatusNew).
		Updates(map[string]interface{}{
			"status":      AlertStatusNotified,
			"notified_at": &now,
		}).Error
}
