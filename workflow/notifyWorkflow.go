package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/notification"
	"github.com/sirupsen/logrus"
)

func (p *Processor) notifyWorkflow(ctx context.Context, msg config.TaskMessage) error {
	var payload models.NotifyTaskPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}
	if payload.AlertId == "" {
		return fmt.Errorf("%w: notify task without alert id", ErrPoisonMessage)
	}

	return p.guarded(ctx, msg, "NotifyAlert", "alert:"+payload.AlertId, func(ctx context.Context) error {
		alert, err := models.GetAlert(ctx, payload.AlertId)
		if err != nil {
			if errors.Is(err, models.ErrAlertNotFound) {
				return nil
			}
			return err
		}
		if alert.Status != models.AlertStatusNew {
			// delivered already, or a person picked it up first
			return nil
		}

		cfg, err := models.GetAlertConfiguration(ctx, alert.StationId)
		if err != nil {
			return err
		}
		emailEnabled, smsEnabled := true, true
		if cfg != nil {
			emailEnabled, smsEnabled = cfg.EmailNotificationsEnabled, cfg.SmsNotificationsEnabled
		}

		message := notification.AlertMessage{
			Priority: string(alert.Priority),
			Reason:   alert.Reason,
		}
		if station, err := models.GetStation(ctx, alert.StationId); err == nil {
			message.StationName = station.Name
		}
		if payload.ReviewId != "" {
			if review, err := models.GetReview(ctx, payload.ReviewId); err == nil {
				message.ReviewRating = review.Rating
				message.ReviewContent = review.Content
				message.CustomerName = review.CustomerName
			}
		}

		if emailEnabled && payload.ManagerContact != "" && p.Notifier != nil {
			if err := p.Notifier.SendEmail(ctx, payload.ManagerContact, message.EmailSubject(), message.EmailBody()); err != nil {
				p.logDeliveryFailure(notification.ChannelEmail, alert.ID, err)
			}
		}
		if alert.Priority == models.AlertPriorityCritical && smsEnabled && payload.ManagerPhone != "" && p.Notifier != nil {
			if err := p.Notifier.SendSMS(ctx, payload.ManagerPhone, message.SMSText()); err != nil {
				p.logDeliveryFailure(notification.ChannelSMS, alert.ID, err)
			}
		}

		return models.MarkAlertNotified(p.db().WithContext(ctx), alert.ID)
	})
}

func (p *Processor) logDeliveryFailure(channel, alertId string, err error) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithFields(logrus.Fields{
		"field":    "NotifyWorkflow",
		"channel":  channel,
		"alert_id": alertId,
	}).Error("alert notification not delivered: " + err.Error())
}
