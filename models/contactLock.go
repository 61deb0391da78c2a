package models

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContactCooldown is the per-contact row that serialises submissions.
// The row is locked FOR UPDATE for the duration of the submit transaction.
type ContactCooldown struct {
	PhoneNumber  string     `gorm:"primaryKey;size:20" json:"phone_number"`
	LastReviewAt *time.Time `json:"last_review_at"`
	LastReviewId *string    `gorm:"size:36" json:"last_review_id"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// lockContactRow inserts the contact's cooldown row if missing, then locks it.
func lockContactRow(tx *gorm.DB, phone string) (*ContactCooldown, error) {
	row := ContactCooldown{PhoneNumber: phone}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return nil, err
	}
	var locked ContactCooldown
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("phone_number = ?", phone).
		First(&locked).Error; err != nil {
		return nil, err
	}
	return &locked, nil
}

func touchContactRow(tx *gorm.DB, phone string, reviewId string, at time.Time) error {
	return tx.Model(&ContactCooldown{}).
		Where("phone_number = ?", phone).
		Updates(map[string]interface{}{
			"last_review_at": at,
			"last_review_id": reviewId,
		}).Error
}

func contactLockKey(phone string) string {
	return "lock:contact:" + phone
}

// obtainContactLock takes the Redis lock in front of the row lock.
// It returns a no-op release when Redis is not configured or unreachable.
func obtainContactLock(ctx context.Context, logger *logrus.Logger, phone string) func() {
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}
	lock, err := locker.Obtain(ctx, contactLockKey(phone), 10*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 30),
	})
	if err != nil {
		if !errors.Is(err, redislock.ErrNotObtained) {
			config.LogError(logger, "ContactLock", "obtainContactLock", "redis unavailable", phone, err)
		}
		return func() {}
	}
	return func() {
		_ = lock.Release(context.Background())
	}
}
