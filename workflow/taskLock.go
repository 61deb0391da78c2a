package workflow

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// withTaskLock serialises work on one resource (a review, an alert, a station) across
// worker instances using MySQL advisory locks. GET_LOCK is connection-scoped, so the lock
// is taken and released on one pinned connection while fn runs. Other dialects run fn directly.
func withTaskLock(ctx context.Context, db *gorm.DB, resource string, fn func() error) error {
	if db == nil || db.Dialector == nil || db.Dialector.Name() != "mysql" {
		return fn()
	}
	return db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := acquireTaskLock(conn, resource); err != nil {
			return err
		}
		defer releaseTaskLock(conn, resource)
		return fn()
	})
}

func acquireTaskLock(conn *gorm.DB, resource string) error {
	lockName := fmt.Sprintf("task:%s", resource)
	var ok int
	if err := conn.Raw("SELECT GET_LOCK(?, 30)", lockName).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire task lock for %s", resource)
	}
	return nil
}

func releaseTaskLock(conn *gorm.DB, resource string) {
	lockName := fmt.Sprintf("task:%s", resource)
	var _ok int
	_ = conn.Raw("SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok).Error
}
