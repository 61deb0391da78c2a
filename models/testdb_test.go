package models

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// setupTestDB installs a fresh in-memory database as the global handle.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database shared and serialises writers
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, Migrate(db))

	prev := config.GetDB()
	config.SetDB(db)
	config.SetRedis(nil)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	return db
}

func seedStation(t *testing.T, db *gorm.DB, managerEmail string) *Station {
	t.Helper()
	station := Station{Name: "Main Boulevard", StationCode: "MB-" + uuid.NewString()}
	if managerEmail != "" {
		email := managerEmail
		manager := User{Name: "Station Manager", Email: &email, Phone: "+923001112223", Role: UserRoleManager}
		require.NoError(t, db.Create(&manager).Error)
		station.ManagerId = &manager.ID
	}
	require.NoError(t, db.Create(&station).Error)
	return &station
}

func seedReview(t *testing.T, db *gorm.DB, stationId, phone string, rating int, at time.Time) *Review {
	t.Helper()
	review := Review{
		StationId:   stationId,
		PhoneNumber: phone,
		Rating:      rating,
		Content:     "review",
		Status:      ReviewStatusNew,
		CreatedAt:   at.UTC(),
	}
	require.NoError(t, db.Create(&review).Error)
	return &review
}

func countTasks(t *testing.T, db *gorm.DB, channel string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&TaskRecord{}).Where("channel = ?", channel).Count(&n).Error)
	return n
}

func intPtr(v int) *int       { return &v }
func boolPtr(v bool) *bool    { return &v }
func strPtr(v string) *string { return &v }
