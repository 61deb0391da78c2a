package models

import (
	"log"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/gorm"
)

// AllTables is every table this service owns, in dependency order.
func AllTables() []interface{} {
	return []interface{}{
		&User{}, &Station{},
		&Review{}, &ContactCooldown{},
		&AlertConfiguration{}, &Alert{},
		&Campaign{}, &Visit{}, &RewardClaim{},
		&StationScorecard{},
		&TaskRecord{}, &IdempotencyKey{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllTables()...)
}

func MigrateTable() {
	if err := Migrate(config.GetDB()); err != nil {
		log.Fatal(err)
	}
}
