package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/utils"
	"gorm.io/gorm"
)

type Station struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"size:150;not null" json:"name"`
	StationCode string    `gorm:"size:50;unique" json:"station_code"`
	Address     string    `gorm:"size:255" json:"address"`
	ManagerId   *string   `gorm:"size:36;index" json:"manager_id"`
	Manager     *User     `gorm:"foreignKey:ManagerId" json:"manager,omitempty"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Station) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// ManagerContact is how a station's manager is reached about alerts.
type ManagerContact struct {
	UserId string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
}

const managerCacheTTL = 10 * time.Minute

/*
caches:
	StationManager:$stationId
*/

func stationManagerCacheKey(stationId string) string {
	return "StationManager:" + stationId
}

// GetStationManager resolves the manager contact for a station.
// (nil, nil) means the station has no manager with an email address.
func GetStationManager(ctx context.Context, stationId string) (*ManagerContact, error) {
	var cached ManagerContact
	if ok, err := config.GetRedisObject(ctx, stationManagerCacheKey(stationId), &cached); err == nil && ok {
		if cached.Email == "" {
			return nil, nil
		}
		return &cached, nil
	}

	contact, err := lookupStationManager(config.GetDB().WithContext(ctx), stationId)
	if err != nil {
		return nil, err
	}
	toCache := ManagerContact{}
	if contact != nil {
		toCache = *contact
	}
	_ = config.SetRedisObject(ctx, stationManagerCacheKey(stationId), toCache, managerCacheTTL)
	return contact, nil
}

func lookupStationManager(tx *gorm.DB, stationId string) (*ManagerContact, error) {
	var station Station
	err := tx.Preload("Manager").Where("id = ?", stationId).First(&station).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	m := station.Manager
	if m == nil || m.Email == nil || *m.Email == "" {
		return nil, nil
	}
	if m.IsActive != nil && !*m.IsActive {
		return nil, nil
	}
	return &ManagerContact{
		UserId: m.ID,
		Name:   m.Name,
		Email:  *m.Email,
		Phone:  m.Phone,
	}, nil
}

func GetStation(ctx context.Context, id string) (*Station, error) {
	station, err := utils.FetchModel[Station](ctx, id)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		return nil, ErrStationNotFound
	}
	return station, err
}

// ListActiveStationIds feeds the scorecard scheduler.
func ListActiveStationIds(ctx context.Context) ([]string, error) {
	var ids []string
	err := config.GetDB().WithContext(ctx).Model(&Station{}).
		Where("is_active = ?", true).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}
