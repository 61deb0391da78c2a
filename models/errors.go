package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/feedback_backend/utils"
	"gorm.io/gorm"
)

// Policy errors. Handlers map these to 4xx responses.
var (
	ErrRecordNotFound         = utils.ErrorRecordNotFound
	ErrRewardAlreadyClaimed   = errors.New("Reward has already been claimed")
	ErrRewardClaimNotFound    = errors.New("Reward claim not found")
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrStationNotFound        = errors.New("station not found")
	ErrInvalidAlertTransition = errors.New("invalid alert status transition")
	ErrAlertNotFound          = errors.New("alert not found")
)

// CooldownActiveError rejects a submission made inside the contact's cooldown window.
type CooldownActiveError struct {
	Remaining time.Duration
	Window    time.Duration
}

// RemainingHours is the wait rounded to one decimal hour.
func (e *CooldownActiveError) RemainingHours() float64 {
	return utils.RoundTo(e.Remaining.Hours(), 1)
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("Please wait %.1f more hours before submitting another review. You can only submit one review every %s hours.",
		e.RemainingHours(), formatHours(e.Window))
}

func formatHours(d time.Duration) string {
	h := d.Hours()
	if h == float64(int64(h)) {
		return fmt.Sprintf("%d", int64(h))
	}
	return fmt.Sprintf("%.1f", h)
}

// ValidationError carries a field-level input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// IsClientError reports whether err should be shown to the caller as a 4xx.
func IsClientError(err error) bool {
	var cooldown *CooldownActiveError
	var invalid *ValidationError
	return errors.As(err, &cooldown) ||
		errors.As(err, &invalid) ||
		errors.Is(err, ErrRewardAlreadyClaimed) ||
		errors.Is(err, ErrCampaignNotFound) ||
		errors.Is(err, ErrInvalidAlertTransition) ||
		errors.Is(err, utils.ErrInvalidPhoneNumber)
}

// IsNotFound reports whether err means the addressed record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, ErrRewardClaimNotFound) ||
		errors.Is(err, ErrStationNotFound) ||
		errors.Is(err, ErrAlertNotFound)
}

// isDuplicateKeyErr recognises unique violations from either dialect.
func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsDuplicateKeyErr is isDuplicateKeyErr for other packages.
func IsDuplicateKeyErr(err error) bool {
	return isDuplicateKeyErr(err)
}
