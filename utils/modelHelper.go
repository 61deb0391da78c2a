package utils

import (
	"context"
	"errors"

	"github.com/mmdatafocus/feedback_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model by uuid primary key
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id string, associations ...string) (*T, error) {
	return FetchModelTx[T](config.GetDB().WithContext(ctx), id, associations...)
}

// FetchModelTx is FetchModel bound to an open transaction.
func FetchModelTx[T any](tx *gorm.DB, id string, associations ...string) (*T, error) {
	if id == "" {
		return nil, ErrorRecordNotFound
	}
	q := tx
	for _, field := range associations {
		q = q.Preload(field)
	}
	var result T
	err := q.Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrorRecordNotFound
		}
		return nil, err
	}
	return &result, nil
}
