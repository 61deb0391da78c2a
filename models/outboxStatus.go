package models

import (
	"context"
	"sort"

	"github.com/mmdatafocus/feedback_backend/config"
)

// TaskStatusCount is one row of the ops view over the task queue.
type TaskStatusCount struct {
	Channel          string `json:"channel"`
	PublishStatus    string `json:"publish_status"`
	ProcessingStatus string `json:"processing_status"`
	Count            int64  `json:"count"`
}

// CountTasksByStatus groups task records by channel and both status columns.
// An empty channel covers every channel.
func CountTasksByStatus(ctx context.Context, channel string) ([]TaskStatusCount, error) {
	q := config.GetDB().WithContext(ctx).Model(&TaskRecord{}).
		Select("channel, publish_status, processing_status, COUNT(*) AS count").
		Group("channel, publish_status, processing_status")
	if channel != "" {
		q = q.Where("channel = ?", channel)
	}
	var rows []TaskStatusCount
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Channel != rows[j].Channel {
			return rows[i].Channel < rows[j].Channel
		}
		if rows[i].PublishStatus != rows[j].PublishStatus {
			return rows[i].PublishStatus < rows[j].PublishStatus
		}
		return rows[i].ProcessingStatus < rows[j].ProcessingStatus
	})
	return rows, nil
}
