package utils

import (
	"context"

	"github.com/mmdatafocus/feedback_backend/appctx"
	"github.com/sirupsen/logrus"
)

// Alias the shared context key type so existing code keeps working.
type contextKey = appctx.ContextKey

var (
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyActorId       = appctx.ContextKeyActorId
	ContextKeyStationId     = appctx.ContextKeyStationId
	ContextKeyTaskId        = appctx.ContextKeyTaskId
	ContextKeyChannel       = appctx.ContextKeyChannel
)

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

// GetActorIdFromContext returns the id of the person acting on an alert.
// Pipeline workers run as "system".
func GetActorIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorId)
}

func SetActorIdInContext(ctx context.Context, actorId string) context.Context {
	return appctx.Set(ctx, ContextKeyActorId, actorId)
}

func GetStationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyStationId)
}

func SetStationIdInContext(ctx context.Context, stationId string) context.Context {
	return appctx.Set(ctx, ContextKeyStationId, stationId)
}

func GetTaskIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyTaskId)
}

func SetTaskIdInContext(ctx context.Context, taskId int) context.Context {
	return appctx.Set(ctx, ContextKeyTaskId, taskId)
}

func GetChannelFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyChannel)
}

func SetChannelInContext(ctx context.Context, channel string) context.Context {
	return appctx.Set(ctx, ContextKeyChannel, channel)
}

// LogFields collects the identifiers carried by ctx for a structured log line.
func LogFields(ctx context.Context) logrus.Fields {
	fields := logrus.Fields{}
	if v, ok := GetCorrelationIdFromContext(ctx); ok && v != "" {
		fields["correlation_id"] = v
	}
	if v, ok := GetTaskIdFromContext(ctx); ok {
		fields["record_id"] = v
	}
	if v, ok := GetChannelFromContext(ctx); ok {
		fields["channel"] = v
	}
	if v, ok := GetStationIdFromContext(ctx); ok {
		fields["station_id"] = v
	}
	if v, ok := GetActorIdFromContext(ctx); ok {
		fields["actor_id"] = v
	}
	return fields
}
