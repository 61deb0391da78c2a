package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/nlu"
	"github.com/mmdatafocus/feedback_backend/notification"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// ErrPoisonMessage marks a task that can never succeed. It is acked, not retried.
var ErrPoisonMessage = errors.New("poison task")

const systemActor = "system"

var tracer trace.Tracer = otel.Tracer("github.com/mmdatafocus/feedback_backend/workflow")

// Processor runs the enrich, notify and summarize workflows for delivered tasks.
type Processor struct {
	DB              *gorm.DB
	Analyzer        nlu.Analyzer
	Notifier        notification.Notifier
	Logger          *logrus.Logger
	Metrics         *observability.PipelineMetrics
	DefaultLanguage string

	local *nlu.Local
}

func NewProcessor(db *gorm.DB, analyzer nlu.Analyzer, notifier notification.Notifier, logger *logrus.Logger, metrics *observability.PipelineMetrics) *Processor {
	lang := config.DefaultLanguage()
	return &Processor{
		DB:              db,
		Analyzer:        analyzer,
		Notifier:        notifier,
		Logger:          logger,
		Metrics:         metrics,
		DefaultLanguage: lang,
		local:           nlu.NewLocal(lang),
	}
}

func (p *Processor) db() *gorm.DB {
	if p.DB != nil {
		return p.DB
	}
	return config.GetDB()
}

func (p *Processor) fallback() *nlu.Local {
	if p.local == nil {
		p.local = nlu.NewLocal(p.DefaultLanguage)
	}
	return p.local
}

// ProcessTask handles one delivery. A nil return means ack: the task succeeded, was already
// handled, was poison, or just went DEAD. A non-nil return means nack and redeliver.
func (p *Processor) ProcessTask(ctx context.Context, msg config.TaskMessage) error {
	start := time.Now()
	ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	ctx = utils.SetTaskIdInContext(ctx, msg.ID)
	ctx = utils.SetChannelInContext(ctx, msg.Channel)
	ctx = utils.SetActorIdInContext(ctx, systemActor)

	ctx, span := tracer.Start(ctx, "task."+msg.Channel, trace.WithAttributes(
		attribute.Int("task.id", msg.ID),
		attribute.String("task.channel", msg.Channel),
		attribute.String("task.correlation_id", msg.CorrelationId),
	))
	defer span.End()

	db := p.db()
	switch taskProcessingStatus(ctx, db, msg.ID) {
	case models.OutboxProcessStatusSucceeded, models.OutboxProcessStatusDead:
		p.Metrics.RecordTask(msg.Channel, "skipped", time.Since(start))
		return nil
	}
	markTaskProcessing(ctx, db, msg.ID)

	var err error
	switch msg.Channel {
	case config.ChannelEnrich:
		err = p.enrichWorkflow(ctx, msg)
	case config.ChannelNotify:
		err = p.notifyWorkflow(ctx, msg)
	case config.ChannelSummarize:
		err = p.summarizeWorkflow(ctx, msg)
	default:
		err = fmt.Errorf("%w: unknown channel %q", ErrPoisonMessage, msg.Channel)
	}

	switch {
	case err == nil:
		markTaskProcessSuccess(ctx, db, p.Logger, msg)
		p.Metrics.RecordTask(msg.Channel, "succeeded", time.Since(start))
		return nil
	case errors.Is(err, ErrPoisonMessage):
		span.SetStatus(codes.Error, err.Error())
		markTaskPoisoned(ctx, db, p.Logger, msg, err)
		p.Metrics.RecordTask(msg.Channel, "poison", time.Since(start))
		return nil
	case errors.Is(err, ErrIdempotencyInProgress):
		// a duplicate delivery is being handled elsewhere
		p.Metrics.RecordTask(msg.Channel, "skipped", time.Since(start))
		return err
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if markTaskProcessFailure(ctx, db, p.Logger, msg, err) {
		p.Metrics.RecordTask(msg.Channel, "dead", time.Since(start))
		return nil
	}
	p.Metrics.RecordTask(msg.Channel, "failed", time.Since(start))
	return err
}

// guarded runs fn under the resource lock and the handler's idempotency key.
func (p *Processor) guarded(ctx context.Context, msg config.TaskMessage, handlerName, resource string, fn func(ctx context.Context) error) error {
	db := p.db()
	return withTaskLock(ctx, db, resource, func() error {
		if msg.ID <= 0 {
			return fn(ctx)
		}
		messageId := strconv.Itoa(msg.ID)
		idem := db.WithContext(ctx)
		skip, err := BeginIdempotency(idem, msg.Channel, handlerName, messageId)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}
		if err := fn(ctx); err != nil {
			_ = MarkIdempotencyFailed(idem, msg.Channel, handlerName, messageId, err)
			return err
		}
		return MarkIdempotencySucceeded(idem, msg.Channel, handlerName, messageId)
	})
}

func decodePayload(msg config.TaskMessage, dest interface{}) error {
	if len(msg.Payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrPoisonMessage)
	}
	if err := json.Unmarshal(msg.Payload, dest); err != nil {
		return fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	return nil
}
