package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/nlu"
	"github.com/sirupsen/logrus"
)

const (
	scorecardReviewLimit = 500
	scorecardSampleSize  = 5
)

func (p *Processor) summarizeWorkflow(ctx context.Context, msg config.TaskMessage) error {
	var payload models.SummarizeTaskPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}
	if payload.StationId == "" || !payload.Period.IsValid() || !payload.EndDate.After(payload.StartDate) {
		return fmt.Errorf("%w: summarize task with invalid station, period or window", ErrPoisonMessage)
	}

	resource := fmt.Sprintf("scorecard:%s:%s", payload.Period, payload.StationId)
	return p.guarded(ctx, msg, "SummarizeStation", resource, func(ctx context.Context) error {
		reviews, err := models.ListStationReviews(ctx, payload.StationId, payload.StartDate, payload.EndDate, scorecardReviewLimit)
		if err != nil {
			return fmt.Errorf("list station reviews: %w", err)
		}
		if len(reviews) == 0 {
			if p.Logger != nil {
				p.Logger.WithFields(logrus.Fields{
					"field":      "SummarizeWorkflow",
					"station_id": payload.StationId,
					"period":     payload.Period,
				}).Info("no reviews in window, scorecard skipped")
			}
			return nil
		}

		stats := models.AggregateReviews(reviews)
		input := nlu.SummaryInput{
			Period:        string(payload.Period),
			TotalReviews:  stats.TotalReviews,
			AvgRating:     stats.AvgRating.StringFixed(2),
			PositiveCount: stats.PositiveCount,
			NeutralCount:  stats.NeutralCount,
			NegativeCount: stats.NegativeCount,
			TopKeywords:   stats.TopKeywords,
		}
		for i := 0; i < len(reviews) && i < scorecardSampleSize; i++ {
			input.Samples = append(input.Samples, reviews[i].Content)
		}

		insights, err := p.Analyzer.Summarize(ctx, input)
		if err != nil || insights == "" {
			p.logStepFallback("summarize", err)
			insights = nlu.SummaryUnavailable
		}

		if _, err := models.AppendScorecard(ctx, payload, stats, insights); err != nil {
			return fmt.Errorf("append scorecard: %w", err)
		}
		return nil
	})
}
