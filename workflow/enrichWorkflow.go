package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/sirupsen/logrus"
)

func (p *Processor) enrichWorkflow(ctx context.Context, msg config.TaskMessage) error {
	var payload models.EnrichTaskPayload
	if err := decodePayload(msg, &payload); err != nil {
		return err
	}
	if payload.ReviewId == "" {
		return fmt.Errorf("%w: enrich task without review id", ErrPoisonMessage)
	}

	return p.guarded(ctx, msg, "EnrichReview", "review:"+payload.ReviewId, func(ctx context.Context) error {
		review, err := models.GetReview(ctx, payload.ReviewId)
		if err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				p.logReviewGone(payload.ReviewId)
				return nil
			}
			return err
		}

		text := payload.Text
		if strings.TrimSpace(text) == "" {
			text = review.Content
		}
		language := payload.Language
		if language == "" {
			language = review.Language
		}

		result := p.Enrich(ctx, text, language)
		if err := models.ApplyEnrichment(ctx, review.ID, result); err != nil {
			if errors.Is(err, models.ErrRecordNotFound) {
				p.logReviewGone(payload.ReviewId)
				return nil
			}
			return fmt.Errorf("apply enrichment: %w", err)
		}

		if _, err := models.RunAlertRules(ctx, review.ID); err != nil {
			return fmt.Errorf("alert rules after enrichment: %w", err)
		}
		return nil
	})
}

// Enrich tags a review text. Every step that fails is answered by the local analyzer,
// so the result always carries a sentiment and a category.
func (p *Processor) Enrich(ctx context.Context, text, language string) models.EnrichmentResult {
	local := p.fallback()
	lang := strings.ToLower(strings.TrimSpace(language))
	if lang == "" || lang == "auto" {
		detected, err := p.Analyzer.DetectLanguage(ctx, text)
		if err != nil || detected == "" {
			p.logStepFallback("detect_language", err)
			detected = p.DefaultLanguage
		}
		lang = detected
	}

	analysed := text
	if lang != p.DefaultLanguage {
		translated, err := p.Analyzer.Translate(ctx, text, lang, p.DefaultLanguage)
		if err != nil || translated == "" {
			p.logStepFallback("translate", err)
		} else {
			analysed = translated
		}
	}

	sentiment, err := p.Analyzer.Sentiment(ctx, analysed)
	if err != nil {
		p.logStepFallback("sentiment", err)
		sentiment, _ = local.Sentiment(ctx, analysed)
	}
	keywords, err := p.Analyzer.Keywords(ctx, analysed)
	if err != nil {
		p.logStepFallback("keywords", err)
		keywords, _ = local.Keywords(ctx, analysed)
	}
	category, err := p.Analyzer.Category(ctx, analysed)
	if err != nil {
		p.logStepFallback("category", err)
		category, _ = local.Category(ctx, analysed)
	}
	spam, err := p.Analyzer.Spam(ctx, analysed)
	if err != nil {
		p.logStepFallback("spam", err)
		spam, _ = local.Spam(ctx, analysed)
	}

	return models.EnrichmentResult{
		Language:       lang,
		Sentiment:      sentiment.Label,
		SentimentScore: sentiment.Score,
		Keywords:       keywords,
		Category:       category,
		IsSpam:         spam.IsSpam,
		SpamConfidence: spam.Confidence,
	}
}

func (p *Processor) logStepFallback(step string, err error) {
	p.Metrics.RecordFallback(step)
	if p.Logger == nil {
		return
	}
	msg := "empty answer"
	if err != nil {
		msg = err.Error()
	}
	p.Logger.WithFields(logrus.Fields{
		"field": "TaskProcessor",
		"step":  step,
	}).Warn("nlu step fell back to local analysis: " + msg)
}

func (p *Processor) logReviewGone(reviewId string) {
	if p.Logger == nil {
		return
	}
	p.Logger.WithFields(logrus.Fields{
		"field":     "EnrichWorkflow",
		"review_id": reviewId,
	}).Info("review no longer exists, enrich task acked")
}
