package nlu

import (
	"context"
	"time"

	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/sirupsen/logrus"
)

// Fallback calls Primary with a per-call timeout and answers from Local when it fails.
// Each operation falls back on its own, so one bad answer does not discard the others.
type Fallback struct {
	Primary Analyzer
	Local   *Local
	Timeout time.Duration
	Logger  *logrus.Logger
	Metrics *observability.PipelineMetrics
}

func (f *Fallback) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.Timeout)
}

func (f *Fallback) fellBack(op string, err error) {
	f.Metrics.RecordFallback(op)
	if f.Logger != nil {
		f.Logger.WithFields(logrus.Fields{
			"field":     "NLU",
			"operation": op,
		}).Warn("remote analyzer failed, using local fallback: " + err.Error())
	}
}

func (f *Fallback) DetectLanguage(ctx context.Context, text string) (string, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.DetectLanguage(cctx, text)
	if err == nil {
		return out, nil
	}
	f.fellBack("detect_language", err)
	return f.Local.DetectLanguage(ctx, text)
}

func (f *Fallback) Translate(ctx context.Context, text, from, to string) (string, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Translate(cctx, text, from, to)
	if err == nil {
		return out, nil
	}
	f.fellBack("translate", err)
	return f.Local.Translate(ctx, text, from, to)
}

func (f *Fallback) Sentiment(ctx context.Context, text string) (SentimentResult, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Sentiment(cctx, text)
	if err == nil {
		return out, nil
	}
	f.fellBack("sentiment", err)
	return f.Local.Sentiment(ctx, text)
}

func (f *Fallback) Keywords(ctx context.Context, text string) ([]string, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Keywords(cctx, text)
	if err == nil {
		return out, nil
	}
	f.fellBack("keywords", err)
	return f.Local.Keywords(ctx, text)
}

func (f *Fallback) Category(ctx context.Context, text string) (models.TopicCategory, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Category(cctx, text)
	if err == nil {
		return out, nil
	}
	f.fellBack("category", err)
	return f.Local.Category(ctx, text)
}

func (f *Fallback) Spam(ctx context.Context, text string) (SpamResult, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Spam(cctx, text)
	if err == nil {
		return out, nil
	}
	f.fellBack("spam", err)
	return f.Local.Spam(ctx, text)
}

func (f *Fallback) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	cctx, cancel := f.callCtx(ctx)
	defer cancel()
	out, err := f.Primary.Summarize(cctx, in)
	if err == nil {
		return out, nil
	}
	f.fellBack("summarize", err)
	return f.Local.Summarize(ctx, in)
}
