// Package nlu tags review text: language, translation, sentiment, keywords, topic, spam,
// and free-text summaries for scorecards.
package nlu

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/sirupsen/logrus"
)

// SummaryUnavailable is returned when no summary can be produced.
const SummaryUnavailable = "Unable to generate summary at this time."

type SentimentResult struct {
	Label models.Sentiment
	Score float64 // 0 very negative, 1 very positive
}

type SpamResult struct {
	IsSpam     bool
	Confidence float64
}

// SummaryInput is the aggregate a scorecard summary is written from.
type SummaryInput struct {
	Period        string
	TotalReviews  int
	AvgRating     string
	PositiveCount int
	NeutralCount  int
	NegativeCount int
	TopKeywords   []string
	Samples       []string
}

type Analyzer interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
	Translate(ctx context.Context, text, from, to string) (string, error)
	Sentiment(ctx context.Context, text string) (SentimentResult, error)
	Keywords(ctx context.Context, text string) ([]string, error)
	Category(ctx context.Context, text string) (models.TopicCategory, error)
	Spam(ctx context.Context, text string) (SpamResult, error)
	Summarize(ctx context.Context, in SummaryInput) (string, error)
}

type Config struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	DefaultLanguage string
	HTTPClient      *http.Client
	Logger          *logrus.Logger
	Metrics         *observability.PipelineMetrics
}

// ConfigFromEnv reads OPENAI_API_KEY, OPENAI_BASE_URL, OPENAI_MODEL and the NLU settings.
func ConfigFromEnv() Config {
	return Config{
		APIKey:          strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:         strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		Model:           strings.TrimSpace(os.Getenv("OPENAI_MODEL")),
		Timeout:         config.NLUTimeout(),
		DefaultLanguage: config.DefaultLanguage(),
		Logger:          config.GetLogger(),
	}
}

// New returns the remote analyzer wrapped with per-call local fallback when an API key is
// configured, and the local analyzer otherwise.
func New(cfg Config) Analyzer {
	local := NewLocal(cfg.DefaultLanguage)
	if cfg.APIKey == "" {
		return local
	}
	return &Fallback{
		Primary: NewOpenAI(cfg),
		Local:   local,
		Timeout: cfg.Timeout,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,
	}
}
