package nlu

import (
	"context"
	"strings"
	"unicode"

	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/utils"
)

var positiveWords = []string{
	"excellent", "great", "good", "amazing", "wonderful", "fantastic", "love", "happy",
	"satisfied", "clean", "friendly", "fast", "professional", "efficient", "best",
	"perfect", "awesome", "pleasant", "delighted",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "horrible", "hate", "dirty", "rude", "slow", "worst",
	"disappointed", "poor", "unpleasant", "unhappy", "issue", "problem", "waste",
	"disgusting", "useless", "pathetic", "broken",
}

// categoryHints maps a topic to words that suggest it. Checked in TopicCategories order.
var categoryHints = map[models.TopicCategory][]string{
	models.TopicFuelQuality:    {"fuel", "petrol", "diesel", "octane", "mileage", "adulterat"},
	models.TopicServiceQuality: {"service", "served", "attendant"},
	models.TopicCleanliness:    {"clean", "dirty", "washroom", "toilet", "smell", "hygien"},
	models.TopicStaffBehavior:  {"staff", "rude", "polite", "friendly", "behav", "manager"},
	models.TopicPricing:        {"price", "expensive", "cheap", "overcharg", "cost", "rate"},
	models.TopicFacilities:     {"shop", "store", "parking", "air", "tyre", "tire", "atm", "mart", "car wash"},
	models.TopicWaitTime:       {"wait", "queue", "line", "slow", "took", "minutes", "delay"},
}

// Local is the offline analyzer. Every method succeeds.
type Local struct {
	DefaultLanguage string
}

func NewLocal(defaultLanguage string) *Local {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &Local{DefaultLanguage: defaultLanguage}
}

// DetectLanguage recognises Arabic-script text as Urdu; anything else is the default language.
func (l *Local) DetectLanguage(ctx context.Context, text string) (string, error) {
	letters, arabic := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(unicode.Arabic, r) {
			arabic++
		}
	}
	if letters > 0 && arabic*2 > letters {
		return "ur", nil
	}
	return l.DefaultLanguage, nil
}

func (l *Local) Translate(ctx context.Context, text, from, to string) (string, error) {
	return text, nil
}

// Sentiment scores pos/(pos+neg) over substring hits of the word lists; no hits is 0.5.
func (l *Local) Sentiment(ctx context.Context, text string) (SentimentResult, error) {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	score := 0.5
	if pos+neg > 0 {
		score = float64(pos) / float64(pos+neg)
	}
	label := models.SentimentNeutral
	if score > 0.6 {
		label = models.SentimentPositive
	} else if score < 0.4 {
		label = models.SentimentNegative
	}
	return SentimentResult{Label: label, Score: utils.RoundTo(score, 2)}, nil
}

// Keywords are the first five distinct words longer than four letters.
func (l *Local) Keywords(ctx context.Context, text string) ([]string, error) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	var long []string
	for _, w := range words {
		if len([]rune(w)) > 4 {
			long = append(long, w)
		}
	}
	long = utils.UniqueSlice(long)
	if len(long) > 5 {
		long = long[:5]
	}
	return long, nil
}

func (l *Local) Category(ctx context.Context, text string) (models.TopicCategory, error) {
	lower := strings.ToLower(text)
	for _, c := range models.TopicCategories {
		for _, hint := range categoryHints[c] {
			if strings.Contains(lower, hint) {
				return c, nil
			}
		}
	}
	return models.TopicOther, nil
}

func (l *Local) Spam(ctx context.Context, text string) (SpamResult, error) {
	return SpamResult{IsSpam: false, Confidence: 0}, nil
}

func (l *Local) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	return SummaryUnavailable, nil
}
