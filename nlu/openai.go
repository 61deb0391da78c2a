package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/utils"
	"github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"
)

// ErrMalformedResponse marks a completion that did not have the requested shape.
var ErrMalformedResponse = errors.New("malformed nlu response")

const (
	promptLanguage  = `Detect the language of the text. Respond with only the ISO 639-1 language code (e.g. "en", "ur", "ar").`
	promptTranslate = "Translate the following %s text to %s. Respond with only the translated text."
	promptSentiment = `Analyze the sentiment of the customer review. Respond with JSON only:
{"sentiment": "positive" | "neutral" | "negative", "score": number from 0 (very negative) to 1 (very positive)}`
	promptKeywords = `Extract 3-5 key topics from the review text. Respond with a JSON array of short keyword strings only. Example: ["fuel quality", "service"]`
	promptCategory = "Classify the review into exactly one category: fuel_quality, service_quality, cleanliness, staff_behavior, pricing, facilities, wait_time, or other. Respond with only the category name."
	promptSpam     = `Detect if the review is spam, fake, or abusive. Respond with JSON only: {"isSpam": boolean, "confidence": number from 0 to 1}`
	promptAnalyst  = "You are a customer feedback analyst for a fuel station. Provide actionable insights."
)

var languageCode = regexp.MustCompile(`^[a-z]{2,3}$`)

// OpenAI answers every operation with one chat completion and validates its shape.
type OpenAI struct {
	client openai.Client
	model  string
}

func NewOpenAI(cfg Config) *OpenAI {
	opts := []oaioption.RequestOption{
		oaioption.WithAPIKey(cfg.APIKey),
		oaioption.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, oaioption.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, oaioption.WithHTTPClient(cfg.HTTPClient))
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	return &OpenAI{client: openai.NewClient(opts...), model: model}
}

func (o *OpenAI) complete(ctx context.Context, system, user string, temperature float64, maxTokens int64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(temperature),
	}
	if maxTokens > 0 {
		params.MaxTokens = openai.Int(maxTokens)
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func decodeJSON(content string, dest interface{}) error {
	if err := json.Unmarshal([]byte(utils.StripCodeFence(content)), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func (o *OpenAI) DetectLanguage(ctx context.Context, text string) (string, error) {
	out, err := o.complete(ctx, promptLanguage, text, 0.1, 5)
	if err != nil {
		return "", err
	}
	code := strings.ToLower(strings.Trim(out, " \"'.`\n"))
	if !languageCode.MatchString(code) {
		return "", fmt.Errorf("%w: language %q", ErrMalformedResponse, out)
	}
	return code, nil
}

func (o *OpenAI) Translate(ctx context.Context, text, from, to string) (string, error) {
	out, err := o.complete(ctx, fmt.Sprintf(promptTranslate, from, to), text, 0.3, 0)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w: empty translation", ErrMalformedResponse)
	}
	return out, nil
}

func (o *OpenAI) Sentiment(ctx context.Context, text string) (SentimentResult, error) {
	out, err := o.complete(ctx, promptSentiment, text, 0.3, 0)
	if err != nil {
		return SentimentResult{}, err
	}
	var body struct {
		Sentiment string   `json:"sentiment"`
		Score     *float64 `json:"score"`
	}
	if err := decodeJSON(out, &body); err != nil {
		return SentimentResult{}, err
	}
	label := models.Sentiment(strings.ToLower(body.Sentiment))
	if !label.IsValid() {
		return SentimentResult{}, fmt.Errorf("%w: sentiment %q", ErrMalformedResponse, body.Sentiment)
	}
	if body.Score == nil || *body.Score < 0 || *body.Score > 1 {
		return SentimentResult{}, fmt.Errorf("%w: score out of range", ErrMalformedResponse)
	}
	return SentimentResult{Label: label, Score: utils.RoundTo(*body.Score, 2)}, nil
}

func (o *OpenAI) Keywords(ctx context.Context, text string) ([]string, error) {
	out, err := o.complete(ctx, promptKeywords, text, 0.3, 0)
	if err != nil {
		return nil, err
	}
	var raw []string
	if err := decodeJSON(out, &raw); err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			keywords = append(keywords, k)
		}
	}
	keywords = utils.UniqueSlice(keywords)
	if len(keywords) < 3 || len(keywords) > 5 {
		return nil, fmt.Errorf("%w: %d keywords", ErrMalformedResponse, len(keywords))
	}
	return keywords, nil
}

func (o *OpenAI) Category(ctx context.Context, text string) (models.TopicCategory, error) {
	out, err := o.complete(ctx, promptCategory, text, 0.3, 10)
	if err != nil {
		return "", err
	}
	category := models.TopicCategory(strings.ToLower(strings.Trim(out, " \"'.`\n")))
	if !category.IsValid() {
		return "", fmt.Errorf("%w: category %q", ErrMalformedResponse, out)
	}
	return category, nil
}

func (o *OpenAI) Spam(ctx context.Context, text string) (SpamResult, error) {
	out, err := o.complete(ctx, promptSpam, text, 0.3, 0)
	if err != nil {
		return SpamResult{}, err
	}
	var body struct {
		IsSpam     *bool    `json:"isSpam"`
		Confidence *float64 `json:"confidence"`
	}
	if err := decodeJSON(out, &body); err != nil {
		return SpamResult{}, err
	}
	if body.IsSpam == nil || body.Confidence == nil || *body.Confidence < 0 || *body.Confidence > 1 {
		return SpamResult{}, fmt.Errorf("%w: spam verdict", ErrMalformedResponse)
	}
	return SpamResult{IsSpam: *body.IsSpam, Confidence: utils.RoundTo(*body.Confidence, 2)}, nil
}

func (o *OpenAI) Summarize(ctx context.Context, in SummaryInput) (string, error) {
	out, err := o.complete(ctx, promptAnalyst, summaryPrompt(in), 0.7, 200)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	return out, nil
}

func summaryPrompt(in SummaryInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Analyze these %s station review statistics:\n", in.Period)
	fmt.Fprintf(&b, "- Total reviews: %d\n", in.TotalReviews)
	fmt.Fprintf(&b, "- Average rating: %s/5\n", in.AvgRating)
	fmt.Fprintf(&b, "- Sentiment: %d positive, %d neutral, %d negative\n", in.PositiveCount, in.NeutralCount, in.NegativeCount)
	if len(in.TopKeywords) > 0 {
		fmt.Fprintf(&b, "- Top topics: %s\n", strings.Join(in.TopKeywords, ", "))
	}
	if len(in.Samples) > 0 {
		b.WriteString("Sample reviews:\n")
		for _, s := range in.Samples {
			fmt.Fprintf(&b, "- %s\n", utils.Truncate(s, 200))
		}
	}
	b.WriteString("\nProvide actionable insights for the station manager in 3-4 sentences.")
	return b.String()
}
