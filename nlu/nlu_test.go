package nlu

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionsURL = "https://nlu.test/v1/chat/completions"

func completion(content string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]interface{}{"role": "assistant", "content": content},
		}},
	})
	return string(body)
}

func jsonResponse(status int, body string) *http.Response {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "application/json")
	return resp
}

// answerBySystemPrompt routes each request to a canned answer keyed by a fragment of its system prompt.
func answerBySystemPrompt(t *testing.T, answers map[string]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		var body struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		system := body.Messages[0].Content
		for fragment, answer := range answers {
			if strings.Contains(system, fragment) {
				return jsonResponse(http.StatusOK, completion(answer)), nil
			}
		}
		return jsonResponse(http.StatusInternalServerError, `{"error":{"message":"unexpected prompt"}}`), nil
	}
}

func newMockedConfig(t *testing.T) Config {
	client := &http.Client{}
	httpmock.ActivateNonDefault(client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return Config{
		APIKey:          "test-key",
		BaseURL:         "https://nlu.test/v1/",
		Timeout:         2 * time.Second,
		DefaultLanguage: "en",
		HTTPClient:      client,
	}
}

func TestLocal_Sentiment(t *testing.T) {
	l := NewLocal("en")
	ctx := context.Background()

	res, err := l.Sentiment(ctx, "Great service, friendly staff and a clean washroom")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, res.Label)
	assert.Equal(t, 1.0, res.Score)

	res, _ = l.Sentiment(ctx, "Rude staff and a dirty, broken pump. Worst visit.")
	assert.Equal(t, models.SentimentNegative, res.Label)
	assert.Equal(t, 0.0, res.Score)

	res, _ = l.Sentiment(ctx, "Filled up the tank.")
	assert.Equal(t, models.SentimentNeutral, res.Label)
	assert.Equal(t, 0.5, res.Score)

	// 2 positive, 1 negative
	res, _ = l.Sentiment(ctx, "good and fast but one problem")
	assert.Equal(t, models.SentimentPositive, res.Label)
	assert.Equal(t, 0.67, res.Score)
}

func TestLocal_KeywordsCategoryLanguage(t *testing.T) {
	l := NewLocal("en")
	ctx := context.Background()

	kw, err := l.Keywords(ctx, "Queue was long, queue moved slowly; attendant friendly, washroom spotless, coffee excellent")
	require.NoError(t, err)
	assert.Equal(t, []string{"queue", "moved", "slowly", "attendant", "friendly"}, kw)

	cat, _ := l.Category(ctx, "The diesel seemed adulterated")
	assert.Equal(t, models.TopicFuelQuality, cat)
	cat, _ = l.Category(ctx, "nothing to say")
	assert.Equal(t, models.TopicOther, cat)

	lang, _ := l.DetectLanguage(ctx, "سروس بہت اچھی تھی")
	assert.Equal(t, "ur", lang)
	lang, _ = l.DetectLanguage(ctx, "service was fine")
	assert.Equal(t, "en", lang)

	spam, _ := l.Spam(ctx, "anything")
	assert.False(t, spam.IsSpam)

	summary, _ := l.Summarize(ctx, SummaryInput{})
	assert.Equal(t, SummaryUnavailable, summary)
}

func TestNew_LocalWithoutKey(t *testing.T) {
	_, ok := New(Config{DefaultLanguage: "en"}).(*Local)
	assert.True(t, ok)
	_, ok = New(Config{APIKey: "k"}).(*Fallback)
	assert.True(t, ok)
}

func TestOpenAI_ParsesValidAnswers(t *testing.T) {
	cfg := newMockedConfig(t)
	httpmock.RegisterResponder("POST", completionsURL, answerBySystemPrompt(t, map[string]string{
		"Analyze the sentiment":   "```json\n{\"sentiment\": \"negative\", \"score\": 0.123}\n```",
		"Extract 3-5 key topics":  `["Fuel Quality", "wait time", "fuel quality", "Pump Hygiene"]`,
		"Classify the review":     "staff_behavior",
		"Detect if the review":    `{"isSpam": true, "confidence": 0.9, "reasons": ["repeated text"]}`,
		"Detect the language":     "UR",
		"Translate the following": "The attendant was rude",
		"feedback analyst":        "Reduce queue times at peak hours.",
	}))
	o := NewOpenAI(cfg)
	ctx := context.Background()

	s, err := o.Sentiment(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, SentimentResult{Label: models.SentimentNegative, Score: 0.12}, s)

	kw, err := o.Keywords(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"fuel quality", "wait time", "pump hygiene"}, kw)

	c, err := o.Category(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, models.TopicStaffBehavior, c)

	sp, err := o.Spam(ctx, "x")
	require.NoError(t, err)
	assert.True(t, sp.IsSpam)

	lang, err := o.DetectLanguage(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "ur", lang)

	tr, err := o.Translate(ctx, "x", "ur", "en")
	require.NoError(t, err)
	assert.Equal(t, "The attendant was rude", tr)

	sum, err := o.Summarize(ctx, SummaryInput{Period: "daily", TotalReviews: 3, AvgRating: "3.67"})
	require.NoError(t, err)
	assert.Equal(t, "Reduce queue times at peak hours.", sum)
}

func TestOpenAI_RejectsMalformedShapes(t *testing.T) {
	cfg := newMockedConfig(t)
	httpmock.RegisterResponder("POST", completionsURL, answerBySystemPrompt(t, map[string]string{
		"Analyze the sentiment":  `{"sentiment": "ecstatic", "score": 0.9}`,
		"Extract 3-5 key topics": `not json`,
		"Classify the review":    "gas prices",
		"Detect if the review":   `{"isSpam": true, "confidence": 7}`,
	}))
	o := NewOpenAI(cfg)
	ctx := context.Background()

	_, err := o.Sentiment(ctx, "x")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = o.Keywords(ctx, "x")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = o.Category(ctx, "x")
	assert.ErrorIs(t, err, ErrMalformedResponse)
	_, err = o.Spam(ctx, "x")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestOpenAI_KeywordCountOutOfRange(t *testing.T) {
	for _, answer := range []string{
		`["queue", "Queue", "price"]`,
		`["a", "b", "c", "d", "e", "f"]`,
	} {
		t.Run(answer, func(t *testing.T) {
			cfg := newMockedConfig(t)
			httpmock.RegisterResponder("POST", completionsURL, answerBySystemPrompt(t, map[string]string{
				"Extract 3-5 key topics": answer,
			}))
			_, err := NewOpenAI(cfg).Keywords(context.Background(), "x")
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestFallback_PerOperation(t *testing.T) {
	cfg := newMockedConfig(t)
	metrics, err := observability.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	cfg.Metrics = metrics

	// sentiment answers well, everything else fails upstream
	httpmock.RegisterResponder("POST", completionsURL, answerBySystemPrompt(t, map[string]string{
		"Analyze the sentiment": `{"sentiment": "positive", "score": 0.8}`,
		"Classify the review":   "not-a-category",
	}))
	a := New(cfg)
	ctx := context.Background()
	text := "Friendly attendant but the queue was slow"

	s, err := a.Sentiment(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, models.SentimentPositive, s.Label)

	c, err := a.Category(ctx, text)
	require.NoError(t, err)
	assert.Equal(t, models.TopicServiceQuality, c, "local heuristics answer when the remote shape is wrong")

	kw, err := a.Keywords(ctx, text)
	require.NoError(t, err)
	assert.NotEmpty(t, kw)

	sum, err := a.Summarize(ctx, SummaryInput{})
	require.NoError(t, err)
	assert.Equal(t, SummaryUnavailable, sum)

	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.NLUFallbacksTotal.WithLabelValues("sentiment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NLUFallbacksTotal.WithLabelValues("category")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.NLUFallbacksTotal.WithLabelValues("keywords")))
}
