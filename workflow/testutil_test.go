package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/mmdatafocus/feedback_backend/nlu"
	"github.com/mmdatafocus/feedback_backend/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var errUpstream = errors.New("upstream unavailable")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.Migrate(db))

	prev := config.GetDB()
	config.SetDB(db)
	config.SetRedis(nil)
	t.Cleanup(func() {
		config.SetDB(prev)
		_ = sqlDB.Close()
	})
	return db
}

func newTestMetrics(t *testing.T) *observability.PipelineMetrics {
	t.Helper()
	m, err := observability.NewPipelineMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func newTestProcessor(t *testing.T, db *gorm.DB, analyzer nlu.Analyzer, notifier *fakeNotifier) *Processor {
	t.Helper()
	p := &Processor{
		DB:              db,
		Analyzer:        analyzer,
		Metrics:         newTestMetrics(t),
		DefaultLanguage: "en",
	}
	if notifier != nil {
		p.Notifier = notifier
	}
	return p
}

const managerPhone = "+923001112223"

func seedStation(t *testing.T, db *gorm.DB, managerEmail string) *models.Station {
	t.Helper()
	station := models.Station{Name: "Canal Road", StationCode: "CR-" + uuid.NewString()}
	if managerEmail != "" {
		email := managerEmail
		manager := models.User{Name: "Station Manager", Email: &email, Phone: managerPhone, Role: models.UserRoleManager}
		require.NoError(t, db.Create(&manager).Error)
		station.ManagerId = &manager.ID
	}
	require.NoError(t, db.Create(&station).Error)
	return &station
}

func seedReview(t *testing.T, db *gorm.DB, stationId string, rating int, content string, at time.Time) *models.Review {
	t.Helper()
	review := models.Review{
		StationId:   stationId,
		PhoneNumber: "+92300" + uuid.NewString()[:7],
		Rating:      rating,
		Content:     content,
		Status:      models.ReviewStatusNew,
		CreatedAt:   at.UTC(),
	}
	require.NoError(t, db.Create(&review).Error)
	return &review
}

func enqueue(t *testing.T, db *gorm.DB, channel string, payload interface{}) *models.TaskRecord {
	t.Helper()
	rec, err := models.EnqueueTask(context.Background(), db, channel, payload)
	require.NoError(t, err)
	return rec
}

func reloadTask(t *testing.T, db *gorm.DB, id int) models.TaskRecord {
	t.Helper()
	var rec models.TaskRecord
	require.NoError(t, db.Where("id = ?", id).First(&rec).Error)
	return rec
}

func tasksOn(t *testing.T, db *gorm.DB, channel string) []models.TaskRecord {
	t.Helper()
	var recs []models.TaskRecord
	require.NoError(t, db.Where("channel = ?", channel).Order("id ASC").Find(&recs).Error)
	return recs
}

func boolPtr(v bool) *bool { return &v }

// stubAnalyzer answers every operation with fixed values, or fails them all.
type stubAnalyzer struct {
	fail      bool
	language  string
	sentiment nlu.SentimentResult
	keywords  []string
	category  models.TopicCategory
	spam      nlu.SpamResult
	summary   string

	mu         sync.Mutex
	translated []string
}

func (s *stubAnalyzer) DetectLanguage(ctx context.Context, text string) (string, error) {
	if s.fail {
		return "", errUpstream
	}
	return s.language, nil
}

func (s *stubAnalyzer) Translate(ctx context.Context, text, from, to string) (string, error) {
	if s.fail {
		return "", errUpstream
	}
	s.mu.Lock()
	s.translated = append(s.translated, from+">"+to)
	s.mu.Unlock()
	return "translated: " + text, nil
}

func (s *stubAnalyzer) Sentiment(ctx context.Context, text string) (nlu.SentimentResult, error) {
	if s.fail {
		return nlu.SentimentResult{}, errUpstream
	}
	return s.sentiment, nil
}

func (s *stubAnalyzer) Keywords(ctx context.Context, text string) ([]string, error) {
	if s.fail {
		return nil, errUpstream
	}
	return s.keywords, nil
}

func (s *stubAnalyzer) Category(ctx context.Context, text string) (models.TopicCategory, error) {
	if s.fail {
		return "", errUpstream
	}
	return s.category, nil
}

func (s *stubAnalyzer) Spam(ctx context.Context, text string) (nlu.SpamResult, error) {
	if s.fail {
		return nlu.SpamResult{}, errUpstream
	}
	return s.spam, nil
}

func (s *stubAnalyzer) Summarize(ctx context.Context, in nlu.SummaryInput) (string, error) {
	if s.fail {
		return "", errUpstream
	}
	return s.summary, nil
}

type sentMessage struct {
	To      string
	Subject string
	Body    string
}

type fakeNotifier struct {
	fail bool

	mu     sync.Mutex
	emails []sentMessage
	sms    []sentMessage
}

func (n *fakeNotifier) SendEmail(ctx context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errUpstream
	}
	n.emails = append(n.emails, sentMessage{To: to, Subject: subject, Body: body})
	return nil
}

func (n *fakeNotifier) SendSMS(ctx context.Context, to, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errUpstream
	}
	n.sms = append(n.sms, sentMessage{To: to, Body: body})
	return nil
}

type fakeDelivery struct {
	acked, nacked int
}

func (d *fakeDelivery) Ack()  { d.acked++ }
func (d *fakeDelivery) Nack() { d.nacked++ }
