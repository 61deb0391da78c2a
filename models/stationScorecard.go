package models

import (
	"context"
	"sort"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StationScorecard is an append-only summary of one station's review window.
type StationScorecard struct {
	ID            string                      `gorm:"primaryKey;size:36" json:"id"`
	StationId     string                      `gorm:"size:36;not null;index:idx_scorecard_station_period,priority:1" json:"station_id"`
	Period        ScorecardPeriod             `gorm:"size:10;not null;index:idx_scorecard_station_period,priority:2" json:"period"`
	PeriodStart   time.Time                   `gorm:"not null;index:idx_scorecard_station_period,priority:3" json:"period_start"`
	PeriodEnd     time.Time                   `gorm:"not null" json:"period_end"`
	TotalReviews  int                         `gorm:"not null" json:"total_reviews"`
	AvgRating     decimal.Decimal             `gorm:"type:decimal(4,2);not null" json:"avg_rating"`
	PositiveCount int                         `gorm:"not null;default:0" json:"positive_count"`
	NeutralCount  int                         `gorm:"not null;default:0" json:"neutral_count"`
	NegativeCount int                         `gorm:"not null;default:0" json:"negative_count"`
	TopKeywords   datatypes.JSONSlice[string] `json:"top_keywords"`
	AiInsights    string                      `gorm:"type:text" json:"ai_insights"`
	GeneratedAt   time.Time                   `gorm:"not null" json:"generated_at"`
}

func (s *StationScorecard) BeforeCreate(tx *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

const topKeywordLimit = 10

// ScorecardStats is the deterministic part of a scorecard.
type ScorecardStats struct {
	TotalReviews  int
	AvgRating     decimal.Decimal
	PositiveCount int
	NeutralCount  int
	NegativeCount int
	TopKeywords   []string
}

// AggregateReviews counts sentiments, averages ratings (2 dp) and ranks keywords by frequency.
// Ties in keyword frequency keep the order of first appearance.
func AggregateReviews(reviews []Review) ScorecardStats {
	stats := ScorecardStats{TotalReviews: len(reviews), AvgRating: decimal.Zero}
	if len(reviews) == 0 {
		return stats
	}

	sum := 0
	freq := map[string]int{}
	var order []string
	for _, r := range reviews {
		sum += r.Rating
		if r.Sentiment != nil {
			switch *r.Sentiment {
			case SentimentPositive:
				stats.PositiveCount++
			case SentimentNegative:
				stats.NegativeCount++
			default:
				stats.NeutralCount++
			}
		}
		for _, k := range r.Keywords {
			if _, seen := freq[k]; !seen {
				order = append(order, k)
			}
			freq[k]++
		}
	}
	stats.AvgRating = decimal.NewFromInt(int64(sum)).
		Div(decimal.NewFromInt(int64(len(reviews)))).
		Round(2)

	sort.SliceStable(order, func(i, j int) bool {
		return freq[order[i]] > freq[order[j]]
	})
	if len(order) > topKeywordLimit {
		order = order[:topKeywordLimit]
	}
	stats.TopKeywords = order
	return stats
}

func AppendScorecard(ctx context.Context, payload SummarizeTaskPayload, stats ScorecardStats, insights string) (*StationScorecard, error) {
	keywords := datatypes.JSONSlice[string](stats.TopKeywords)
	if keywords == nil {
		keywords = datatypes.JSONSlice[string]{}
	}
	card := StationScorecard{
		StationId:     payload.StationId,
		Period:        payload.Period,
		PeriodStart:   payload.StartDate.UTC(),
		PeriodEnd:     payload.EndDate.UTC(),
		TotalReviews:  stats.TotalReviews,
		AvgRating:     stats.AvgRating,
		PositiveCount: stats.PositiveCount,
		NeutralCount:  stats.NeutralCount,
		NegativeCount: stats.NegativeCount,
		TopKeywords:   keywords,
		AiInsights:    insights,
		GeneratedAt:   time.Now().UTC(),
	}
	if err := config.GetDB().WithContext(ctx).Create(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// ScorecardWindow returns the [start, end) window of the period that ended at or before now.
func ScorecardWindow(period ScorecardPeriod, now time.Time) (time.Time, time.Time) {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch period {
	case ScorecardPeriodWeekly:
		return today.AddDate(0, 0, -7), today
	case ScorecardPeriodMonthly:
		firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return firstOfMonth.AddDate(0, -1, 0), firstOfMonth
	default:
		return today.AddDate(0, 0, -1), today
	}
}

// EnqueueScorecardTasks writes one summarize task per active station for the given period.
func EnqueueScorecardTasks(ctx context.Context, period ScorecardPeriod, now time.Time) (int, error) {
	if !period.IsValid() {
		return 0, &ValidationError{Field: "period", Message: "must be daily, weekly or monthly"}
	}
	stationIds, err := ListActiveStationIds(ctx)
	if err != nil {
		return 0, err
	}
	start, end := ScorecardWindow(period, now)
	err = config.GetDB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range stationIds {
			if _, err := EnqueueTask(ctx, tx, config.ChannelSummarize, SummarizeTaskPayload{
				StationId: id,
				Period:    period,
				StartDate: start,
				EndDate:   end,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stationIds), nil
}
