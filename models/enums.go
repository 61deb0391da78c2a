package models

type ReviewStatus string

const (
	ReviewStatusNew       ReviewStatus = "new"
	ReviewStatusInReview  ReviewStatus = "in_review"
	ReviewStatusResponded ReviewStatus = "responded"
	ReviewStatusResolved  ReviewStatus = "resolved"
	ReviewStatusArchived  ReviewStatus = "archived"
)

// ReviewCategory is what the customer picked on the form.
type ReviewCategory string

const (
	ReviewCategoryWashroom    ReviewCategory = "washroom"
	ReviewCategoryStaff       ReviewCategory = "staff"
	ReviewCategoryCleanliness ReviewCategory = "cleanliness"
	ReviewCategoryFuelQuality ReviewCategory = "fuel_quality"
	ReviewCategoryStore       ReviewCategory = "store"
	ReviewCategoryCarWash     ReviewCategory = "car_wash"
	ReviewCategorySafety      ReviewCategory = "safety"
	ReviewCategoryParking     ReviewCategory = "parking"
	ReviewCategoryOverall     ReviewCategory = "overall"
)

func (c ReviewCategory) IsValid() bool {
	switch c {
	case ReviewCategoryWashroom, ReviewCategoryStaff, ReviewCategoryCleanliness, ReviewCategoryFuelQuality,
		ReviewCategoryStore, ReviewCategoryCarWash, ReviewCategorySafety, ReviewCategoryParking, ReviewCategoryOverall:
		return true
	}
	return false
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

func (s Sentiment) IsValid() bool {
	return s == SentimentPositive || s == SentimentNeutral || s == SentimentNegative
}

// TopicCategory is the closed set the enrichment step files a review under.
type TopicCategory string

const (
	TopicFuelQuality    TopicCategory = "fuel_quality"
	TopicServiceQuality TopicCategory = "service_quality"
	TopicCleanliness    TopicCategory = "cleanliness"
	TopicStaffBehavior  TopicCategory = "staff_behavior"
	TopicPricing        TopicCategory = "pricing"
	TopicFacilities     TopicCategory = "facilities"
	TopicWaitTime       TopicCategory = "wait_time"
	TopicOther          TopicCategory = "other"
)

var TopicCategories = []TopicCategory{
	TopicFuelQuality, TopicServiceQuality, TopicCleanliness, TopicStaffBehavior,
	TopicPricing, TopicFacilities, TopicWaitTime, TopicOther,
}

func (c TopicCategory) IsValid() bool {
	for _, v := range TopicCategories {
		if v == c {
			return true
		}
	}
	return false
}

type AlertType string

const (
	AlertTypeNegativeRating    AlertType = "negative_rating"
	AlertTypeKeywordTrigger    AlertType = "keyword_trigger"
	AlertTypeSpike             AlertType = "spike"
	AlertTypeNegativeSentiment AlertType = "negative_sentiment"
	AlertTypeSpamDetected      AlertType = "spam_detected"
)

type AlertPriority string

const (
	AlertPriorityCritical AlertPriority = "critical"
	AlertPriorityHigh     AlertPriority = "high"
	AlertPriorityMedium   AlertPriority = "medium"
	AlertPriorityLow      AlertPriority = "low"
)

type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "new"
	AlertStatusNotified     AlertStatus = "notified"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
	AlertStatusEscalated    AlertStatus = "escalated"
)

type RewardType string

const (
	RewardTypeDiscount10Percent RewardType = "discount_10_percent"
	RewardTypeFreeTea           RewardType = "free_tea"
	RewardTypeFreeCoffee        RewardType = "free_coffee"
)

type CampaignStatus string

const (
	CampaignStatusActive   CampaignStatus = "active"
	CampaignStatusInactive CampaignStatus = "inactive"
	CampaignStatusExpired  CampaignStatus = "expired"
)

type ScorecardPeriod string

const (
	ScorecardPeriodDaily   ScorecardPeriod = "daily"
	ScorecardPeriodWeekly  ScorecardPeriod = "weekly"
	ScorecardPeriodMonthly ScorecardPeriod = "monthly"
)

func (p ScorecardPeriod) IsValid() bool {
	return p == ScorecardPeriodDaily || p == ScorecardPeriodWeekly || p == ScorecardPeriodMonthly
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleManager UserRole = "manager"
)
