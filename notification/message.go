package notification

import (
	"fmt"
	"strings"

	"github.com/mmdatafocus/feedback_backend/utils"
)

// AlertMessage is what a manager is told about one alert.
type AlertMessage struct {
	StationName   string
	Priority      string
	Reason        string
	ReviewRating  int
	ReviewContent string
	CustomerName  string
}

func (m AlertMessage) EmailSubject() string {
	subject := fmt.Sprintf("[%s] Alert: %s", strings.ToUpper(m.Priority), m.Reason)
	if m.StationName != "" {
		subject += " - " + m.StationName
	}
	return subject
}

func (m AlertMessage) EmailBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Severity: %s\n", strings.ToUpper(m.Priority))
	fmt.Fprintf(&b, "%s\n", m.Reason)
	if m.ReviewRating > 0 {
		fmt.Fprintf(&b, "\nRating: %d/5\n", m.ReviewRating)
	}
	if m.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", m.CustomerName)
	}
	if m.ReviewContent != "" {
		fmt.Fprintf(&b, "Review: %s\n", utils.Truncate(m.ReviewContent, 500))
	}
	return b.String()
}

func (m AlertMessage) SMSText() string {
	text := "CRITICAL ALERT: " + m.Reason
	if m.StationName != "" {
		text += " (" + m.StationName + ")"
	}
	return utils.Truncate(text, 160)
}
