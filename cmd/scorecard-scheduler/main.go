// Command scorecard-scheduler enqueues one summarize task per active station
// for the period that just closed. Run it from a scheduler (cron, Cloud Scheduler job).
//
// Usage:
//
//	go run ./cmd/scorecard-scheduler -period weekly
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/sirupsen/logrus"
)

func main() {
	period := flag.String("period", string(models.ScorecardPeriodDaily), "Scorecard period: daily, weekly or monthly")
	at := flag.String("at", "", "Optional: evaluate the window as of this date (YYYY-MM-DD, UTC). Defaults to now.")
	flag.Parse()

	p := models.ScorecardPeriod(*period)
	if !p.IsValid() {
		fmt.Fprintf(os.Stderr, "invalid -period %q (want daily, weekly or monthly)\n", *period)
		os.Exit(2)
	}
	now := time.Now().UTC()
	if *at != "" {
		parsed, err := time.Parse("2006-01-02", *at)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -at: %v\n", err)
			os.Exit(2)
		}
		now = parsed
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start, end := models.ScorecardWindow(p, now)
	n, err := models.EnqueueScorecardTasks(ctx, p, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to enqueue scorecards: %v\n", err)
		os.Exit(1)
	}
	config.GetLogger().WithFields(logrus.Fields{
		"field":        "scorecard-scheduler",
		"period":       p,
		"period_start": start.Format(time.RFC3339),
		"period_end":   end.Format(time.RFC3339),
		"enqueued":     n,
	}).Info("scorecard tasks enqueued")
	fmt.Printf("enqueued %d %s scorecard task(s) for %s .. %s\n", n, p, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
