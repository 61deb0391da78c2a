// Command feedbackctl is the operator CLI for the feedback backend.
//
// Usage:
//
//	feedbackctl migrate
//	feedbackctl scorecards enqueue --period weekly
//	feedbackctl tasks status [--channel notify]
//	feedbackctl tasks replay --id 42
//	feedbackctl tasks replay --all-dead [--channel enrich]
//	feedbackctl claims show <claim-id>
//	feedbackctl claims list --phone +923001234567
//	feedbackctl claims redeem <claim-id> [--notes "handed over at till 2"]
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mmdatafocus/feedback_backend/config"
	"github.com/mmdatafocus/feedback_backend/models"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "feedbackctl",
		Short:        "Operate the station feedback backend",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if config.GetDB() == nil {
				config.ConnectDatabaseWithRetry()
			}
			if config.GetDB() == nil {
				return errors.New("database not initialized (config.GetDB returned nil)")
			}
			return nil
		},
	}
	root.AddCommand(newMigrateCmd(), newScorecardsCmd(), newTasksCmd(), newClaimsCmd())
	return root
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := models.Migrate(config.GetDB()); err != nil {
				return fmt.Errorf("migrating: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newScorecardsCmd() *cobra.Command {
	scorecards := &cobra.Command{
		Use:   "scorecards",
		Short: "Station scorecard jobs",
	}

	var period, at string
	enqueue := &cobra.Command{
		Use:   "enqueue",
		Short: "Enqueue a summarize task for every active station",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.ScorecardPeriod(period)
			if !p.IsValid() {
				return fmt.Errorf("invalid --period %q (want daily, weekly or monthly)", period)
			}
			now := time.Now().UTC()
			if at != "" {
				parsed, err := time.Parse("2006-01-02", at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				now = parsed
			}
			n, err := models.EnqueueScorecardTasks(cmd.Context(), p, now)
			if err != nil {
				return err
			}
			start, end := models.ScorecardWindow(p, now)
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d %s scorecard task(s) for %s .. %s\n",
				n, p, start.Format("2006-01-02"), end.Format("2006-01-02"))
			return nil
		},
	}
	enqueue.Flags().StringVar(&period, "period", string(models.ScorecardPeriodDaily), "daily, weekly or monthly")
	enqueue.Flags().StringVar(&at, "at", "", "Evaluate the window as of this date (YYYY-MM-DD, UTC)")

	scorecards.AddCommand(enqueue)
	return scorecards
}

func newTasksCmd() *cobra.Command {
	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect and replay background tasks",
	}

	var statusChannel string
	status := &cobra.Command{
		Use:   "status",
		Short: "Count tasks by channel and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if statusChannel != "" && !config.IsKnownChannel(statusChannel) {
				return fmt.Errorf("unknown channel %q", statusChannel)
			}
			rows, err := models.CountTasksByStatus(cmd.Context(), statusChannel)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %-11s %-11s %s\n", "CHANNEL", "PUBLISH", "PROCESSING", "COUNT")
			for _, r := range rows {
				fmt.Fprintf(w, "%-10s %-11s %-11s %d\n", r.Channel, r.PublishStatus, r.ProcessingStatus, r.Count)
			}
			return nil
		},
	}
	status.Flags().StringVar(&statusChannel, "channel", "", "Only this channel")

	var (
		id            int
		allDead       bool
		replayChannel string
	)
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Put a task, or every dead task, back in the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if replayChannel != "" && !config.IsKnownChannel(replayChannel) {
				return fmt.Errorf("unknown channel %q", replayChannel)
			}
			switch {
			case id > 0 && allDead:
				return errors.New("use either --id or --all-dead")
			case id > 0:
				rec, err := models.ReplayTask(cmd.Context(), id)
				if models.IsNotFound(err) {
					return fmt.Errorf("task %d not found or already succeeded", id)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "task %d requeued (%s/%s)\n", rec.ID, rec.PublishStatus, rec.ProcessingStatus)
			case allDead:
				n, err := models.ReplayDeadTasks(cmd.Context(), replayChannel)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "requeued %d dead task(s)\n", n)
			default:
				return errors.New("--id or --all-dead is required")
			}
			return nil
		},
	}
	replay.Flags().IntVar(&id, "id", 0, "Task record id")
	replay.Flags().BoolVar(&allDead, "all-dead", false, "Replay every DEAD task")
	replay.Flags().StringVar(&replayChannel, "channel", "", "Limit --all-dead to one channel")

	tasks.AddCommand(status, replay)
	return tasks
}

func newClaimsCmd() *cobra.Command {
	claims := &cobra.Command{
		Use:   "claims",
		Short: "Look up and redeem reward claims",
	}

	show := &cobra.Command{
		Use:   "show <claim-id>",
		Short: "Print a reward claim",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claim, err := models.GetRewardClaim(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claim)
		},
	}

	var phone string
	list := &cobra.Command{
		Use:   "list",
		Short: "List the reward claims of a phone number",
		RunE: func(cmd *cobra.Command, args []string) error {
			if phone == "" {
				return errors.New("--phone is required")
			}
			found, err := models.ListRewardClaimsByPhone(cmd.Context(), phone)
			if err != nil {
				return err
			}
			if found == nil {
				found = []models.RewardClaim{}
			}
			return printJSON(cmd.OutOrStdout(), found)
		},
	}
	list.Flags().StringVar(&phone, "phone", "", "Customer phone number")

	var notes string
	redeem := &cobra.Command{
		Use:   "redeem <claim-id>",
		Short: "Mark a reward as handed over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n *string
			if cmd.Flags().Changed("notes") {
				n = &notes
			}
			claim, err := models.ClaimReward(cmd.Context(), args[0], n)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), claim)
		},
	}
	redeem.Flags().StringVar(&notes, "notes", "", "Free-form redemption notes")

	claims.AddCommand(show, list, redeem)
	return claims
}
