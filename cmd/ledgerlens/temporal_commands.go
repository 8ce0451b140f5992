package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ledgerlens/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List wallet sync schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			iter, err := tc.SDKClient().ScheduleClient().List(c.Context, client.ScheduleListOptions{
				PageSize: 100,
			})
			if err != nil {
				return fmt.Errorf("failed to list schedules: %w", err)
			}

			var ids []string
			for iter.HasNext() {
				schedule, err := iter.Next()
				if err != nil {
					return fmt.Errorf("failed to iterate schedules: %w", err)
				}
				if strings.HasPrefix(schedule.ID, temporal.ScheduleIDPrefix) {
					ids = append(ids, schedule.ID)
				}
			}

			if wantJSON(c) {
				return outputJSON(c, ids)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID\tWALLET")
			for _, id := range ids {
				fmt.Fprintf(w, "%s\t%s\n", id, strings.TrimPrefix(id, temporal.ScheduleIDPrefix))
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d schedules\n", len(ids))
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a wallet's sync schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			id := temporal.ScheduleIDPrefix + wallet
			desc, err := tc.SDKClient().ScheduleClient().GetHandle(c.Context, id).Describe(c.Context)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			w := c.App.Writer
			fmt.Fprintf(w, "Schedule ID:    %s\n", id)
			fmt.Fprintf(w, "Paused:         %v\n", desc.Schedule.State.Paused)
			if note := desc.Schedule.State.Note; note != "" {
				fmt.Fprintf(w, "Note:           %s\n", note)
			}

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Fprintf(w, "\nWorkflow:\n")
				fmt.Fprintf(w, "  Workflow:     %v\n", wa.Workflow)
				fmt.Fprintf(w, "  Task Queue:   %s\n", wa.TaskQueue)
			}

			if spec := desc.Schedule.Spec; spec != nil {
				for i, interval := range spec.Intervals {
					fmt.Fprintf(w, "  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Fprintf(w, "\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Fprintf(w, "Last Action:    %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			if len(desc.Info.NextActionTimes) > 0 {
				fmt.Fprintf(w, "Next Action:    %s\n", desc.Info.NextActionTimes[0].Format(time.RFC3339))
			}
			return nil
		},
	}
}

func upsertScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "upsert-schedule",
		Usage:     "Create or update a wallet's sync schedule directly in Temporal",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Value: 5 * time.Minute, Usage: "Sync interval"},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			interval := c.Duration("interval")
			if interval < time.Second {
				return fmt.Errorf("interval must be at least 1s")
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.UpsertWalletSchedule(c.Context, wallet, interval); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule for %s syncs every %v\n", wallet, interval)
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a wallet's sync schedule",
		Aliases:   []string{"rm"},
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			if err := tc.DeleteWalletSchedule(c.Context, wallet); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "✓ Schedule for %s deleted\n", wallet)
			return nil
		},
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Run SyncWalletWorkflow for a wallet now",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Signatures per page (worker default when 0)"},
			&cli.BoolFlag{Name: "wait", Aliases: []string{"w"}, Usage: "Wait for the sync to finish and print its result"},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			tc, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer tc.Close()

			handle, err := tc.StartSync(c.Context, wallet, c.Int("limit"))
			if err != nil {
				return err
			}
			if !c.Bool("wait") {
				if wantJSON(c) {
					return outputJSON(c, handle)
				}
				fmt.Fprintf(c.App.Writer, "✓ Started %s (run %s)\n", handle.WorkflowID, handle.RunID)
				return nil
			}

			result, err := tc.GetSyncResult(c.Context, handle)
			if err != nil {
				return err
			}
			if wantJSON(c) {
				return outputJSON(c, result)
			}
			printSyncResult(c.App.Writer, result)
			return nil
		},
	}
}

func printSyncResult(w io.Writer, r *temporal.SyncWalletResult) {
	fmt.Fprintf(w, "Wallet:       %s\n", r.Wallet)
	fmt.Fprintf(w, "Synced at:    %s\n", r.SyncTime.Format(time.RFC3339))
	fmt.Fprintf(w, "Signatures:   %d\n", r.SignatureCount)
	fmt.Fprintf(w, "Summarized:   %d\n", r.Summarized)
	fmt.Fprintf(w, "Skipped:      %d\n", r.Skipped)
	fmt.Fprintf(w, "Failed:       %d\n", len(r.Failed))
	fmt.Fprintf(w, "Published:    %d\n", r.Published)
	fmt.Fprintf(w, "Cursor:       %s -> %s\n", orNone(r.PreviousCursor), orNone(r.Cursor))
	if r.WindowFull {
		fmt.Fprintf(w, "Warning:      page limit reached, older signatures deferred\n")
	}
	if b := r.Backfill; b != nil {
		fmt.Fprintf(w, "Backfill:     before %s until %s\n", b.Before, orNone(b.Until))
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// getTemporalClient connects using the global temporal flags.
func getTemporalClient(c *cli.Context) (*temporal.Client, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}
