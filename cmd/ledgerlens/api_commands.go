package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ledgerlens/client"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/urfave/cli/v2"
)

func apiCommands() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Commands that call the ledgerlens HTTP API",
		Subcommands: []*cli.Command{
			currenciesCommand(),
			summariesCommand(),
			daysCommand(),
			historyCommand(),
			startSyncCommand(),
			scheduleCommand(),
		},
	}
}

func receiptKeyFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "receipt-key",
		Usage:   "Base58 secret key used to look up merchant receipts",
		EnvVars: []string{"LEDGERLENS_RECEIPT_KEY"},
	}
}

func newAPIClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

func walletArg(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", fmt.Errorf("wallet address is required")
	}
	return c.Args().First(), nil
}

func currenciesCommand() *cli.Command {
	return &cli.Command{
		Name:  "currencies",
		Usage: "List the currencies the server can display",
		Action: func(c *cli.Context) error {
			currencies, err := newAPIClient(c).Currencies(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list currencies: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, currencies)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SYMBOL\tDECIMALS\tMINT")
			for _, cur := range currencies {
				fmt.Fprintf(w, "%s\t%d\t%s\n", cur.Symbol, cur.Decimals, cur.Mint)
			}
			return w.Flush()
		},
	}
}

func summariesCommand() *cli.Command {
	return &cli.Command{
		Name:      "summaries",
		Usage:     "Summarize a wallet's recent transactions through the API",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of signatures to summarize (server default when 0)"},
			&cli.StringFlag{Name: "before", Usage: "Only signatures older than this one"},
			&cli.StringFlag{Name: "until", Usage: "Only signatures newer than this one"},
			receiptKeyFlag(),
		},
		Action: func(c *cli.Context) error {
			setupColor(c)
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}

			resp, err := newAPIClient(c).Summaries(c.Context, wallet, client.SummariesParams{
				Limit:      c.Int("limit"),
				Before:     c.String("before"),
				Until:      c.String("until"),
				ReceiptKey: c.String("receipt-key"),
			})
			if err != nil {
				return fmt.Errorf("failed to get summaries: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, resp)
			}

			printSummaries(c.App.Writer, ledger.DefaultCurrencyTable(), resp.Summaries)
			printOutcomes(c.App.ErrWriter, "Skipped", outcomeLines(resp.Skipped))
			printOutcomes(c.App.ErrWriter, "Failed", outcomeLines(resp.Failed))
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d summaries\n", resp.Count)
			return nil
		},
	}
}

func daysCommand() *cli.Command {
	return &cli.Command{
		Name:      "days",
		Usage:     "Show a wallet's recent transactions grouped per day",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "currency", Aliases: []string{"c"}, Usage: "Currency symbol or mint to keep"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "Text to search in parties, memo, receipt and date"},
			&cli.StringFlag{Name: "order", Usage: "newest or oldest", Value: "newest"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Number of signatures to summarize (server default when 0)"},
			receiptKeyFlag(),
		},
		Action: func(c *cli.Context) error {
			setupColor(c)
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}

			resp, err := newAPIClient(c).Days(c.Context, wallet, client.DaysParams{
				Currency:   c.String("currency"),
				Query:      c.String("query"),
				Order:      c.String("order"),
				Limit:      c.Int("limit"),
				ReceiptKey: c.String("receipt-key"),
			})
			if err != nil {
				return fmt.Errorf("failed to get days: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, resp)
			}

			printDays(c.App.Writer, ledger.DefaultCurrencyTable(), resp.Days)
			printOutcomes(c.App.ErrWriter, "Failed", outcomeLines(resp.Failed))
			return nil
		},
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "Page through a wallet's stored summaries",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "currency", Aliases: []string{"c"}, Usage: "Currency symbol or mint to keep"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 100, Usage: "Page size"},
			&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
		},
		Action: func(c *cli.Context) error {
			setupColor(c)
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}

			page, err := newAPIClient(c).History(c.Context, wallet, client.HistoryParams{
				Currency: c.String("currency"),
				Limit:    c.Int("limit"),
				Offset:   c.Int("offset"),
			})
			if err != nil {
				return fmt.Errorf("failed to get history: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, page)
			}

			printSummaries(c.App.Writer, ledger.DefaultCurrencyTable(), page.Summaries)
			fmt.Fprintf(c.App.ErrWriter, "\nShowing %d-%d of %d\n", page.Offset+1, page.Offset+page.Count, page.Total)
			return nil
		},
	}
}

func startSyncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Start an on-demand sync of a wallet's history",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Signatures per page (worker default when 0)"},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}

			handle, err := newAPIClient(c).StartSync(c.Context, wallet, c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to start sync: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, handle)
			}

			fmt.Fprintf(c.App.Writer, "✓ Sync started for %s\n", wallet)
			fmt.Fprintf(c.App.Writer, "  Workflow ID: %s\n", handle.WorkflowID)
			fmt.Fprintf(c.App.Writer, "  Run ID:      %s\n", handle.RunID)
			return nil
		},
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Manage a wallet's periodic sync",
		Subcommands: []*cli.Command{
			{
				Name:      "set",
				Usage:     "Create or update the sync schedule",
				ArgsUsage: "WALLET_ADDRESS",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "interval", Aliases: []string{"i"}, Usage: "Sync interval (server default when 0)"},
				},
				Action: func(c *cli.Context) error {
					wallet, err := walletArg(c)
					if err != nil {
						return err
					}
					interval := c.Duration("interval")
					if err := newAPIClient(c).UpsertSchedule(c.Context, wallet, interval); err != nil {
						return fmt.Errorf("failed to set schedule: %w", err)
					}
					if interval == 0 {
						fmt.Fprintf(c.App.Writer, "✓ Schedule set for %s (default interval)\n", wallet)
					} else {
						fmt.Fprintf(c.App.Writer, "✓ Schedule set for %s every %s\n", wallet, interval.Round(time.Second))
					}
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Remove the sync schedule",
				ArgsUsage: "WALLET_ADDRESS",
				Action: func(c *cli.Context) error {
					wallet, err := walletArg(c)
					if err != nil {
						return err
					}
					if err := newAPIClient(c).DeleteSchedule(c.Context, wallet); err != nil {
						return fmt.Errorf("failed to delete schedule: %w", err)
					}
					fmt.Fprintf(c.App.Writer, "✓ Schedule deleted for %s\n", wallet)
					return nil
				},
			},
		},
	}
}

func outcomeLines(outcomes []client.OutcomeInfo) []outcomeLine {
	lines := make([]outcomeLine, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.Reason
		if o.Error != "" {
			detail = o.Error
		}
		lines = append(lines, outcomeLine{Signature: o.Signature, Detail: detail})
	}
	return lines
}
