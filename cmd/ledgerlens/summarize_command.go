package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/brojonat/ledgerlens/service/history"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/brojonat/ledgerlens/service/pipeline"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

// summarizeCommand runs the whole pipeline in-process against an RPC node.
func summarizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "summarize",
		Usage:     "Summarize a wallet's transactions directly against a Solana RPC node",
		ArgsUsage: "WALLET_ADDRESS",
		Description: `Fetches the wallet's recent signatures, summarizes each transaction and
prints the result. Records are cached in memory, or in Redis with --redis-url.

Examples:
  ledgerlens summarize 5FHwkrdxntdK24hgQU8qgBjn35Y1zwhz1GZwCkP2UJnM --limit 20
  ledgerlens summarize WALLET --days --currency USDC
  ledgerlens summarize WALLET --signature SIG1 --signature SIG2 --json`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URL (comma-separated for several; one is picked at random)",
				EnvVars: []string{"SOLANA_RPC_URL"},
				Value:   "https://api.mainnet-beta.solana.com",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the record cache (memory when empty)",
				EnvVars: []string{"REDIS_URL"},
			},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of signatures to summarize"},
			&cli.StringFlag{Name: "before", Usage: "Only signatures older than this one"},
			&cli.StringFlag{Name: "until", Usage: "Only signatures newer than this one"},
			&cli.StringSliceFlag{Name: "signature", Aliases: []string{"s"}, Usage: "Summarize these signatures instead of listing (repeatable)"},
			&cli.BoolFlag{Name: "days", Aliases: []string{"d"}, Usage: "Group the summaries per day"},
			&cli.StringFlag{Name: "currency", Aliases: []string{"c"}, Usage: "With --days: currency symbol or mint to keep"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "With --days: text to search"},
			&cli.StringFlag{Name: "order", Value: "newest", Usage: "With --days: newest or oldest"},
			&cli.IntFlag{Name: "concurrency", Value: 8, Usage: "Parallel record fetches"},
			&cli.IntFlag{Name: "max-attempts", Value: 3, Usage: "RPC attempts per call"},
			&cli.Float64Flag{Name: "rate-limit", Usage: "RPC requests per second (0 = unlimited)"},
			&cli.StringFlag{Name: "receipts-url", EnvVars: []string{"RECEIPTS_URL"}, Usage: "Merchant messages API; enables receipts with --receipt-key"},
			receiptKeyFlag(),
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Log pipeline activity to stderr"},
		},
		Action: func(c *cli.Context) error {
			setupColor(c)
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			if err := history.ValidateWallet(wallet); err != nil {
				return err
			}

			level := slog.LevelError
			if c.Bool("verbose") {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			opts, err := localReceiptOptions(c)
			if err != nil {
				return err
			}

			p, err := pipeline.New(c.Context, pipeline.Settings{
				RPCURLs:          splitURLs(c.String("rpc-url")),
				RPCMaxAttempts:   c.Int("max-attempts"),
				RPCRateLimit:     c.Float64("rate-limit"),
				RedisURL:         c.String("redis-url"),
				FetchConcurrency: c.Int("concurrency"),
				FetchTimeout:     30 * time.Second,
				ReceiptsEnabled:  opts.EnableReceipts,
				ReceiptsURL:      c.String("receipts-url"),
				ReceiptTimeout:   ledger.DefaultReceiptTimeout,
			}, nil, logger)
			if err != nil {
				return err
			}
			defer p.Close()

			var batch *history.BatchResult
			if sigs := c.StringSlice("signature"); len(sigs) > 0 {
				batch, err = p.History.SummarizeSignatures(c.Context, wallet, sigs, opts)
			} else {
				batch, err = p.History.SummarizeWallet(c.Context, wallet, c.Int("limit"), c.String("before"), c.String("until"), opts)
			}
			if err != nil {
				return fmt.Errorf("failed to summarize wallet: %w", err)
			}

			if c.Bool("days") {
				return outputDays(c, p.Currencies, batch)
			}
			return outputBatch(c, p.Currencies, batch)
		},
	}
}

// localReceiptOptions enables receipts when both the URL and key are given.
func localReceiptOptions(c *cli.Context) (ledger.Options, error) {
	rawKey := c.String("receipt-key")
	if rawKey == "" || c.String("receipts-url") == "" {
		return ledger.Options{}, nil
	}
	key, err := solanago.PrivateKeyFromBase58(rawKey)
	if err != nil {
		return ledger.Options{}, fmt.Errorf("invalid --receipt-key: %w", err)
	}
	return ledger.Options{EnableReceipts: true, SecretKey: key}, nil
}

func outputBatch(c *cli.Context, currencies *ledger.CurrencyTable, batch *history.BatchResult) error {
	if wantJSON(c) {
		return outputJSON(c, map[string]interface{}{
			"wallet":    batch.Wallet,
			"summaries": batch.Summaries(),
			"skipped":   batch.Skipped(),
			"failed":    batch.Failures(),
		})
	}

	summaries := batch.Summaries()
	printSummaries(c.App.Writer, currencies, summaries)
	printOutcomes(c.App.ErrWriter, "Skipped", ledgerOutcomeLines(batch.Skipped()))
	printOutcomes(c.App.ErrWriter, "Failed", ledgerOutcomeLines(batch.Failures()))
	fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d summaries, %d skipped, %d failed\n",
		len(summaries), batch.Count(ledger.OutcomeSkipped), batch.Count(ledger.OutcomeFailed))
	return nil
}

func outputDays(c *cli.Context, currencies *ledger.CurrencyTable, batch *history.BatchResult) error {
	mint := ""
	if cur := c.String("currency"); cur != "" {
		if found, ok := currencies.BySymbol(cur); ok {
			mint = found.Mint
		} else {
			mint = cur
		}
	}

	var less ledger.Less
	switch c.String("order") {
	case "", "newest":
		less = ledger.NewestFirst
	case "oldest":
		less = ledger.OldestFirst
	default:
		return fmt.Errorf("invalid --order %q: must be newest or oldest", c.String("order"))
	}

	days := ledger.GroupByDay(batch.Summaries(), ledger.GroupOptions{
		Currency:   mint,
		Query:      c.String("query"),
		Less:       less,
		Currencies: currencies,
	})
	if wantJSON(c) {
		return outputJSON(c, map[string]interface{}{
			"wallet": batch.Wallet,
			"days":   days,
			"failed": batch.Failures(),
		})
	}

	printDays(c.App.Writer, currencies, days)
	printOutcomes(c.App.ErrWriter, "Failed", ledgerOutcomeLines(batch.Failures()))
	return nil
}

func ledgerOutcomeLines(outcomes []ledger.Outcome) []outcomeLine {
	lines := make([]outcomeLine, 0, len(outcomes))
	for _, o := range outcomes {
		detail := string(o.Reason)
		if o.Err != nil {
			detail = o.Err.Error()
		}
		lines = append(lines, outcomeLine{Signature: o.Signature, Detail: detail})
	}
	return lines
}

func splitURLs(value string) []string {
	var urls []string
	for _, u := range strings.Split(value, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
