package main

import (
	"context"
	"fmt"
	"os"

	"github.com/brojonat/ledgerlens/service/db"
	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the database schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema is up to date")
			return nil
		},
	}
}

func listSummariesCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-summaries",
		Usage:     "List a wallet's stored summaries, newest first",
		Aliases:   []string{"ls"},
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "currency", Aliases: []string{"c"}, Usage: "Currency symbol or mint to keep"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 50, Usage: "Page size"},
			&cli.IntFlag{Name: "offset", Usage: "Rows to skip"},
		},
		Action: func(c *cli.Context) error {
			setupColor(c)
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			currencies := ledger.DefaultCurrencyTable()
			mint := c.String("currency")
			if found, ok := currencies.BySymbol(mint); ok {
				mint = found.Mint
			}

			summaries, err := store.ListSummaries(c.Context, db.ListSummariesParams{
				Wallet:   wallet,
				Currency: mint,
				Limit:    int32(c.Int("limit")),
				Offset:   int32(c.Int("offset")),
			})
			if err != nil {
				return fmt.Errorf("failed to list summaries: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, summaries)
			}

			printSummaries(c.App.Writer, currencies, summaries)
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d summaries\n", len(summaries))
			return nil
		},
	}
}

func countSummariesCommand() *cli.Command {
	return &cli.Command{
		Name:      "count",
		Usage:     "Count a wallet's stored summaries",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			n, err := store.CountSummaries(c.Context, wallet)
			if err != nil {
				return fmt.Errorf("failed to count summaries: %w", err)
			}
			if wantJSON(c) {
				return outputJSON(c, map[string]interface{}{"wallet": wallet, "count": n})
			}
			fmt.Fprintln(c.App.Writer, n)
			return nil
		},
	}
}

func cursorCommand() *cli.Command {
	return &cli.Command{
		Name:      "cursor",
		Usage:     "Show or move a wallet's sync cursor",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "set", Usage: "Move the cursor to this signature"},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if sig := c.String("set"); sig != "" {
				if err := store.SetCursor(c.Context, wallet, sig); err != nil {
					return fmt.Errorf("failed to set cursor: %w", err)
				}
				fmt.Fprintf(c.App.Writer, "✓ Cursor for %s set to %s\n", wallet, sig)
				return nil
			}

			cursor, err := store.GetCursor(c.Context, wallet)
			if err != nil {
				return fmt.Errorf("failed to get cursor: %w", err)
			}
			before, until, err := store.GetBackfill(c.Context, wallet)
			if err != nil {
				return fmt.Errorf("failed to get backfill: %w", err)
			}
			if wantJSON(c) {
				out := map[string]string{"wallet": wallet, "cursor": cursor}
				if before != "" {
					out["backfill_before"] = before
					out["backfill_until"] = until
				}
				return outputJSON(c, out)
			}
			if cursor == "" {
				fmt.Fprintln(c.App.Writer, "(never synced)")
				return nil
			}
			fmt.Fprintln(c.App.Writer, cursor)
			if before != "" {
				fmt.Fprintf(c.App.Writer, "backfill pending: before %s until %s\n", before, orNone(until))
			}
			return nil
		},
	}
}

func resetWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "reset",
		Usage:     "Delete a wallet's stored summaries and sync cursor",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Confirm the deletion"},
		},
		Action: func(c *cli.Context) error {
			wallet, err := walletArg(c)
			if err != nil {
				return err
			}
			if !c.Bool("yes") {
				return fmt.Errorf("refusing to delete history for %s without --yes", wallet)
			}
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.DeleteWallet(c.Context, wallet); err != nil {
				return fmt.Errorf("failed to reset wallet: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ History for %s deleted; the next sync starts from scratch\n", wallet)
			return nil
		},
	}
}

// getStore connects to the database named by --database-url.
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.Connect(ctx, dbURL)
	if err != nil {
		return nil, nil, err
	}
	return db.NewStore(pool, nil), pool.Close, nil
}
