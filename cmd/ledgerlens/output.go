package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/ledgerlens/service/ledger"
	"github.com/fatih/color"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

var (
	sentColor     = color.New(color.FgRed)
	receivedColor = color.New(color.FgGreen)
	noneColor     = color.New(color.Faint)
	headerColor   = color.New(color.Bold)
)

// setupColor honors --no-color and JSON output.
func setupColor(c *cli.Context) {
	if c.Bool("no-color") || wantJSON(c) {
		color.NoColor = true
	}
}

// wantJSON reports whether output should be JSON.
func wantJSON(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// outputJSON writes v as indented JSON, or the results of the --jq expression.
func outputJSON(c *cli.Context, v interface{}) error {
	w := c.App.Writer
	expr := c.String("jq")
	if expr == "" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	results, err := runJQ(expr, v)
	if err != nil {
		return err
	}
	for _, r := range results {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode jq result: %w", err)
		}
		fmt.Fprintln(w, string(b))
	}
	return nil
}

// runJQ evaluates expr against v and collects every result.
func runJQ(expr string, v interface{}) ([]interface{}, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}

	// gojq only understands plain JSON values (maps, slices, float64...).
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode jq input: %w", err)
	}
	var input interface{}
	if err := json.Unmarshal(raw, &input); err != nil {
		return nil, fmt.Errorf("failed to decode jq input: %w", err)
	}

	var results []interface{}
	iter := code.Run(input)
	for {
		r, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := r.(error); isErr {
			return nil, fmt.Errorf("jq filter %q failed: %w", expr, err)
		}
		results = append(results, r)
	}
	return results, nil
}

// formatAmount renders an amount with its currency's decimals and symbol.
func formatAmount(currencies ledger.CurrencyResolver, amount uint64, mint string) string {
	c, err := currencies.Resolve(mint)
	if err != nil {
		return fmt.Sprintf("%d %s", amount, shorten(mint))
	}
	return ledger.FormatAmount(amount, c.Decimals) + " " + c.Symbol
}

func directionLabel(d ledger.Direction) string {
	switch d {
	case ledger.DirectionSent:
		return sentColor.Sprint("sent")
	case ledger.DirectionReceived:
		return receivedColor.Sprint("received")
	default:
		return noneColor.Sprint(string(d))
	}
}

// shorten abbreviates long base58 strings for table output.
func shorten(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// printSummaries writes a summary table.
func printSummaries(w io.Writer, currencies ledger.CurrencyResolver, summaries []ledger.Summary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tDIRECTION\tAMOUNT\tCOUNTERPARTY\tMEMO\tSIGNATURE")
	for _, s := range summaries {
		memo := ""
		if s.Memo != nil {
			memo = *s.Memo
		}
		if s.Receipt != nil {
			memo = strings.TrimSpace(memo + " [receipt: " + s.Receipt.Shop + "]")
		}
		status := ""
		if !s.Status {
			status = " (failed)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Time().Format(time.RFC3339),
			directionLabel(s.Direction)+status,
			formatAmount(currencies, s.Amount, s.Currency),
			shorten(s.CounterParty),
			memo,
			shorten(s.ID),
		)
	}
	tw.Flush()
}

// printDays writes one table per day bucket, newest day first as given.
func printDays(w io.Writer, currencies ledger.CurrencyResolver, days []ledger.DayBucket) {
	for i, day := range days {
		if i > 0 {
			fmt.Fprintln(w)
		}
		headerColor.Fprintf(w, "%s", day.IsoDate)
		fmt.Fprintf(w, "  %d transactions, spent %s\n", len(day.Transactions), daySpending(currencies, day))
		printSummaries(w, currencies, day.Transactions)
	}
}

// daySpending prefers the display the server already filled in.
func daySpending(currencies ledger.CurrencyResolver, day ledger.DayBucket) string {
	display := day.TotalSpendingDisplay
	if display == "" {
		display = ledger.SpendingDisplay(currencies, day)
	}
	if display == "" {
		return "0"
	}
	return display
}

type outcomeLine struct {
	Signature string
	Detail    string
}

// printOutcomes lists signatures that produced no summary.
func printOutcomes(w io.Writer, title string, lines []outcomeLine) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", title, len(lines))
	for _, l := range lines {
		fmt.Fprintf(w, "  %s  %s\n", l.Signature, l.Detail)
	}
}
