package ledger

import (
	"fmt"
	"sort"
	"strings"
)

// Less orders two summaries.
type Less func(a, b *Summary) bool

// NewestFirst is the default day ordering.
func NewestFirst(a, b *Summary) bool { return a.Date > b.Date }

// OldestFirst orders summaries chronologically.
func OldestFirst(a, b *Summary) bool { return a.Date < b.Date }

// GroupOptions controls GroupByDay.
type GroupOptions struct {
	// Currency keeps only summaries in this mint. Empty keeps everything.
	Currency string
	// Query keeps only summaries whose parties, memo, receipt or date contain it.
	Query string
	// Less orders the filtered summaries. Nil means NewestFirst.
	Less Less
	// Currencies fills TotalSpendingDisplay when set.
	Currencies CurrencyResolver
}

// GroupByDay filters and sorts summaries, then buckets them per UTC day in a
// single pass. TotalSpending accumulates only sent amounts. The input slice is
// not modified.
func GroupByDay(summaries []Summary, opts GroupOptions) []DayBucket {
	less := opts.Less
	if less == nil {
		less = NewestFirst
	}
	query := strings.ToLower(strings.TrimSpace(opts.Query))

	filtered := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if opts.Currency != "" && s.Currency != opts.Currency {
			continue
		}
		if query != "" && !matches(&s, query) {
			continue
		}
		filtered = append(filtered, s)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return less(&filtered[i], &filtered[j])
	})

	var buckets []DayBucket
	index := make(map[string]int)
	for _, s := range filtered {
		day := s.IsoDate()
		i, ok := index[day]
		if !ok {
			i = len(buckets)
			index[day] = i
			buckets = append(buckets, DayBucket{IsoDate: day})
		}
		b := &buckets[i]
		b.Transactions = append(b.Transactions, s)
		if s.Direction == DirectionSent {
			b.TotalSpending += s.Amount
		}
	}
	if opts.Currencies != nil {
		for i := range buckets {
			buckets[i].TotalSpendingDisplay = SpendingDisplay(opts.Currencies, buckets[i])
		}
	}
	return buckets
}

// SpendingDisplay formats a day's sent total in its currency, e.g. "2.5 USDC".
// It is "" when nothing was sent. A day spending more than one currency, or
// one the resolver does not know, shows the raw base-unit total.
func SpendingDisplay(currencies CurrencyResolver, day DayBucket) string {
	mint := ""
	for _, s := range day.Transactions {
		if s.Direction != DirectionSent {
			continue
		}
		if mint != "" && mint != s.Currency {
			return fmt.Sprintf("%d (mixed currencies)", day.TotalSpending)
		}
		mint = s.Currency
	}
	if mint == "" {
		return ""
	}
	c, err := currencies.Resolve(mint)
	if err != nil {
		return fmt.Sprintf("%d", day.TotalSpending)
	}
	return FormatAmount(day.TotalSpending, c.Decimals) + " " + c.Symbol
}

func matches(s *Summary, query string) bool {
	fields := []string{s.From, s.To, s.CounterParty, s.IsoDate()}
	if s.Memo != nil {
		fields = append(fields, *s.Memo)
	}
	if s.Receipt != nil {
		fields = append(fields, s.Receipt.Shop)
		for _, item := range s.Receipt.Items {
			fields = append(fields, item.Name)
		}
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
