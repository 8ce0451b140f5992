package ledger

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NativeMint is the sentinel mint key for the chain's native unit (SOL).
const NativeMint = "native"

// ErrUnknownCurrency is returned when a mint is absent from the currency table.
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency is display metadata for a mint.
type Currency struct {
	Mint     string `json:"mint"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	Logo     string `json:"logo,omitempty"`
}

// CurrencyResolver maps a mint to its display metadata.
type CurrencyResolver interface {
	Resolve(mint string) (Currency, error)
}

// NativeCurrency is the entry for SOL.
var NativeCurrency = Currency{
	Mint:     NativeMint,
	Symbol:   "SOL",
	Decimals: 9,
	Logo:     "/assets/token-logos/sol-coin-grey.svg",
}

// DefaultCurrencies is the mainnet table.
var DefaultCurrencies = []Currency{
	NativeCurrency,
	{Mint: "So11111111111111111111111111111111111111112", Symbol: "WSOL", Decimals: 9, Logo: "/assets/token-logos/sol-coin-grey.svg"},
	{Mint: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", Symbol: "USDC", Decimals: 6, Logo: "/assets/token-logos/usdc-coin-grey.svg"},
	{Mint: "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB", Symbol: "USDT", Decimals: 6, Logo: "/assets/token-logos/usdt-coin-grey.svg"},
	{Mint: "USDH1SM1ojwWUga67PGrgFWUHibbjqMvuMaDkRJTgkX", Symbol: "USDH", Decimals: 6, Logo: "/assets/token-logos/usdh-coin-grey.svg"},
}

// CurrencyTable is a read-only CurrencyResolver backed by a static list.
// It is safe for concurrent use.
type CurrencyTable struct {
	byMint map[string]Currency
}

// NewCurrencyTable builds a table from entries. The native sentinel is always present.
func NewCurrencyTable(entries []Currency) *CurrencyTable {
	t := &CurrencyTable{byMint: make(map[string]Currency, len(entries)+1)}
	for _, c := range entries {
		t.byMint[c.Mint] = c
	}
	if _, ok := t.byMint[NativeMint]; !ok {
		t.byMint[NativeMint] = NativeCurrency
	}
	return t
}

// DefaultCurrencyTable returns a table with DefaultCurrencies.
func DefaultCurrencyTable() *CurrencyTable {
	return NewCurrencyTable(DefaultCurrencies)
}

// Resolve implements CurrencyResolver.
func (t *CurrencyTable) Resolve(mint string) (Currency, error) {
	c, ok := t.byMint[mint]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %s", ErrUnknownCurrency, mint)
	}
	return c, nil
}

// BySymbol finds a currency by its ticker, case-insensitively.
func (t *CurrencyTable) BySymbol(symbol string) (Currency, bool) {
	for _, c := range t.byMint {
		if strings.EqualFold(c.Symbol, symbol) {
			return c, true
		}
	}
	return Currency{}, false
}

// Currencies lists the table sorted by symbol, native first.
func (t *CurrencyTable) Currencies() []Currency {
	out := make([]Currency, 0, len(t.byMint))
	for _, c := range t.byMint {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Mint == NativeMint) != (out[j].Mint == NativeMint) {
			return out[i].Mint == NativeMint
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// FormatAmount renders a raw amount with the given number of decimals,
// trimming trailing zeros: FormatAmount(1500000, 6) == "1.5".
func FormatAmount(amount uint64, decimals uint8) string {
	s := strconv.FormatUint(amount, 10)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], strings.TrimRight(s[len(s)-d:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}
