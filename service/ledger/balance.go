package ledger

import (
	"strconv"
)

// BalanceDiff is the wallet's net change for a token-class transfer.
type BalanceDiff struct {
	Direction    Direction
	Amount       uint64
	Mint         string
	CounterParty string
}

// ResolveBalances computes walletDifference = post(wallet) - pre(wallet) for the
// mint of the first post-balance entry the wallet does not own. Only two-party
// transfers are supported.
func ResolveBalances(rec *RawRecord, wallet string) (BalanceDiff, error) {
	owners := make(map[string]struct{}, 2)
	var other *TokenBalance
	for i := range rec.PostTokenBalances {
		b := &rec.PostTokenBalances[i]
		if b.Owner == "" {
			continue
		}
		owners[b.Owner] = struct{}{}
		if other == nil && b.Owner != wallet {
			other = b
		}
	}
	if len(owners) > 2 {
		return BalanceDiff{}, skipf(SkipAmbiguousBalances, "%d owners in post balances", len(owners))
	}
	if other == nil {
		return BalanceDiff{}, skipf(SkipSelfTransfer, "wallet owns every post balance")
	}

	pre, err := sumOwned(rec.PreTokenBalances, wallet, other.Mint)
	if err != nil {
		return BalanceDiff{}, err
	}
	post, err := sumOwned(rec.PostTokenBalances, wallet, other.Mint)
	if err != nil {
		return BalanceDiff{}, err
	}

	diff := BalanceDiff{Mint: other.Mint, CounterParty: other.Owner}
	switch {
	case post > pre:
		diff.Direction = DirectionReceived
		diff.Amount = post - pre
	case post < pre:
		diff.Direction = DirectionSent
		diff.Amount = pre - post
	default:
		return BalanceDiff{}, skipf(SkipNoValueMoved, "wallet balance of %s unchanged", other.Mint)
	}
	return diff, nil
}

// sumOwned totals the raw amounts owned by owner for mint. Missing entries count as zero.
func sumOwned(balances []TokenBalance, owner, mint string) (uint64, error) {
	var total uint64
	for _, b := range balances {
		if b.Owner != owner || b.Mint != mint {
			continue
		}
		amount, err := strconv.ParseUint(b.Amount, 10, 64)
		if err != nil {
			return 0, skipf(SkipMalformedRecord, "token amount %q", b.Amount)
		}
		total += amount
	}
	return total, nil
}
