package solana

import (
	"github.com/gagliardetto/solana-go/rpc"

	solanaswapgo "github.com/franco-bianco/solanaswap-go/solanaswap-go"
)

// SwapDetector reports whether a fetched transaction is a DEX swap.
type SwapDetector interface {
	IsSwap(result *rpc.GetTransactionResult) bool
}

// DexSwapDetector recognizes swaps on the AMMs and routers solanaswap-go knows.
type DexSwapDetector struct{}

// IsSwap never fails: anything the parser chokes on is treated as not a swap
// and left to the instruction classifier.
func (DexSwapDetector) IsSwap(result *rpc.GetTransactionResult) (swap bool) {
	defer func() {
		if r := recover(); r != nil {
			swap = false
		}
	}()
	if result == nil || result.Transaction == nil || result.Meta == nil {
		return false
	}

	parser, err := solanaswapgo.NewTransactionParser(result)
	if err != nil {
		return false
	}
	swaps, err := parser.ParseTransaction()
	if err != nil {
		return false
	}
	return len(swaps) > 0
}

// NoSwapDetector never reports a swap.
type NoSwapDetector struct{}

func (NoSwapDetector) IsSwap(*rpc.GetTransactionResult) bool { return false }
