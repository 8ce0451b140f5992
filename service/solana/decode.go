package solana

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/mr-tron/base58"

	"github.com/brojonat/ledgerlens/service/ledger"
)

// Program IDs we decode.
const (
	SystemProgramID     = "11111111111111111111111111111111"
	TokenProgramID      = ledger.TokenProgramID
	Token2022ProgramID  = ledger.Token2022ProgramID
	AssociatedProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	LegacyMemoProgramID = "Memo1UhkJRfHyvLMcVucJwxXeuD728EqVDDwQDxFMNo"
)

const (
	systemCreateAccount         = 0
	systemTransfer              = 2
	systemCreateAccountWithSeed = 3

	tokenTransfer        = 3
	tokenTransferChecked = 12
)

var errMissingTransaction = errors.New("transaction result has no transaction")

// DecodeRecord converts a getTransaction result into a ledger.RawRecord.
// Every instruction is decoded; the ones we do not model become ledger.Unsupported.
func DecodeRecord(signature string, result *rpc.GetTransactionResult) (*ledger.RawRecord, error) {
	if result == nil || result.Transaction == nil {
		return nil, errMissingTransaction
	}
	tx, err := result.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction: %w", err)
	}
	if tx == nil {
		return nil, errMissingTransaction
	}

	rec := &ledger.RawRecord{
		Signature: signature,
		Slot:      result.Slot,
	}
	if result.BlockTime != nil {
		bt := int64(*result.BlockTime)
		rec.BlockTime = &bt
	}

	keys := accountKeys(tx, result.Meta)
	for i, ci := range tx.Message.Instructions {
		ix, err := decodeInstruction(keys, ci)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		rec.Instructions = append(rec.Instructions, ix)
	}

	if meta := result.Meta; meta != nil {
		rec.Fee = meta.Fee
		rec.PreBalances = meta.PreBalances
		rec.PostBalances = meta.PostBalances
		if meta.Err != nil {
			msg := errString(meta.Err)
			rec.Err = &msg
		}
		rec.PreTokenBalances = tokenBalances(meta.PreTokenBalances)
		rec.PostTokenBalances = tokenBalances(meta.PostTokenBalances)
	}

	return rec, nil
}

// accountKeys is the static account list followed by addresses loaded from
// lookup tables, which is the index space compiled instructions refer to.
func accountKeys(tx *solana.Transaction, meta *rpc.TransactionMeta) []string {
	keys := make([]string, 0, len(tx.Message.AccountKeys))
	for _, k := range tx.Message.AccountKeys {
		keys = append(keys, k.String())
	}
	if meta != nil {
		for _, k := range meta.LoadedAddresses.Writable {
			keys = append(keys, k.String())
		}
		for _, k := range meta.LoadedAddresses.ReadOnly {
			keys = append(keys, k.String())
		}
	}
	return keys
}

func decodeInstruction(keys []string, ci solana.CompiledInstruction) (ledger.Instruction, error) {
	if int(ci.ProgramIDIndex) >= len(keys) {
		return nil, fmt.Errorf("program index %d out of range", ci.ProgramIDIndex)
	}
	program := keys[ci.ProgramIDIndex]
	accounts := make([]string, 0, len(ci.Accounts))
	for _, idx := range ci.Accounts {
		if int(idx) >= len(keys) {
			return nil, fmt.Errorf("account index %d out of range", idx)
		}
		accounts = append(accounts, keys[idx])
	}
	data := []byte(ci.Data)

	switch program {
	case SystemProgramID:
		if ix, ok := decodeSystem(program, accounts, data); ok {
			return ix, nil
		}
	case TokenProgramID, Token2022ProgramID:
		if ix, ok := decodeToken(program, accounts, data); ok {
			return ix, nil
		}
	case AssociatedProgramID:
		// Create (empty or 0) and CreateIdempotent (1).
		if len(accounts) >= 4 && (len(data) == 0 || data[0] <= 1) {
			return ledger.AssociatedAccountCreate{
				ProgramID: program,
				Payer:     accounts[0],
				Account:   accounts[1],
				Owner:     accounts[2],
				Mint:      accounts[3],
			}, nil
		}
	case ledger.MemoProgramID, LegacyMemoProgramID:
		return ledger.Memo{ProgramID: program, Text: string(data)}, nil
	case ledger.NoteProgramID:
		return ledger.Note{ProgramID: program, Data: base58.Encode(data)}, nil
	}

	return ledger.Unsupported{ProgramID: program, Data: data}, nil
}

func decodeSystem(program string, accounts []string, data []byte) (ledger.Instruction, bool) {
	if len(data) < 4 || len(accounts) < 2 {
		return nil, false
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case systemTransfer:
		if len(data) < 12 {
			return nil, false
		}
		return ledger.NativeTransfer{
			ProgramID:   program,
			Source:      accounts[0],
			Destination: accounts[1],
			Lamports:    binary.LittleEndian.Uint64(data[4:12]),
		}, true
	case systemCreateAccount:
		if len(data) < 12 {
			return nil, false
		}
		return ledger.AccountCreate{
			ProgramID:  program,
			Source:     accounts[0],
			NewAccount: accounts[1],
			Lamports:   binary.LittleEndian.Uint64(data[4:12]),
		}, true
	case systemCreateAccountWithSeed:
		// type(4) base(32) seed_len(8) seed lamports(8) space(8) owner(32)
		if len(data) < 44 {
			return nil, false
		}
		seedLen := binary.LittleEndian.Uint64(data[36:44])
		end := 44 + seedLen
		if seedLen > uint64(len(data)) || uint64(len(data)) < end+8 {
			return nil, false
		}
		return ledger.AccountCreate{
			ProgramID:  program,
			Source:     accounts[0],
			NewAccount: accounts[1],
			Lamports:   binary.LittleEndian.Uint64(data[end : end+8]),
			Seed:       string(data[44:end]),
		}, true
	}
	return nil, false
}

func decodeToken(program string, accounts []string, data []byte) (ledger.Instruction, bool) {
	if op, ok := ledger.TokenAccountOpOf(program, data); ok && len(accounts) > 0 {
		return ledger.TokenAccountOp{ProgramID: program, Op: op, Account: accounts[0]}, true
	}
	if len(data) < 9 {
		return nil, false
	}
	amount := binary.LittleEndian.Uint64(data[1:9])
	switch data[0] {
	case tokenTransfer:
		if len(accounts) < 3 {
			return nil, false
		}
		return ledger.TokenTransfer{
			ProgramID:   program,
			Source:      accounts[0],
			Destination: accounts[1],
			Authority:   accounts[2],
			Amount:      amount,
		}, true
	case tokenTransferChecked:
		if len(data) < 10 || len(accounts) < 4 {
			return nil, false
		}
		return ledger.TokenTransferChecked{
			ProgramID:   program,
			Source:      accounts[0],
			Mint:        accounts[1],
			Destination: accounts[2],
			Authority:   accounts[3],
			Amount:      amount,
			Decimals:    data[9],
		}, true
	}
	return nil, false
}

func tokenBalances(in []rpc.TokenBalance) []ledger.TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]ledger.TokenBalance, 0, len(in))
	for _, b := range in {
		tb := ledger.TokenBalance{Mint: b.Mint.String()}
		if b.Owner != nil {
			tb.Owner = b.Owner.String()
		}
		if b.UiTokenAmount != nil {
			tb.Amount = b.UiTokenAmount.Amount
		}
		out = append(out, tb)
	}
	return out
}

func errString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(blob)
}
