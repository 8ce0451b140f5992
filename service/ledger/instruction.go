package ledger

import (
	"encoding/json"
	"fmt"
)

// Kind tags an instruction variant.
type Kind string

const (
	KindNativeTransfer          Kind = "native-transfer"
	KindTokenTransfer           Kind = "token-transfer"
	KindTokenTransferChecked    Kind = "token-transfer-checked"
	KindAssociatedAccountCreate Kind = "associated-account-create"
	KindAccountCreate           Kind = "account-create"
	KindTokenAccountOp          Kind = "token-account-op"
	KindMemo                    Kind = "memo"
	KindNote                    Kind = "note"
	KindUnsupported             Kind = "unsupported"
)

// Instruction is one decoded instruction of a transaction. The set of
// implementations is closed: only the types in this file satisfy it.
type Instruction interface {
	Kind() Kind
	Program() string
	instruction()
}

// NativeTransfer moves lamports between two system accounts.
type NativeTransfer struct {
	ProgramID   string `json:"program_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    uint64 `json:"lamports"`
}

// TokenTransfer is an SPL token Transfer between two token accounts.
type TokenTransfer struct {
	ProgramID   string `json:"program_id"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      uint64 `json:"amount"`
}

// TokenTransferChecked is an SPL token TransferChecked, which also names the mint.
type TokenTransferChecked struct {
	ProgramID   string `json:"program_id"`
	Source      string `json:"source"`
	Mint        string `json:"mint"`
	Destination string `json:"destination"`
	Authority   string `json:"authority"`
	Amount      uint64 `json:"amount"`
	Decimals    uint8  `json:"decimals"`
}

// AssociatedAccountCreate creates the associated token account of Owner for Mint.
type AssociatedAccountCreate struct {
	ProgramID string `json:"program_id"`
	Payer     string `json:"payer"`
	Account   string `json:"account"`
	Owner     string `json:"owner"`
	Mint      string `json:"mint"`
}

// AccountCreate is a system CreateAccount or CreateAccountWithSeed.
type AccountCreate struct {
	ProgramID  string `json:"program_id"`
	Source     string `json:"source"`
	NewAccount string `json:"new_account"`
	Lamports   uint64 `json:"lamports"`
	Seed       string `json:"seed,omitempty"`
}

// TokenAccountOp is token account housekeeping that moves no value by itself:
// initializing, closing or syncing a token account.
type TokenAccountOp struct {
	ProgramID string           `json:"program_id"`
	Op        TokenAccountOpID `json:"op"`
	Account   string           `json:"account"`
}

// Memo carries UTF-8 text directly.
type Memo struct {
	ProgramID string `json:"program_id"`
	Text      string `json:"text"`
}

// Note carries base58-encoded bytes that decode to UTF-8 text.
type Note struct {
	ProgramID string `json:"program_id"`
	Data      string `json:"data"`
}

// Unsupported is any instruction we do not model.
type Unsupported struct {
	ProgramID string `json:"program_id"`
	Data      []byte `json:"data,omitempty"`
}

func (NativeTransfer) Kind() Kind          { return KindNativeTransfer }
func (TokenTransfer) Kind() Kind           { return KindTokenTransfer }
func (TokenTransferChecked) Kind() Kind    { return KindTokenTransferChecked }
func (AssociatedAccountCreate) Kind() Kind { return KindAssociatedAccountCreate }
func (AccountCreate) Kind() Kind           { return KindAccountCreate }
func (TokenAccountOp) Kind() Kind          { return KindTokenAccountOp }
func (Memo) Kind() Kind                    { return KindMemo }
func (Note) Kind() Kind                    { return KindNote }
func (Unsupported) Kind() Kind             { return KindUnsupported }

func (i NativeTransfer) Program() string          { return i.ProgramID }
func (i TokenTransfer) Program() string           { return i.ProgramID }
func (i TokenTransferChecked) Program() string    { return i.ProgramID }
func (i AssociatedAccountCreate) Program() string { return i.ProgramID }
func (i AccountCreate) Program() string           { return i.ProgramID }
func (i TokenAccountOp) Program() string          { return i.ProgramID }
func (i Memo) Program() string                    { return i.ProgramID }
func (i Note) Program() string                    { return i.ProgramID }
func (i Unsupported) Program() string             { return i.ProgramID }

func (NativeTransfer) instruction()          {}
func (TokenTransfer) instruction()           {}
func (TokenTransferChecked) instruction()    {}
func (AssociatedAccountCreate) instruction() {}
func (AccountCreate) instruction()           {}
func (TokenAccountOp) instruction()          {}
func (Memo) instruction()                    {}
func (Note) instruction()                    {}
func (Unsupported) instruction()             {}

// endpoints returns the source and destination of value-moving instructions.
func endpoints(ix Instruction) (source, destination string, ok bool) {
	switch v := ix.(type) {
	case NativeTransfer:
		return v.Source, v.Destination, true
	case TokenTransfer:
		return v.Source, v.Destination, true
	case TokenTransferChecked:
		return v.Source, v.Destination, true
	case AccountCreate:
		return v.Source, v.NewAccount, true
	case AssociatedAccountCreate, TokenAccountOp, Memo, Note, Unsupported:
		return "", "", false
	default:
		panic(fmt.Sprintf("ledger: unknown instruction type %T", ix))
	}
}

// Instructions is an ordered instruction list that round-trips through JSON
// with a "kind" discriminator on every element.
type Instructions []Instruction

type taggedInstruction struct {
	Kind Kind            `json:"kind"`
	Body json.RawMessage `json:"body"`
}

// MarshalJSON implements json.Marshaler.
func (ixs Instructions) MarshalJSON() ([]byte, error) {
	out := make([]taggedInstruction, 0, len(ixs))
	for i, ix := range ixs {
		body, err := json.Marshal(ix)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, taggedInstruction{Kind: ix.Kind(), Body: body})
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ixs *Instructions) UnmarshalJSON(data []byte) error {
	var tagged []taggedInstruction
	if err := json.Unmarshal(data, &tagged); err != nil {
		return err
	}
	out := make(Instructions, 0, len(tagged))
	for i, t := range tagged {
		ix, err := decodeInstruction(t)
		if err != nil {
			return fmt.Errorf("instruction %d: %w", i, err)
		}
		out = append(out, ix)
	}
	*ixs = out
	return nil
}

func decodeInstruction(t taggedInstruction) (Instruction, error) {
	switch t.Kind {
	case KindNativeTransfer:
		return unmarshalAs[NativeTransfer](t.Body)
	case KindTokenTransfer:
		return unmarshalAs[TokenTransfer](t.Body)
	case KindTokenTransferChecked:
		return unmarshalAs[TokenTransferChecked](t.Body)
	case KindAssociatedAccountCreate:
		return unmarshalAs[AssociatedAccountCreate](t.Body)
	case KindAccountCreate:
		return unmarshalAs[AccountCreate](t.Body)
	case KindTokenAccountOp:
		return unmarshalAs[TokenAccountOp](t.Body)
	case KindMemo:
		return unmarshalAs[Memo](t.Body)
	case KindNote:
		return unmarshalAs[Note](t.Body)
	case KindUnsupported:
		return unmarshalAs[Unsupported](t.Body)
	default:
		return nil, fmt.Errorf("unknown instruction kind %q", t.Kind)
	}
}

func unmarshalAs[T Instruction](body json.RawMessage) (Instruction, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}
