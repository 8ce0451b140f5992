package ledger

// ComputeBudgetProgramID sets compute limits and priority fees. Its
// instructions sit in front of most modern transactions and carry no value.
const ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"

// Path is the resolution path chosen by the classifier.
type Path int

const (
	PathNative Path = iota + 1
	PathToken
	PathAccountCreate
)

func (p Path) String() string {
	switch p {
	case PathNative:
		return "native"
	case PathToken:
		return "token"
	case PathAccountCreate:
		return "account-create"
	default:
		return "unknown"
	}
}

// Classification is the classifier's verdict for a record.
type Classification struct {
	Path      Path
	Governing Instruction
}

// Classify picks the governing instruction of rec and the path that resolves
// it. Records with nothing to show come back as a *SkipError.
func Classify(rec *RawRecord) (Classification, error) {
	if rec.SwapDetected {
		return Classification{}, skipf(SkipUnsupported, "swap")
	}

	wrapped := syncedAccounts(rec.Instructions)

	var governing Instruction
	for _, ix := range rec.Instructions {
		ancillary, err := isAncillary(ix, wrapped)
		if err != nil {
			return Classification{}, err
		}
		if !ancillary && governing == nil {
			governing = ix
		}
	}
	if governing == nil {
		return Classification{}, skipf(SkipUnsupported, "no value-moving instruction")
	}

	if src, dst, ok := endpoints(governing); ok && src == dst {
		return Classification{}, skipf(SkipSelfTransfer, "%s to itself", src)
	}

	if !rec.HasTokenBalances() {
		switch governing.(type) {
		case NativeTransfer:
			return Classification{Path: PathNative, Governing: governing}, nil
		case AccountCreate:
			return Classification{Path: PathAccountCreate, Governing: governing}, nil
		default:
			return Classification{}, skipf(SkipUnsupported, "%s without token balances", governing.Kind())
		}
	}

	switch governing.(type) {
	case TokenTransfer, TokenTransferChecked:
		return Classification{Path: PathToken, Governing: governing}, nil
	default:
		return Classification{}, skipf(SkipUnsupported, "%s with token balances", governing.Kind())
	}
}

// isAncillary reports whether ix rides along without governing the transfer.
// An unsupported instruction from any program other than compute budget
// makes the whole record unsupported. Lamports sent into a wrapped SOL
// account that is synced in the same record fund the wrap, not a payment.
func isAncillary(ix Instruction, wrapped map[string]bool) (bool, error) {
	switch v := ix.(type) {
	case Memo, Note, AssociatedAccountCreate, TokenAccountOp:
		return true, nil
	case Unsupported:
		if v.ProgramID == ComputeBudgetProgramID {
			return true, nil
		}
		// Entries decoded before token account ops were modelled.
		if _, ok := TokenAccountOpOf(v.ProgramID, v.Data); ok {
			return true, nil
		}
		return false, skipf(SkipUnsupported, "program %s", v.ProgramID)
	case NativeTransfer:
		return wrapped[v.Destination], nil
	case TokenTransfer, TokenTransferChecked, AccountCreate:
		return false, nil
	default:
		return false, skipf(SkipMalformedRecord, "instruction type %T", ix)
	}
}

// syncedAccounts collects the token accounts a SyncNative touches.
func syncedAccounts(instructions []Instruction) map[string]bool {
	var out map[string]bool
	for _, ix := range instructions {
		if op, ok := ix.(TokenAccountOp); ok && op.Op == OpSyncNative {
			if out == nil {
				out = make(map[string]bool)
			}
			out[op.Account] = true
		}
	}
	return out
}
