package ledger

// SPL token programs.
const (
	TokenProgramID     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// TokenAccountOpID names a token account housekeeping instruction.
type TokenAccountOpID string

const (
	OpInitializeAccount TokenAccountOpID = "initialize-account"
	OpCloseAccount      TokenAccountOpID = "close-account"
	OpSyncNative        TokenAccountOpID = "sync-native"
)

// IsTokenProgram reports whether program is one of the SPL token programs.
func IsTokenProgram(program string) bool {
	return program == TokenProgramID || program == Token2022ProgramID
}

// TokenAccountOpOf maps a token program instruction to its housekeeping op.
// The first data byte is the instruction discriminator.
func TokenAccountOpOf(program string, data []byte) (TokenAccountOpID, bool) {
	if !IsTokenProgram(program) || len(data) == 0 {
		return "", false
	}
	switch data[0] {
	case 1, 16, 18: // InitializeAccount, InitializeAccount2, InitializeAccount3
		return OpInitializeAccount, true
	case 9:
		return OpCloseAccount, true
	case 17:
		return OpSyncNative, true
	}
	return "", false
}
