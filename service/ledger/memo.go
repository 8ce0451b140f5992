package ledger

import (
	"unicode/utf8"

	"github.com/mr-tron/base58"
)

// Annotation-carrying programs.
const (
	MemoProgramID = "MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr"
	NoteProgramID = "noteD9tEFTDH1Jn9B1HbpoC7Zu8L9QXRo7FjZj3PT93"
)

// ExtractMemo returns the text of the first memo instruction, falling back
// to the first note instruction when the record carries no memo.
// A note that fails to decode yields nil rather than an error.
func ExtractMemo(instructions []Instruction) *string {
	var note *Note
	for _, ix := range instructions {
		switch v := ix.(type) {
		case Memo:
			if !utf8.ValidString(v.Text) {
				return nil
			}
			text := v.Text
			return &text
		case Note:
			if note == nil {
				note = &v
			}
		}
	}
	if note == nil {
		return nil
	}
	return decodeNote(note.Data)
}

func decodeNote(data string) *string {
	raw, err := base58.Decode(data)
	if err != nil || !utf8.Valid(raw) {
		return nil
	}
	text := string(raw)
	return &text
}
