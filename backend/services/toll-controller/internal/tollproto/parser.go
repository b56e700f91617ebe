package tollproto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"tollbooth/backend/services/toll-controller/internal/tollproto/protocol"
)

// Decoder turns one serial line into a protocol.Event. It never fails: anything that does
// not match the grammar comes back as protocol.Malformed.
type Decoder struct{}

// NewDecoder returns decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses a line with the terminator already removed. Surrounding whitespace is
// ignored, as are blanks around numeric fields. The wire format is ASCII; any other byte
// makes the whole line malformed.
func (d *Decoder) Decode(line string) protocol.Event {
	raw := strings.TrimSpace(line)
	if !isASCII(raw) {
		return malformed(raw, protocol.FieldTag, "line is not ASCII")
	}
	parts := strings.Split(raw, protocol.FieldDelimiter)
	tag, fields := parts[0], parts[1:]

	switch tag {
	case protocol.TagCapture:
		ev := protocol.Capture{}
		if len(fields) > 0 {
			ev.Extra = fields
		}
		return ev
	case protocol.TagTransaction:
		return decodeTransaction(raw, fields)
	case protocol.TagInsufficient:
		return decodeInsufficient(raw, fields)
	default:
		return malformed(raw, protocol.FieldTag, fmt.Sprintf("unknown tag %q", tag))
	}
}

func decodeTransaction(raw string, fields []string) protocol.Event {
	if len(fields) != protocol.TransactionArity {
		return arityMismatch(raw, protocol.TagTransaction, protocol.TransactionArity, len(fields))
	}

	cardID, ok := parseCardID(fields[0])
	if !ok {
		return malformed(raw, protocol.FieldCardID, "card id is empty")
	}

	amount, err := parseInt(fields[1])
	if err != nil {
		return malformed(raw, protocol.FieldAmount, err.Error())
	}
	if amount < 0 {
		return malformed(raw, protocol.FieldAmount, fmt.Sprintf("amount %d is negative", amount))
	}

	balance, err := parseInt(fields[2])
	if err != nil {
		return malformed(raw, protocol.FieldBalance, err.Error())
	}

	return protocol.Transaction{CardID: cardID, Amount: amount, Balance: balance}
}

// decodeInsufficient keeps the device's four-field shape. The middle field is required for
// arity but carried through untouched.
func decodeInsufficient(raw string, fields []string) protocol.Event {
	if len(fields) != protocol.InsufficientArity {
		return arityMismatch(raw, protocol.TagInsufficient, protocol.InsufficientArity, len(fields))
	}

	cardID, ok := parseCardID(fields[0])
	if !ok {
		return malformed(raw, protocol.FieldCardID, "card id is empty")
	}

	balance, err := parseInt(fields[2])
	if err != nil {
		return malformed(raw, protocol.FieldBalance, err.Error())
	}

	return protocol.Insufficient{CardID: cardID, Unused: fields[1], Balance: balance}
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func parseCardID(field string) (string, bool) {
	id := strings.TrimSpace(field)
	return id, id != ""
}

func parseInt(field string) (int64, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(field), 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, fmt.Errorf("value %q out of range", field)
		}
		return 0, fmt.Errorf("value %q is not a base-10 integer", field)
	}
	return v, nil
}

func arityMismatch(raw, tag string, want, got int) protocol.Malformed {
	return malformed(raw, protocol.FieldTag, fmt.Sprintf("%s expects %d fields, got %d", tag, want, got))
}

func malformed(raw, field, reason string) protocol.Malformed {
	return protocol.Malformed{Raw: raw, Field: field, Reason: reason}
}
