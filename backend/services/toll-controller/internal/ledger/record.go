package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// TimestampLayout is the on-disk timestamp format. Times are local wall-clock, second precision.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrInvalidRecord is returned by Append for records that would not survive a reload.
var ErrInvalidRecord = errors.New("ledger: invalid record")

// Record is one committed toll transaction.
type Record struct {
	Timestamp time.Time `json:"-"`
	CardID    string    `json:"card_id"`
	Amount    int64     `json:"amount"`
	Balance   int64     `json:"balance"`
}

type recordJSON struct {
	Timestamp string `json:"timestamp"`
	CardID    string `json:"card_id"`
	Amount    int64  `json:"amount"`
	Balance   int64  `json:"balance"`
}

// NewRecord builds a record stamped at now, truncated to the second.
func NewRecord(now time.Time, cardID string, amount, balance int64) Record {
	return Record{
		Timestamp: now.Truncate(time.Second),
		CardID:    cardID,
		Amount:    amount,
		Balance:   balance,
	}
}

// MarshalJSON writes the timestamp in TimestampLayout.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Timestamp: r.Timestamp.Format(TimestampLayout),
		CardID:    r.CardID,
		Amount:    r.Amount,
		Balance:   r.Balance,
	})
}

// UnmarshalJSON parses the timestamp in the local zone.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw.Timestamp, err)
	}
	*r = Record{
		Timestamp: ts,
		CardID:    raw.CardID,
		Amount:    raw.Amount,
		Balance:   raw.Balance,
	}
	return nil
}

// Validate reports whether the record can be committed.
func (r Record) Validate() error {
	switch {
	case strings.TrimSpace(r.CardID) == "":
		return fmt.Errorf("%w: card_id is empty", ErrInvalidRecord)
	case !utf8.ValidString(r.CardID):
		return fmt.Errorf("%w: card_id %q is not valid UTF-8", ErrInvalidRecord, r.CardID)
	case r.Amount < 0:
		return fmt.Errorf("%w: amount %d is negative", ErrInvalidRecord, r.Amount)
	case r.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is not set", ErrInvalidRecord)
	}
	return nil
}

