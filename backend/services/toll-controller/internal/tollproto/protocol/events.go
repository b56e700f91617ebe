package protocol

// Event is one decoded serial line. The concrete type is one of Capture, Transaction,
// Insufficient or Malformed.
type Event interface {
	Tag() string
}

// Capture signals a vehicle at the booth. Extra holds any trailing fields the device sent;
// they are accepted and otherwise ignored.
type Capture struct {
	Extra []string
}

// Tag implements Event.
func (Capture) Tag() string { return TagCapture }

// Transaction is a successful card payment reported by the controller.
type Transaction struct {
	CardID  string
	Amount  int64
	Balance int64
}

// Tag implements Event.
func (Transaction) Tag() string { return TagTransaction }

// Insufficient is a rejected payment. The device sends a third field between the card and
// the balance whose meaning is unknown; it is kept verbatim in Unused.
type Insufficient struct {
	CardID  string
	Unused  string
	Balance int64
}

// Tag implements Event.
func (Insufficient) Tag() string { return TagInsufficient }

// Malformed is produced for any line that does not match the grammar.
type Malformed struct {
	Raw    string
	Field  string
	Reason string
}

// Tag implements Event. Malformed lines have no wire tag of their own.
func (Malformed) Tag() string { return "" }
