package protocol

// Tags recognised on the controller's serial line. Matching is case-sensitive.
const (
	TagCapture      = "CAPTURE"
	TagTransaction  = "TRANSACTION"
	TagInsufficient = "INSUFFICIENT"
)

// FieldDelimiter separates the tag and its fields. The wire format has no escaping.
const FieldDelimiter = ","

// Number of fields that must follow each tag.
const (
	TransactionArity  = 3
	InsufficientArity = 3
)

// Field names used in Malformed reasons.
const (
	FieldTag     = "tag"
	FieldCardID  = "card_id"
	FieldAmount  = "amount"
	FieldBalance = "balance"
)
