package domain

// EventKind names the committed operation a SaleEvent records.
type EventKind string

const (
	EventCreated     EventKind = "CREATED"
	EventOptedIn     EventKind = "OPTED_IN"
	EventRateChanged EventKind = "RATE_CHANGED"
	EventContributed EventKind = "CONTRIBUTED"
	EventFinalized   EventKind = "FINALIZED"
	EventClaimed     EventKind = "CLAIMED"
	EventRefunded    EventKind = "REFUNDED"
	EventWithdrawn   EventKind = "WITHDRAWN"
	EventReclaimed   EventKind = "RECLAIMED"
)

// IsValid checks if the kind is a known value.
func (k EventKind) IsValid() bool {
	switch k {
	case EventCreated, EventOptedIn, EventRateChanged, EventContributed, EventFinalized,
		EventClaimed, EventRefunded, EventWithdrawn, EventReclaimed:
		return true
	}
	return false
}

// SaleEvent is the journal entry of one committed operation.
type SaleEvent struct {
	ID           string     `json:"id"`           // uuid
	SaleID       string     `json:"sale_id"`      // sale namespace
	Kind         EventKind  `json:"kind"`         // operation
	Actor        Identity   `json:"actor"`        // caller
	Counterparty Identity   `json:"counterparty"` // reclaim receiver, zero otherwise
	Amount       uint64     `json:"amount"`       // currency or token units moved
	Tokens       uint64     `json:"tokens"`       // tokens credited on contribute
	Rate         uint64     `json:"rate"`         // rate in effect after the operation
	Total        uint64     `json:"total"`        // aggregate total after the operation
	Status       SaleStatus `json:"status"`       // status after the operation
	OccurredAt   int64      `json:"occurred_at"`  // Unix timestamp in seconds
}
