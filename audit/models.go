package audit

import "time"

const (
	ActionLotGenerated = "lot.generated"
	ActionLotPaid      = "lot.paid"
	ActionLotCancelled = "lot.cancelled"
	ActionLotDeleted   = "lot.deleted"
)

// Event is an append-only record of a committed payment lot change.
type Event struct {
	ID        string
	Action    string
	LotID     string
	ActorID   string
	Payload   map[string]any
	Timestamp time.Time
}
