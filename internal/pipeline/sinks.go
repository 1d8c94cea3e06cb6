package pipeline

import (
	"context"
	"database/sql"

	"github.com/danielpatrickdp/fall-detect/go-engine/internal/logging"
	"github.com/danielpatrickdp/fall-detect/go-engine/internal/state"
)

// EventStore persists emitted events and their delivery status. *state.Store
// satisfies it.
type EventStore interface {
	SaveEvent(ev state.FallEvent) (string, error)
	MarkDelivered(id string, deliveryErr error) error
}

// Publisher forwards events downstream. *relay.Client satisfies it.
type Publisher interface {
	Publish(ctx context.Context, ev state.FallEvent) error
}

// Sinks are the destinations of the dispatcher. Any of them may be nil.
type Sinks struct {
	Store     EventStore
	Relay     Publisher
	Decisions *sql.DB // decision_log table
}

// Sink names used in logs and the sink failure counter.
const (
	sinkStore     = "store"
	sinkRelay     = "relay"
	sinkDecisions = "decision_log"
)

// dispatchItem is one unit of work for the dispatcher. Events and their
// confirming decision travel together so the row can carry the event ID.
type dispatchItem struct {
	event    *state.FallEvent
	decision *logging.DecisionEntry
}
