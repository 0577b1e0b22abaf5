// Package notify defines the wire event published for every committed
// transition. The redisbus and kafkabus packages carry it to a broker.
package notify

import (
	"encoding/json"
	"fmt"

	"stockledger/internal/core"
)

// ChangeRef identifies one entity touched by a transition.
type ChangeRef struct {
	Entity core.EntityType `json:"entity"`
	Action core.Action     `json:"action"`
	ID     string          `json:"id"`
}

// Event is the broker payload. It carries references, not full entities, so
// subscribers re-read what they need.
type Event struct {
	Sequence   uint64           `json:"sequence"`
	Command    core.Kind        `json:"command"`
	Status     core.Status      `json:"status"`
	Reason     core.Reason      `json:"reason,omitempty"`
	Changes    []ChangeRef      `json:"changes,omitempty"`
	Violations []core.Violation `json:"violations,omitempty"`
}

// FromTransition builds the event for tr.
func FromTransition(tr core.Transition) Event {
	ev := Event{
		Sequence:   tr.Sequence,
		Status:     tr.Outcome.Status,
		Reason:     tr.Outcome.Reason,
		Violations: tr.Outcome.Result.Violations,
	}
	if tr.Command != nil {
		ev.Command = tr.Command.Kind()
	}
	for _, c := range tr.Outcome.Changes {
		ev.Changes = append(ev.Changes, ChangeRef{Entity: c.Entity, Action: c.Action, ID: changeID(c)})
	}
	return ev
}

func changeID(c core.Change) string {
	v := c.After
	if v == nil {
		v = c.Before
	}
	switch e := v.(type) {
	case core.Product:
		return e.ID
	case core.Supplier:
		return e.ID
	case core.StockMovement:
		return e.ID
	case core.SalesOrder:
		return e.ID
	default:
		return ""
	}
}

// Encode marshals the event for tr.
func Encode(tr core.Transition) ([]byte, error) {
	data, err := json.Marshal(FromTransition(tr))
	if err != nil {
		return nil, fmt.Errorf("encode transition %d: %w", tr.Sequence, err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode transition event: %w", err)
	}
	return ev, nil
}
