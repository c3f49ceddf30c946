package notification

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an outbound notification.
type Kind string

const (
	StateChanged Kind = "state_changed"
	ItemDueSoon  Kind = "item_due_soon"
	ItemExpired  Kind = "item_expired"
)

// Event is emitted by the engines after a committed change.
type Event struct {
	ID        string         `json:"id"`
	Kind      Kind           `json:"kind"`
	EntityID  int64          `json:"entityId"`
	Timestamp time.Time      `json:"timestamp"`
	Recipient string         `json:"recipient,omitempty"` // empty means every subscriber
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewEvent builds an Event with a fresh id.
func NewEvent(kind Kind, entityID int64, at time.Time, recipient string, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		EntityID:  entityID,
		Timestamp: at,
		Recipient: recipient,
		Payload:   payload,
	}
}

// Message renders the human readable push text for ev.
func Message(ev Event) string {
	switch ev.Kind {
	case StateChanged:
		if kind, ok := ev.Payload["kind"]; ok {
			return fmt.Sprintf("Club state changed: %v", kind)
		}
		return "Club state changed"
	case ItemDueSoon:
		if due, ok := ev.Payload["dueDate"].(time.Time); ok {
			return fmt.Sprintf("Your board game is due %s", due.Format("Mon 02.01. 15:04"))
		}
		return "Your board game is due soon"
	case ItemExpired:
		return "Your board game loan has expired, please return it"
	}
	return string(ev.Kind)
}
