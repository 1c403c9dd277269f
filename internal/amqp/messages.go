package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"familybudget/internal/core"
	"familybudget/internal/ledger"
)

// ItemEventMessage is the wire form of a committed item change. It carries
// everything the journal needs so the worker never reads the item back.
type ItemEventMessage struct {
	Type      string     `json:"type"`
	ItemID    string     `json:"item_id"`
	UserID    string     `json:"user_id"`
	Kind      string     `json:"kind"`
	Name      string     `json:"name"`
	Total     core.Money `json:"total"`
	Timestamp time.Time  `json:"timestamp"`
}

var errIncompleteMessage = errors.New("item event message is missing type, item_id or user_id")

func NewItemEventMessage(ev ledger.ItemEvent) *ItemEventMessage {
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &ItemEventMessage{
		Type:      string(ev.Type),
		ItemID:    ev.Item.ID,
		UserID:    ev.Item.UserID,
		Kind:      string(ev.Item.Kind),
		Name:      ev.Item.Name,
		Total:     ev.Total,
		Timestamp: ts,
	}
}

// ToJSON converts the message to JSON bytes
func (m *ItemEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ItemEventMessageFromJSON decodes a message and rejects incomplete ones.
func ItemEventMessageFromJSON(data []byte) (*ItemEventMessage, error) {
	var msg ItemEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type == "" || msg.ItemID == "" || msg.UserID == "" {
		return nil, errIncompleteMessage
	}
	return &msg, nil
}
