package types

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/splitpay-backend/pkg/enums"
)

// Message is the unit carried on a table's push channel. It is an ephemeral
// signal; the store stays authoritative.
type Message struct {
	Type      enums.MessageType `json:"type"`
	TableID   string            `json:"tableId"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// NewMessage marshals data and stamps the message with the current UTC time.
func NewMessage(msgType enums.MessageType, tableID string, data any) (Message, error) {
	msg := Message{
		Type:      msgType,
		TableID:   tableID,
		Timestamp: time.Now().UTC(),
	}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	msg.Data = raw
	return msg, nil
}

// DecodeData unmarshals the message body into dst. Empty bodies are a no-op.
func (m Message) DecodeData(dst any) error {
	if len(m.Data) == 0 {
		return nil
	}
	return json.Unmarshal(m.Data, dst)
}
