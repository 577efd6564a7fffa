package ws

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the payload carried by a Message
type MessageType string

const (
	MessageTypeTradeRequest  MessageType = "trade_request"
	MessageTypeTradeResponse MessageType = "trade_response"
	MessageTypeTradeReject   MessageType = "trade_reject"
)

// Message is the JSON envelope exchanged with the trade engine server
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope, encoding payload as JSON
func NewMessage(msgType MessageType, id string, payload any) (*Message, error) {
	msg := &Message{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		msg.Payload = data
	}
	return msg, nil
}

// Decode decodes the payload into v
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Type, err)
	}
	return nil
}
