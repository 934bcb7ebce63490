package models

import "time"

// ConversationMessage is one inbound chat message delivered by a
// messenger webhook. MessageSID is the provider's delivery id and the
// idempotency key: a duplicate delivery is a silent no-op.
type ConversationMessage struct {
	MessageSID     string     `json:"message_sid"`
	ConversationID string     `json:"conversation_id"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	Body           string     `json:"body"`
	ReceivedAt     time.Time  `json:"received_at"`
	Processed      bool       `json:"processed"`
	EventExtracted bool       `json:"event_extracted"`
	LinkedEventID  *string    `json:"linked_event_id,omitempty"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// ChatTurn is one turn of orchestrator history in OpenAI role form.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
