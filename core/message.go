package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Sender identifies which side of the conversation authored a message.
type Sender string

const (
	// SenderUser marks a message authored by the human participant.
	SenderUser Sender = "user"
	// SenderModel marks a message authored by the assistant.
	SenderModel Sender = "model"
)

// Visibility controls whether a message participates in prompt assembly.
// Hidden messages remain persisted but are excluded from model context.
type Visibility string

const (
	// VisibilityShow includes the message in history given to the model.
	VisibilityShow Visibility = "show"
	// VisibilityHide stores the message but keeps it out of model context.
	VisibilityHide Visibility = "hide"
)

// ConfigSnapshot captures the option state that produced a message. It is
// replayed for "tell me more" continuations and close-to-source insertion.
type ConfigSnapshot struct {
	WebSearch     bool `json:"web_search"`
	Scholarly     bool `json:"scholarly"`
	CodeExecution bool `json:"code_execution"`
	Diagrams      bool `json:"diagrams"`
	DetailLevel   int  `json:"detail_level"`
}

// Message is one persisted conversation unit. IDs are content fingerprints,
// not random: repeating an identical turn in the same conversation collides
// predictably instead of producing duplicates.
type Message struct {
	ID             string          `json:"message_id"`
	Text           string          `json:"text"`
	Sender         Sender          `json:"sender"`
	UserID         string          `json:"user_id"`
	ConversationID string          `json:"conversation_id"`
	Visibility     Visibility      `json:"show_hide"`
	Config         *ConfigSnapshot `json:"config,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// MessageID computes the deterministic fingerprint for a message from its
// text, sender and owning conversation.
func MessageID(text string, sender Sender, conversationID string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(conversationID))
	return hex.EncodeToString(h.Sum(nil))
}

// NewMessage constructs a message with its fingerprint id populated.
func NewMessage(text string, sender Sender, userID, conversationID string) Message {
	return Message{
		ID:             MessageID(text, sender, conversationID),
		Text:           text,
		Sender:         sender,
		UserID:         userID,
		ConversationID: conversationID,
		Visibility:     VisibilityShow,
		CreatedAt:      time.Now().UTC(),
	}
}

// UploadedDoc is one entry of a conversation's uploaded-document index.
// Entries are immutable once written; the list position is not an identity.
type UploadedDoc struct {
	DocID       string `json:"doc_id"`
	StoragePath string `json:"doc_storage_path"`
	SourceURL   string `json:"source_url,omitempty"`
}
