package chat

import (
	"slices"
	"strings"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
)

var (
	ErrEmptyContent       = apperr.Validation("message content is required")
	ErrMissingRecipient   = apperr.Validation("recipientId is required")
	ErrRecipientNotMember = apperr.Validation("recipient is not a participant of this conversation")
	ErrMissingMessageID   = apperr.Validation("messageId is required")
	ErrMessageNotFound    = apperr.NotFound("message not found")
	ErrNotSender          = apperr.Forbidden("only the sender can delete this message")
	ErrNotRecipient       = apperr.Forbidden("only the recipient can mark this message read")
)

// Attachment is a file reference carried by a message.
type Attachment struct {
	URL  string
	Type string
	Name string
}

// Message is the domain entity corresponding to the `messages` table.
// After delivery only the read and delete flags change.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	SenderName     string
	SenderRole     user.Role
	RecipientID    string
	Content        string
	Read           bool
	ReadAt         *time.Time
	Deleted        bool
	DeletedAt      *time.Time
	Attachments    []Attachment
	CreatedAt      time.Time
}

// NewMessage builds a message from an authenticated sender. Content is stored as sent.
func NewMessage(id, conversationID string, sender user.Identity, recipientID, content string, attachments []Attachment) (*Message, error) {
	msg := &Message{
		ID:             id,
		ConversationID: strings.TrimSpace(conversationID),
		SenderID:       sender.ID,
		SenderName:     sender.DisplayName(),
		SenderRole:     sender.Role,
		RecipientID:    strings.TrimSpace(recipientID),
		Content:        content,
		Attachments:    attachments,
		CreatedAt:      time.Now().UTC(),
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

// Validate checks invariants of the Message entity.
func (msg *Message) Validate() error {
	if msg.ConversationID == "" {
		return ErrMissingConversationID
	}
	if strings.TrimSpace(msg.Content) == "" {
		return ErrEmptyContent
	}
	if msg.RecipientID == "" {
		return ErrMissingRecipient
	}
	if msg.SenderID == "" {
		return user.ErrMissingUserID
	}
	return nil
}

// MarkRead flips the read flag once. It reports whether the state changed.
func (msg *Message) MarkRead(at time.Time) bool {
	if msg.Read {
		return false
	}
	at = at.UTC()
	msg.Read = true
	msg.ReadAt = &at
	return true
}

// SoftDelete flips the delete flag once. It reports whether the state changed.
func (msg *Message) SoftDelete(at time.Time) bool {
	if msg.Deleted {
		return false
	}
	at = at.UTC()
	msg.Deleted = true
	msg.DeletedAt = &at
	return true
}

// CanDelete reports whether userID may soft-delete the message.
func (msg *Message) CanDelete(userID string) error {
	if msg.SenderID != userID {
		return ErrNotSender
	}
	return nil
}

// CanMarkRead reports whether userID may mark the message read.
func (msg *Message) CanMarkRead(userID string) error {
	if msg.RecipientID != userID {
		return ErrNotRecipient
	}
	return nil
}

// Clone returns a deep copy.
func (msg *Message) Clone() *Message {
	out := *msg
	out.Attachments = slices.Clone(msg.Attachments)
	if msg.ReadAt != nil {
		at := *msg.ReadAt
		out.ReadAt = &at
	}
	if msg.DeletedAt != nil {
		at := *msg.DeletedAt
		out.DeletedAt = &at
	}
	return &out
}
