package contracts

import (
	"strings"

	"fleet-realtime/internal/domain/chat"
)

type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// StartConversationRequest accepts "userId" as an alias of "otherUserId".
type StartConversationRequest struct {
	OtherUserID   string `json:"otherUserId"`
	UserID        string `json:"userId,omitempty"`
	OtherUserName string `json:"otherUserName,omitempty"`
	OtherUserRole string `json:"otherUserRole,omitempty"`
}

func (r StartConversationRequest) Other() string {
	if id := strings.TrimSpace(r.OtherUserID); id != "" {
		return id
	}
	return strings.TrimSpace(r.UserID)
}

// SendMessageRequest carries the text in "message" (socket) or "content" (REST).
// SenderRole is accepted for compatibility and ignored; the verified role is used.
type SendMessageRequest struct {
	ConversationID string           `json:"conversationId"`
	Message        string           `json:"message,omitempty"`
	Content        string           `json:"content,omitempty"`
	RecipientID    string           `json:"recipientId,omitempty"`
	SenderRole     string           `json:"senderRole,omitempty"`
	Attachments    []AttachmentView `json:"attachments,omitempty"`
}

func (r SendMessageRequest) Text() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Content
}

func (r SendMessageRequest) DomainAttachments() []chat.Attachment {
	if len(r.Attachments) == 0 {
		return nil
	}
	out := make([]chat.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		out = append(out, chat.Attachment{URL: a.URL, Type: a.Type, Name: a.Name})
	}
	return out
}

type MessageRef struct {
	MessageID string `json:"messageId"`
}

type ConversationStarted struct {
	ConversationID string   `json:"conversationId"`
	Participants   []string `json:"participants"`
}

type AttachmentView struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

// ReceiveMessage is the chat:receive_message payload.
type ReceiveMessage struct {
	ID             string           `json:"_id"`
	ConversationID string           `json:"conversationId"`
	SenderID       string           `json:"senderId"`
	SenderName     string           `json:"senderName"`
	SenderRole     string           `json:"senderRole"`
	RecipientID    string           `json:"recipientId"`
	Content        string           `json:"content"`
	Timestamp      string           `json:"timestamp"`
	Read           bool             `json:"read"`
	Attachments    []AttachmentView `json:"attachments,omitempty"`
}

func NewReceiveMessage(msg *chat.Message) ReceiveMessage {
	return ReceiveMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		SenderRole:     msg.SenderRole.String(),
		RecipientID:    msg.RecipientID,
		Content:        msg.Content,
		Timestamp:      FormatTime(msg.CreatedAt),
		Read:           msg.Read,
		Attachments:    attachmentViews(msg.Attachments),
	}
}

// MessageView is a message as listed over REST.
type MessageView struct {
	ReceiveMessage
	ReadAt string `json:"readAt,omitempty"`
}

func NewMessageView(msg *chat.Message) MessageView {
	view := MessageView{ReceiveMessage: NewReceiveMessage(msg)}
	if msg.ReadAt != nil {
		view.ReadAt = FormatTime(*msg.ReadAt)
	}
	return view
}

func NewMessageViews(msgs []*chat.Message) []MessageView {
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewMessageView(m))
	}
	return out
}

type UserTyping struct {
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	ConversationID string `json:"conversationId"`
}

type MessageRead struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	ReadBy         string `json:"readBy"`
	ReadAt         string `json:"readAt"`
}

type MessageDeleted struct {
	MessageID      string `json:"messageId"`
	ConversationID string `json:"conversationId"`
	DeletedAt      string `json:"deletedAt"`
}

type ParticipantView struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	UserRole string `json:"userRole,omitempty"`
}

type LastMessageView struct {
	Content   string `json:"content"`
	SenderID  string `json:"senderId"`
	Timestamp string `json:"timestamp"`
}

// ConversationView is a conversation as listed over REST. UnreadCount is the caller's own counter.
type ConversationView struct {
	ConversationID string            `json:"conversationId"`
	Participants   []ParticipantView `json:"participants"`
	Type           string            `json:"type"`
	Name           string            `json:"name,omitempty"`
	LastMessage    *LastMessageView  `json:"lastMessage,omitempty"`
	UnreadCounts   map[string]int    `json:"unreadCounts"`
	UnreadCount    int               `json:"unreadCount"`
	Archived       bool              `json:"archived"`
	CreatedAt      string            `json:"createdAt"`
	UpdatedAt      string            `json:"updatedAt"`
}

func NewConversationView(conv *chat.Conversation, viewerID string) ConversationView {
	view := ConversationView{
		ConversationID: conv.ID,
		Type:           string(conv.Type),
		Name:           conv.Name,
		UnreadCounts:   map[string]int{},
		Archived:       conv.Archived,
		CreatedAt:      FormatTime(conv.CreatedAt),
		UpdatedAt:      FormatTime(conv.UpdatedAt),
	}
	for _, p := range conv.Participants {
		view.Participants = append(view.Participants, ParticipantView{
			UserID:   p.UserID,
			UserName: p.UserName,
			UserRole: p.UserRole.String(),
		})
	}
	for k, v := range conv.UnreadCounts {
		view.UnreadCounts[k] = v
	}
	view.UnreadCount = conv.UnreadCounts[viewerID]
	if lm := conv.LastMessage; lm != nil {
		view.LastMessage = &LastMessageView{
			Content:   lm.Content,
			SenderID:  lm.SenderID,
			Timestamp: FormatTime(lm.Timestamp),
		}
	}
	return view
}

func NewConversationViews(convs []*chat.Conversation, viewerID string) []ConversationView {
	out := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		out = append(out, NewConversationView(c, viewerID))
	}
	return out
}

func attachmentViews(in []chat.Attachment) []AttachmentView {
	if len(in) == 0 {
		return nil
	}
	out := make([]AttachmentView, 0, len(in))
	for _, a := range in {
		out = append(out, AttachmentView{URL: a.URL, Type: a.Type, Name: a.Name})
	}
	return out
}
