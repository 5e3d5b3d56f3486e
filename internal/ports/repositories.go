package ports

import (
	"context"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
)

// UnitOfWork interface is used to manage transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ConversationRepository stores conversations and their denormalized counters.
type ConversationRepository interface {
	// Create inserts conv unless a row with the same id exists; created reports which happened.
	Create(ctx context.Context, conv *chat.Conversation) (created bool, err error)
	FindByID(ctx context.Context, id string) (*chat.Conversation, error)
	// ListForUser returns non-archived conversations, newest preview first.
	ListForUser(ctx context.Context, userID string, limit int) ([]*chat.Conversation, error)
	// RecordMessage sets the last-message preview and bumps the recipient's unread counter.
	RecordMessage(ctx context.Context, conversationID string, preview chat.LastMessage, recipientID string) error
	AdjustUnread(ctx context.Context, conversationID, userID string, delta int) error
	ResetUnread(ctx context.Context, conversationID, userID string) error
}

// MessageRepository stores chat messages. Soft-deleted rows are hidden from reads.
type MessageRepository interface {
	Save(ctx context.Context, msg *chat.Message) error
	// FindByID returns soft-deleted messages too; check Deleted.
	FindByID(ctx context.Context, id string) (*chat.Message, error)
	// ListPage returns up to limit messages newest first after skipping skip.
	ListPage(ctx context.Context, conversationID string, limit, skip int) ([]*chat.Message, error)
	// MarkRead flips one message; changed is false when it was already read.
	MarkRead(ctx context.Context, id string, at time.Time) (changed bool, err error)
	// MarkReadForRecipient flips every unread message addressed to recipientID.
	MarkReadForRecipient(ctx context.Context, conversationID, recipientID string, at time.Time) (int, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (changed bool, err error)
}

// NotificationRepository is the time-boxed notification log.
type NotificationRepository interface {
	Log(ctx context.Context, n *notification.Notification) error
	// ListForUser returns entries addressed to the user or to the user's role, newest first.
	ListForUser(ctx context.Context, userID string, role user.Role, limit int) ([]*notification.Notification, error)
	// MarkRead and Delete only touch entries visible to the user; others are not found.
	MarkRead(ctx context.Context, id, userID string, role user.Role) error
	MarkAllRead(ctx context.Context, userID string, role user.Role) (int, error)
	Delete(ctx context.Context, id, userID string, role user.Role) error
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// LocationHistoryRepository defines the methods for archiving location history data.
type LocationHistoryRepository interface {
	Archive(ctx context.Context, record *geo.HistoryRecord) error
	ListForDriver(ctx context.Context, driverID string, since time.Time, limit int) ([]*geo.HistoryRecord, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// Store bundles the repositories of one backend.
type Store struct {
	UoW           UnitOfWork
	Conversations ConversationRepository
	Messages      MessageRepository
	Notifications NotificationRepository
	Locations     LocationHistoryRepository
}
