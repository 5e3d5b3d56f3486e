package ports

import (
	"context"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/contracts"
)

// Subscriber is one live connection as seen by the router.
// Deliver must not block; it reports false when the frame was dropped.
type Subscriber interface {
	ID() string
	Deliver(frame []byte) bool
}

// Backplane relays broadcasts between processes.
type Backplane interface {
	Publish(ctx context.Context, b contracts.Broadcast) error
	// Subscribe blocks, invoking fn for every broadcast, until ctx ends.
	Subscribe(ctx context.Context, fn func(context.Context, contracts.Broadcast)) error
	Close() error
}

// Session identifies the caller of an operation. ConnID is empty for REST calls.
type Session struct {
	ConnID string
	User   user.Identity
}

// ----- DTOs -----

// StartConversationInput names the other party; name and role are optional hints.
type StartConversationInput struct {
	OtherUserID   string
	OtherUserName string
	OtherUserRole string
}

type SendMessageInput struct {
	ConversationID string
	RecipientID    string
	Content        string
	Attachments    []chat.Attachment
}

type NotificationInput struct {
	TargetUserID string
	TargetRole   string
	Type         notification.Type
	Title        string
	Message      string
	RelatedID    string
	Extra        map[string]any
}

// ----- Realtime Service Interface -----

// TrackingService owns the Location Cache side of the realtime layer.
type TrackingService interface {
	JoinTracking(ctx context.Context, s Session, driverID, vehicleID string) error
	UpdateLocation(ctx context.Context, s Session, reading geo.Reading) (geo.Location, error)
	StopTracking(ctx context.Context, s Session, driverID, vehicleID string) error
	CurrentLocation(ctx context.Context, driverID string) (geo.Location, error)
	AllLocations(ctx context.Context) []geo.Location
	LocationHistory(ctx context.Context, driverID string) []geo.Location
	LocationTrail(ctx context.Context, driverID string, since time.Time, limit int) ([]*geo.HistoryRecord, error)
	ActiveDrivers(ctx context.Context) int
}

// ChatService owns conversations and messages.
type ChatService interface {
	StartConversation(ctx context.Context, s Session, in StartConversationInput) (*chat.Conversation, error)
	JoinConversation(ctx context.Context, s Session, conversationID string) error
	SendMessage(ctx context.Context, s Session, in SendMessageInput) (*chat.Message, error)
	Typing(ctx context.Context, s Session, conversationID string, typing bool) error
	MarkRead(ctx context.Context, s Session, messageID string) (*chat.Message, error)
	DeleteMessage(ctx context.Context, s Session, messageID string) (*chat.Message, error)
	ListConversations(ctx context.Context, s Session) ([]*chat.Conversation, error)
	MessagePage(ctx context.Context, s Session, conversationID string, limit, skip int) ([]*chat.Message, error)
}

// NotificationService owns notification targeting and the log.
type NotificationService interface {
	JoinNotifications(ctx context.Context, s Session, role string) error
	SendNotification(ctx context.Context, s Session, in NotificationInput) (*notification.Notification, error)
	AssignmentCreated(ctx context.Context, s Session, req contracts.AssignmentCreatedRequest) error
	AssignmentStatusUpdate(ctx context.Context, s Session, req contracts.AssignmentStatusRequest) error
	MaintenanceAlert(ctx context.Context, s Session, req contracts.MaintenanceAlertRequest) error
	FuelAlert(ctx context.Context, s Session, req contracts.FuelAlertRequest) error
	ListNotifications(ctx context.Context, s Session, limit int) ([]*notification.Notification, error)
	MarkNotificationRead(ctx context.Context, s Session, id string) error
	MarkAllNotificationsRead(ctx context.Context, s Session) (int, error)
	DeleteNotification(ctx context.Context, s Session, id string) error
}

// RealtimeService exposes the boundary used by the websocket and REST handlers.
type RealtimeService interface {
	TrackingService
	ChatService
	NotificationService

	Connect(ctx context.Context, sub Subscriber, identity user.Identity) (contracts.AuthSuccess, error)
	Disconnect(ctx context.Context, connID string)
	JoinDispatch(ctx context.Context, s Session) error
	JoinDrivers(ctx context.Context, s Session) error
	Presence(ctx context.Context, userID string) contracts.Presence
	Stats(ctx context.Context) contracts.Stats

	// RunRetention sweeps expired log rows until ctx ends.
	RunRetention(ctx context.Context) error
	// Drain waits for in-flight persistence writes.
	Drain(ctx context.Context) error
}
