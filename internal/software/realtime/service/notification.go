package service

import (
	"context"
	"strings"

	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

var (
	errForeignRoleFeed       = apperr.Forbidden("only dispatch staff may subscribe to another role's notifications")
	errMissingNotificationID = apperr.Validation("notification id is required")
)

// JoinNotifications subscribes the connection to its role feed. The role defaults to
// the caller's own; dispatch staff may also watch other roles.
func (service *realtimeService) JoinNotifications(ctx context.Context, s ports.Session, role string) error {
	target := s.User.Role
	if strings.TrimSpace(role) != "" {
		parsed, err := user.ParseRole(role)
		if err != nil {
			return err
		}
		target = parsed
	}
	if target != s.User.Role && !s.User.Role.IsDispatch() {
		return errForeignRoleFeed
	}

	if err := service.join(ctx, s, room.NotificationsByUser(s.User.ID)); err != nil {
		return err
	}
	return service.join(ctx, s, room.NotificationsByRole(target))
}

func (service *realtimeService) SendNotification(ctx context.Context, s ports.Session, in ports.NotificationInput) (*notification.Notification, error) {
	target, err := notification.ResolveTarget(in.TargetUserID, in.TargetRole)
	if err != nil {
		return nil, err
	}
	typ := in.Type
	if typ == "" {
		typ = notification.TypeSystem
	}
	return service.notify(ctx, target, typ, in.Title, in.Message, in.RelatedID, in.Extra)
}

// notify broadcasts to the target's group and logs the entry in the background.
func (service *realtimeService) notify(
	ctx context.Context,
	target notification.Target,
	typ notification.Type,
	title, message, relatedID string,
	extra map[string]any,
) (*notification.Notification, error) {
	n, err := notification.New(uuid.NewString(), target, typ, title, message, relatedID)
	if err != nil {
		return nil, err
	}
	n.Extra = extra

	service.broadcast(ctx, target.Group(), contracts.EventNotification, contracts.NewNotificationPayload(n))

	logged := n.Clone()
	service.persist(ctx, "notification_log", map[string]any{"notification_id": n.ID, "type": n.Type}, func(ctx context.Context) error {
		return service.store.Notifications.Log(ctx, logged)
	})

	service.logger.Info(ctx, "notification_sent", "Notification broadcast", map[string]any{
		"notification_id": n.ID, "type": n.Type, "group": target.Group().String(),
	})
	return n, nil
}

// dispatchNotice is a notification for the dispatch room only. It is not logged.
func (service *realtimeService) dispatchNotice(ctx context.Context, typ notification.Type, title, message, relatedID string, extra map[string]any) {
	service.broadcast(ctx, room.Dispatch(), contracts.EventNotification, contracts.NotificationPayload{
		Type:      string(typ),
		Title:     title,
		Message:   message,
		RelatedID: relatedID,
		Timestamp: contracts.Now(),
		Extra:     extra,
	})
}

func (service *realtimeService) ListNotifications(ctx context.Context, s ports.Session, limit int) ([]*notification.Notification, error) {
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	limit = min(limit, maxNotificationLimit)

	ns, err := service.store.Notifications.ListForUser(ctx, s.User.ID, s.User.Role, limit)
	if err != nil {
		service.logger.Error(ctx, "notification_list_failed", "Failed to list notifications", err, nil)
		return nil, err
	}
	return ns, nil
}

func (service *realtimeService) MarkNotificationRead(ctx context.Context, s ports.Session, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingNotificationID
	}
	return service.store.Notifications.MarkRead(ctx, id, s.User.ID, s.User.Role)
}

func (service *realtimeService) MarkAllNotificationsRead(ctx context.Context, s ports.Session) (int, error) {
	n, err := service.store.Notifications.MarkAllRead(ctx, s.User.ID, s.User.Role)
	if err != nil {
		service.logger.Error(ctx, "notification_read_all_failed", "Failed to mark notifications read", err, nil)
		return 0, err
	}
	return n, nil
}

func (service *realtimeService) DeleteNotification(ctx context.Context, s ports.Session, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return errMissingNotificationID
	}
	return service.store.Notifications.Delete(ctx, id, s.User.ID, s.User.Role)
}
