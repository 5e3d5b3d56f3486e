package service

import (
	"context"

	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"
)

var errDispatchOnly = apperr.Forbidden("only admin, manager or dispatcher may join dispatch")

// Connect registers an authenticated connection and joins its direct notification group.
func (service *realtimeService) Connect(ctx context.Context, sub ports.Subscriber, identity user.Identity) (contracts.AuthSuccess, error) {
	if err := identity.Validate(); err != nil {
		return contracts.AuthSuccess{}, err
	}

	service.mu.Lock()
	service.sessions[sub.ID()] = &session{sub: sub, identity: identity}
	service.directory[identity.ID] = identity
	first := service.presence.Add(identity.ID, sub.ID())
	_, err := service.router.Join(sub, room.NotificationsByUser(identity.ID))
	service.mu.Unlock()
	if err != nil {
		return contracts.AuthSuccess{}, err
	}

	service.logger.Info(ctx, "ws_connected", "Connection registered", map[string]any{
		"role": identity.Role, "first_connection": first,
	})

	return contracts.AuthSuccess{
		UserID:       identity.ID,
		Name:         identity.DisplayName(),
		Role:         identity.Role.String(),
		ConnectionID: sub.ID(),
		Timestamp:    contracts.Now(),
	}, nil
}

// Disconnect removes the connection from every group and from presence in one
// critical section. Calling it twice is harmless.
func (service *realtimeService) Disconnect(ctx context.Context, connID string) {
	service.mu.Lock()
	sess, ok := service.sessions[connID]
	if !ok {
		service.mu.Unlock()
		return
	}
	delete(service.sessions, connID)
	left := service.router.LeaveAll(connID)
	offline := service.presence.Remove(sess.identity.ID, connID)
	service.mu.Unlock()

	service.logger.Info(ctx, "ws_disconnected", "Connection cleaned up", map[string]any{
		"groups_left": len(left), "user_offline": offline,
	})
}

func (service *realtimeService) JoinDispatch(ctx context.Context, s ports.Session) error {
	if !s.User.Role.IsDispatch() {
		service.logger.Warn(ctx, "join_dispatch_denied", "Role may not join dispatch", map[string]any{"role": s.User.Role})
		return errDispatchOnly
	}
	return service.join(ctx, s, room.Dispatch())
}

func (service *realtimeService) JoinDrivers(ctx context.Context, s ports.Session) error {
	return service.join(ctx, s, room.Drivers())
}

// knownIdentity returns the identity a user last connected with.
func (service *realtimeService) knownIdentity(userID string) (user.Identity, bool) {
	service.mu.RLock()
	defer service.mu.RUnlock()
	id, ok := service.directory[userID]
	return id, ok
}
