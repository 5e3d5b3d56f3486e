package service

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/ports"
)

// StartConversation finds or creates the direct conversation between the caller
// and the other user. The id is the same whether called over REST or the socket.
func (service *realtimeService) StartConversation(ctx context.Context, s ports.Session, in ports.StartConversationInput) (*chat.Conversation, error) {
	// 1. derive the deterministic id
	id, err := chat.DirectConversationID(s.User.ID, in.OtherUserID)
	if err != nil {
		return nil, err
	}

	// 2. find
	conv, err := service.store.Conversations.FindByID(ctx, id)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrNotFound):
		// 3. or create
		conv, err = service.newConversation(ctx, s.User, in)
		if err != nil {
			return nil, err
		}
	default:
		service.logger.Error(ctx, "conversation_lookup_failed", "Store unavailable, using unsaved conversation", err, map[string]any{
			"conversation_id": id,
		})
		conv, err = service.buildConversation(s.User, in)
		if err != nil {
			return nil, err
		}
	}

	// 4. the caller opens the conversation right away
	if err := service.join(ctx, s, room.Chat(conv.ID)); err != nil {
		return nil, err
	}

	service.logger.Info(ctx, "conversation_started", "Conversation ready", map[string]any{
		"conversation_id": conv.ID,
	})
	return conv, nil
}

func (service *realtimeService) buildConversation(self user.Identity, in ports.StartConversationInput) (*chat.Conversation, error) {
	other := chat.Participant{UserID: strings.TrimSpace(in.OtherUserID), UserName: strings.TrimSpace(in.OtherUserName)}
	if known, ok := service.knownIdentity(other.UserID); ok {
		other.UserName, other.UserRole = known.DisplayName(), known.Role
	} else if role, err := user.ParseRole(in.OtherUserRole); err == nil {
		other.UserRole = role
	}
	return chat.NewDirectConversation(
		chat.Participant{UserID: self.ID, UserName: self.DisplayName(), UserRole: self.Role},
		other,
	)
}

func (service *realtimeService) newConversation(ctx context.Context, self user.Identity, in ports.StartConversationInput) (*chat.Conversation, error) {
	conv, err := service.buildConversation(self, in)
	if err != nil {
		return nil, err
	}

	created, err := service.store.Conversations.Create(ctx, conv)
	if err != nil {
		service.logger.Error(ctx, "persistence_failed", "Failed to save conversation", err, map[string]any{
			"operation": "conversation_create", "conversation_id": conv.ID,
		})
		return conv, nil
	}
	if created {
		return conv, nil
	}

	// lost a race with the other participant; return the stored copy
	stored, err := service.store.Conversations.FindByID(ctx, conv.ID)
	if err != nil {
		return conv, nil
	}
	return stored, nil
}

// resolveConversation loads a conversation. When the store itself fails, a direct
// conversation is rebuilt from its id so chat keeps working without durability.
func (service *realtimeService) resolveConversation(ctx context.Context, conversationID string) (*chat.Conversation, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, chat.ErrMissingConversationID
	}

	conv, err := service.store.Conversations.FindByID(ctx, conversationID)
	if err == nil {
		return conv, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, chat.ErrConversationNotFound
	}

	pair, ok := chat.ParticipantsFromID(conversationID)
	if !ok {
		return nil, err
	}
	service.logger.Warn(ctx, "conversation_degraded", "Store unavailable, deriving participants from id", map[string]any{
		"conversation_id": conversationID, "error": err.Error(),
	})

	participants := make([]chat.Participant, 0, len(pair))
	for _, id := range pair {
		p := chat.Participant{UserID: id}
		if known, ok := service.knownIdentity(id); ok {
			p.UserName, p.UserRole = known.DisplayName(), known.Role
		}
		participants = append(participants, p)
	}
	return &chat.Conversation{
		ID:           conversationID,
		Participants: participants,
		Type:         chat.TypeDirect,
		UnreadCounts: map[string]int{},
	}, nil
}

// memberConversation resolves the conversation and checks the caller belongs to it.
func (service *realtimeService) memberConversation(ctx context.Context, s ports.Session, conversationID string) (*chat.Conversation, error) {
	conv, err := service.resolveConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(s.User.ID) {
		service.logger.Warn(ctx, "chat_forbidden", "Caller is not a participant", map[string]any{
			"conversation_id": conv.ID,
		})
		return nil, chat.ErrNotParticipant
	}
	return conv, nil
}

// JoinConversation subscribes the connection to chat:<id>. A direct conversation
// that has not been stored yet may still be joined by either of its two users.
func (service *realtimeService) JoinConversation(ctx context.Context, s ports.Session, conversationID string) error {
	conv, err := service.memberConversation(ctx, s, conversationID)
	if errors.Is(err, chat.ErrConversationNotFound) {
		pair, ok := chat.ParticipantsFromID(strings.TrimSpace(conversationID))
		if !ok || !slices.Contains(pair[:], s.User.ID) {
			return err
		}
		return service.join(ctx, s, room.Chat(strings.TrimSpace(conversationID)))
	}
	if err != nil {
		return err
	}
	return service.join(ctx, s, room.Chat(conv.ID))
}

func (service *realtimeService) ListConversations(ctx context.Context, s ports.Session) ([]*chat.Conversation, error) {
	convs, err := service.store.Conversations.ListForUser(ctx, s.User.ID, service.opts.ConversationLimit)
	if err != nil {
		service.logger.Error(ctx, "conversation_list_failed", "Failed to list conversations", err, nil)
		return nil, err
	}
	return convs, nil
}

// MessagePage returns one window of a conversation, oldest first. Reading the page
// marks every message addressed to the caller as read.
func (service *realtimeService) MessagePage(ctx context.Context, s ports.Session, conversationID string, limit, skip int) ([]*chat.Message, error) {
	// 1. ensure that caller belongs to the conversation
	conv, err := service.memberConversation(ctx, s, conversationID)
	if err != nil {
		return nil, err
	}

	// 2. fetch the newest window
	if limit <= 0 {
		limit = service.opts.PageSize
	}
	limit = min(limit, service.opts.MaxPageSize)
	skip = max(skip, 0)

	page, err := service.store.Messages.ListPage(ctx, conv.ID, limit, skip)
	if err != nil {
		service.logger.Error(ctx, "message_page_failed", "Failed to read messages", err, map[string]any{
			"conversation_id": conv.ID,
		})
		return nil, err
	}
	slices.Reverse(page)

	// 3. reading triggers read receipts
	now := time.Now().UTC()
	var marked int
	err = service.store.UoW.WithinTx(ctx, func(ctx context.Context) error {
		n, err := service.store.Messages.MarkReadForRecipient(ctx, conv.ID, s.User.ID, now)
		if err != nil {
			return err
		}
		marked = n
		return service.store.Conversations.ResetUnread(ctx, conv.ID, s.User.ID)
	})
	if err != nil {
		service.logger.Error(ctx, "persistence_failed", "Failed to mark page read", err, map[string]any{
			"operation": "message_page_read", "conversation_id": conv.ID,
		})
	}

	service.logger.Debug(ctx, "message_page_read", "Message page served", map[string]any{
		"conversation_id": conv.ID, "count": len(page), "marked_read": marked,
	})
	return page, nil
}
