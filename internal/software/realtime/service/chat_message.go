package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
)

// SendMessage validates, broadcasts to chat:<id> once and then persists in the
// background. A failed write never undoes the delivery.
func (service *realtimeService) SendMessage(ctx context.Context, s ports.Session, in ports.SendMessageInput) (*chat.Message, error) {
	// 1. reject empty content before touching anything
	if strings.TrimSpace(in.Content) == "" {
		return nil, chat.ErrEmptyContent
	}

	// 2. ensure that sender belongs to the conversation
	conv, err := service.memberConversation(ctx, s, in.ConversationID)
	if err != nil {
		return nil, err
	}

	// 3. resolve the recipient
	recipientID := strings.TrimSpace(in.RecipientID)
	if recipientID == "" {
		if other, ok := conv.OtherParticipant(s.User.ID); ok {
			recipientID = other.UserID
		}
	}
	if recipientID == s.User.ID || (recipientID != "" && !conv.HasParticipant(recipientID)) {
		return nil, chat.ErrRecipientNotMember
	}

	msg, err := chat.NewMessage(uuid.NewString(), conv.ID, s.User, recipientID, in.Content, in.Attachments)
	if err != nil {
		return nil, err
	}

	// 4. deliver
	service.broadcast(ctx, room.Chat(conv.ID), contracts.EventReceiveMessage, contracts.NewReceiveMessage(msg))

	// 5. persist message, preview and unread counter together
	done := service.trackPending(msg.ID)
	preview := chat.LastMessage{
		Content:   chat.Preview(msg.Content, service.opts.PreviewLength),
		SenderID:  msg.SenderID,
		Timestamp: msg.CreatedAt,
	}
	saved := msg.Clone()
	started := service.persist(ctx, "message_save", map[string]any{"message_id": msg.ID, "conversation_id": conv.ID}, func(ctx context.Context) error {
		defer done()
		return service.store.UoW.WithinTx(ctx, func(ctx context.Context) error {
			if err := service.store.Messages.Save(ctx, saved); err != nil {
				return err
			}
			return service.store.Conversations.RecordMessage(ctx, saved.ConversationID, preview, saved.RecipientID)
		})
	})
	if !started {
		done()
	}

	service.logger.Info(ctx, "chat_message_sent", "Message delivered", map[string]any{
		"message_id": msg.ID, "conversation_id": conv.ID,
	})
	return msg, nil
}

// Typing relays a typing indicator to the conversation group. Nothing is stored.
func (service *realtimeService) Typing(ctx context.Context, s ports.Session, conversationID string, typing bool) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return chat.ErrMissingConversationID
	}

	g := room.Chat(conversationID)
	if s.ConnID != "" {
		if !service.router.IsMember(s.ConnID, g) {
			return chat.ErrNotParticipant
		}
	} else if _, err := service.memberConversation(ctx, s, conversationID); err != nil {
		return err
	}

	event := contracts.EventUserTyping
	if !typing {
		event = contracts.EventUserStoppedTyping
	}
	service.broadcast(ctx, g, event, contracts.UserTyping{
		UserID:         s.User.ID,
		UserName:       s.User.DisplayName(),
		ConversationID: conversationID,
	})
	return nil
}

// MarkRead flips the read flag for the recipient. Only the first transition
// decrements the unread counter and notifies the group.
func (service *realtimeService) MarkRead(ctx context.Context, s ports.Session, messageID string) (*chat.Message, error) {
	msg, err := service.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Deleted {
		return nil, chat.ErrMessageNotFound
	}

	// 1. ensure that caller is the recipient
	if err := msg.CanMarkRead(s.User.ID); err != nil {
		return nil, err
	}
	if msg.Read {
		return msg, nil
	}

	// 2. flip the flag and the counter together
	now := time.Now().UTC()
	changed := false
	err = service.store.UoW.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		changed, err = service.store.Messages.MarkRead(ctx, msg.ID, now)
		if err != nil || !changed {
			return err
		}
		return service.store.Conversations.AdjustUnread(ctx, msg.ConversationID, msg.RecipientID, -1)
	})
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		service.logger.Error(ctx, "persistence_failed", "Failed to store read receipt", err, map[string]any{
			"operation": "message_mark_read", "message_id": msg.ID,
		})
		changed = true
	}
	if !changed {
		return msg, nil
	}
	msg.MarkRead(now)

	// 3. tell the conversation
	service.broadcast(ctx, room.Chat(msg.ConversationID), contracts.EventMessageRead, contracts.MessageRead{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		ReadBy:         s.User.ID,
		ReadAt:         contracts.FormatTime(*msg.ReadAt),
	})
	service.logger.Info(ctx, "chat_message_read", "Message marked read", map[string]any{"message_id": msg.ID})
	return msg, nil
}

// DeleteMessage soft-deletes a message. Only its sender may do so; deleting twice
// is a no-op.
func (service *realtimeService) DeleteMessage(ctx context.Context, s ports.Session, messageID string) (*chat.Message, error) {
	msg, err := service.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	// 1. ensure that caller is the sender
	if err := msg.CanDelete(s.User.ID); err != nil {
		service.logger.Warn(ctx, "chat_delete_denied", "Only the sender may delete", map[string]any{"message_id": msg.ID})
		return nil, err
	}
	if msg.Deleted {
		return msg, nil
	}

	// 2. flag it
	now := time.Now().UTC()
	changed, err := service.store.Messages.SoftDelete(ctx, msg.ID, now)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		service.logger.Error(ctx, "persistence_failed", "Failed to store delete flag", err, map[string]any{
			"operation": "message_delete", "message_id": msg.ID,
		})
		changed = true
	}
	if !changed {
		return msg, nil
	}
	msg.SoftDelete(now)

	// 3. tell the conversation
	service.broadcast(ctx, room.Chat(msg.ConversationID), contracts.EventMessageDeleted, contracts.MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		DeletedAt:      contracts.FormatTime(*msg.DeletedAt),
	})
	service.logger.Info(ctx, "chat_message_deleted", "Message soft-deleted", map[string]any{"message_id": msg.ID})
	return msg, nil
}

// loadMessage waits for a pending save of the same message and reads it back.
func (service *realtimeService) loadMessage(ctx context.Context, messageID string) (*chat.Message, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, chat.ErrMissingMessageID
	}
	service.awaitPending(ctx, messageID)

	msg, err := service.store.Messages.FindByID(ctx, messageID)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			service.logger.Error(ctx, "message_lookup_failed", "Failed to read message", err, map[string]any{"message_id": messageID})
		}
		return nil, err
	}
	return msg, nil
}

// trackPending registers an in-flight save; the returned func marks it finished.
func (service *realtimeService) trackPending(messageID string) func() {
	ch := make(chan struct{})
	service.pendingMu.Lock()
	service.pending[messageID] = ch
	service.pendingMu.Unlock()

	return func() {
		service.pendingMu.Lock()
		if service.pending[messageID] == ch {
			delete(service.pending, messageID)
		}
		service.pendingMu.Unlock()
		close(ch)
	}
}

func (service *realtimeService) awaitPending(ctx context.Context, messageID string) {
	service.pendingMu.Lock()
	ch, ok := service.pending[messageID]
	service.pendingMu.Unlock()
	if !ok {
		return
	}

	timer := time.NewTimer(service.opts.WriteTimeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	case <-ctx.Done():
	}
}
