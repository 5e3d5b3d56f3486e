package memstore

import (
	"context"
	"slices"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/ports"
)

type ConversationRepo struct {
	db *db
}

var _ ports.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(_ context.Context, conv *chat.Conversation) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.conversations[conv.ID]; ok {
		return false, nil
	}
	r.db.conversations[conv.ID] = conv.Clone()
	return true, nil
}

func (r *ConversationRepo) FindByID(_ context.Context, id string) (*chat.Conversation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	conv, ok := r.db.conversations[id]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	return conv.Clone(), nil
}

func (r *ConversationRepo) ListForUser(_ context.Context, userID string, limit int) ([]*chat.Conversation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*chat.Conversation
	for _, conv := range r.db.conversations {
		if !conv.Archived && conv.HasParticipant(userID) {
			out = append(out, conv.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *chat.Conversation) int {
		return lastActivity(b).Compare(lastActivity(a))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func lastActivity(c *chat.Conversation) time.Time {
	if c.LastMessage != nil {
		return c.LastMessage.Timestamp
	}
	return time.Time{}
}

func (r *ConversationRepo) RecordMessage(_ context.Context, conversationID string, preview chat.LastMessage, recipientID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.conversations[conversationID]
	if !ok {
		return chat.ErrConversationNotFound
	}
	conv.LastMessage = &preview
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = map[string]int{}
	}
	conv.UnreadCounts[recipientID]++
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ConversationRepo) AdjustUnread(_ context.Context, conversationID, userID string, delta int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.conversations[conversationID]
	if !ok {
		return chat.ErrConversationNotFound
	}
	if conv.UnreadCounts == nil {
		conv.UnreadCounts = map[string]int{}
	}
	conv.UnreadCounts[userID] = max(0, conv.UnreadCounts[userID]+delta)
	return nil
}

func (r *ConversationRepo) ResetUnread(_ context.Context, conversationID, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	conv, ok := r.db.conversations[conversationID]
	if !ok {
		return chat.ErrConversationNotFound
	}
	if conv.UnreadCounts != nil {
		conv.UnreadCounts[userID] = 0
	}
	return nil
}

type MessageRepo struct {
	db *db
}

var _ ports.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Save(_ context.Context, msg *chat.Message) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.messages[msg.ID]; !ok {
		// async saves may land out of order; keep ids sorted by creation time
		ids := r.db.byConv[msg.ConversationID]
		at := len(ids)
		for at > 0 && r.db.messages[ids[at-1]].CreatedAt.After(msg.CreatedAt) {
			at--
		}
		r.db.byConv[msg.ConversationID] = slices.Insert(ids, at, msg.ID)
	}
	r.db.messages[msg.ID] = msg.Clone()
	return nil
}

// FindByID also returns soft-deleted messages so callers can tell a repeated
// delete from an unknown id. Page reads hide them.
func (r *MessageRepo) FindByID(_ context.Context, id string) (*chat.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	msg, ok := r.db.messages[id]
	if !ok {
		return nil, chat.ErrMessageNotFound
	}
	return msg.Clone(), nil
}

func (r *MessageRepo) ListPage(_ context.Context, conversationID string, limit, skip int) ([]*chat.Message, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	if limit <= 0 {
		return nil, nil
	}
	ids := r.db.byConv[conversationID]
	out := make([]*chat.Message, 0, min(limit, len(ids)))
	skipped := 0
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		msg := r.db.messages[ids[i]]
		if msg.Deleted {
			continue
		}
		if skipped < skip {
			skipped++
			continue
		}
		out = append(out, msg.Clone())
	}
	return out, nil
}

func (r *MessageRepo) MarkRead(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	msg, ok := r.db.messages[id]
	if !ok || msg.Deleted {
		return false, chat.ErrMessageNotFound
	}
	return msg.MarkRead(at), nil
}

func (r *MessageRepo) MarkReadForRecipient(_ context.Context, conversationID, recipientID string, at time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n := 0
	for _, id := range r.db.byConv[conversationID] {
		msg := r.db.messages[id]
		if msg.RecipientID == recipientID && !msg.Deleted && msg.MarkRead(at) {
			n++
		}
	}
	return n, nil
}

func (r *MessageRepo) SoftDelete(_ context.Context, id string, at time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	msg, ok := r.db.messages[id]
	if !ok {
		return false, chat.ErrMessageNotFound
	}
	return msg.SoftDelete(at), nil
}
