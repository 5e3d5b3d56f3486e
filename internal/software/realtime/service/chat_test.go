package service

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartConversationIsCommutativeAndIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, alice := h.connect(t, "c-a", "alice", user.RoleManager)
	_, bob := h.connect(t, "c-b", "bob", user.RoleDriver)

	first, err := h.svc.StartConversation(ctx, alice, ports.StartConversationInput{OtherUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", first.ID)
	assert.Equal(t, []string{"alice", "bob"}, first.ParticipantIDs())
	assert.True(t, h.router.IsMember("c-a", room.Chat("alice_bob")))

	other, p := first.OtherParticipant("alice")
	require.True(t, p)
	assert.Equal(t, user.RoleDriver, other.UserRole, "role comes from the connected identity")

	second, err := h.svc.StartConversation(ctx, bob, ports.StartConversationInput{OtherUserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// REST caller, no connection
	third, err := h.svc.StartConversation(ctx, ports.Session{User: alice.User}, ports.StartConversationInput{OtherUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)

	convs, err := h.svc.ListConversations(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestStartConversationRejectsBadPairs(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, alice := h.connect(t, "c-a", "alice", user.RoleManager)

	tests := []struct {
		name  string
		other string
		want  error
	}{
		{"self", "alice", chat.ErrSelfConversation},
		{"missing", "  ", chat.ErrMissingOtherUser},
		{"separator", "bo_b", chat.ErrSeparatorInUserID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.StartConversation(ctx, alice, ports.StartConversationInput{OtherUserID: tt.other})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func startChat(t *testing.T, h *harness) (*member, ports.Session, *member, ports.Session, string) {
	t.Helper()
	ctx := context.Background()
	am, alice := h.connect(t, "c-a", "alice", user.RoleManager)
	bm, bob := h.connect(t, "c-b", "bob", user.RoleDriver)

	conv, err := h.svc.StartConversation(ctx, alice, ports.StartConversationInput{OtherUserID: "bob"})
	require.NoError(t, err)
	require.NoError(t, h.svc.JoinConversation(ctx, bob, conv.ID))
	return am, alice, bm, bob, conv.ID
}

func TestSendMessageDeliversOnceThenPersists(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	am, alice, bm, _, convID := startChat(t, h)

	msg, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: "  hello  "})
	require.NoError(t, err)
	assert.Equal(t, "bob", msg.RecipientID, "recipient derived from the pair")

	assert.Equal(t, []string{contracts.EventReceiveMessage}, bm.events())
	assert.Equal(t, []string{contracts.EventReceiveMessage}, am.events())
	got := bm.payload(t, contracts.EventReceiveMessage, 0)
	assert.Equal(t, "  hello  ", got["content"], "content is delivered as sent")
	assert.Equal(t, false, got["read"])
	assert.Equal(t, "alice", got["senderId"])
	assert.Equal(t, "manager", got["senderRole"])
	assert.Equal(t, msg.ID, got["_id"])

	h.drain(t)
	stored, err := h.store.Messages.FindByID(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "  hello  ", stored.Content)

	conv, err := h.store.Conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessage)
	assert.Equal(t, 1, conv.UnreadCounts["bob"])
}

func TestSendMessagePreviewIsTruncated(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, alice, _, _, convID := startChat(t, h)

	_, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: strings.Repeat("é", 25)})
	require.NoError(t, err)
	h.drain(t)

	conv, err := h.store.Conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), conv.LastMessage.Content)
}

func TestSendMessageRejections(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	am, alice, bm, _, convID := startChat(t, h)
	_, eve := h.connect(t, "c-e", "eve", user.RoleMechanic)
	am.reset()
	bm.reset()

	tests := []struct {
		name string
		s    ports.Session
		in   ports.SendMessageInput
		want error
	}{
		{"empty", alice, ports.SendMessageInput{ConversationID: convID, Content: "   "}, chat.ErrEmptyContent},
		{"outsider", eve, ports.SendMessageInput{ConversationID: convID, Content: "hi"}, chat.ErrNotParticipant},
		{"unknown conversation", alice, ports.SendMessageInput{ConversationID: "alice_zed", Content: "hi"}, chat.ErrConversationNotFound},
		{"recipient outside", alice, ports.SendMessageInput{ConversationID: convID, Content: "hi", RecipientID: "eve"}, chat.ErrRecipientNotMember},
		{"recipient is sender", alice, ports.SendMessageInput{ConversationID: convID, Content: "hi", RecipientID: "alice"}, chat.ErrRecipientNotMember},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.SendMessage(ctx, tt.s, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	h.drain(t)
	assert.Empty(t, am.events())
	assert.Empty(t, bm.events())
	page, err := h.store.Messages.ListPage(ctx, convID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestMessagesArriveInSendOrder(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, alice, bm, _, convID := startChat(t, h)

	for _, text := range []string{"one", "two", "three"} {
		_, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: text})
		require.NoError(t, err)
	}
	for i, text := range []string{"one", "two", "three"} {
		assert.Equal(t, text, bm.payload(t, contracts.EventReceiveMessage, i)["content"])
	}
}

func TestOnlySenderCanDelete(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	am, alice, bm, bob, convID := startChat(t, h)

	msg, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: "secret"})
	require.NoError(t, err)
	am.reset()
	bm.reset()

	_, err = h.svc.DeleteMessage(ctx, bob, msg.ID)
	assert.ErrorIs(t, err, chat.ErrNotSender)
	assert.Empty(t, bm.events())

	page, err := h.svc.MessagePage(ctx, bob, convID, 0, 0)
	require.NoError(t, err)
	require.Len(t, page, 1, "message stays visible")

	deleted, err := h.svc.DeleteMessage(ctx, alice, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, []string{contracts.EventMessageDeleted}, bm.events())

	_, err = h.svc.DeleteMessage(ctx, alice, msg.ID)
	require.NoError(t, err, "deleting twice is not an error")
	assert.Len(t, bm.events(), 1, "second delete has no effect")

	page, err = h.svc.MessagePage(ctx, bob, convID, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page)

	_, err = h.svc.DeleteMessage(ctx, alice, "nope")
	assert.ErrorIs(t, err, chat.ErrMessageNotFound)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	am, alice, _, bob, convID := startChat(t, h)

	msg, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: "ping"})
	require.NoError(t, err)
	am.reset()

	_, err = h.svc.MarkRead(ctx, alice, msg.ID)
	assert.ErrorIs(t, err, chat.ErrNotRecipient)

	first, err := h.svc.MarkRead(ctx, bob, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, first.ReadAt)
	assert.Equal(t, []string{contracts.EventMessageRead}, am.events())
	assert.Equal(t, "bob", am.payload(t, contracts.EventMessageRead, 0)["readBy"])

	second, err := h.svc.MarkRead(ctx, bob, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, *first.ReadAt, *second.ReadAt, "readAt is fixed by the first transition")
	assert.Len(t, am.events(), 1)

	conv, err := h.store.Conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCounts["bob"])
}

func TestMessagePageIsOldestFirstAndMarksRead(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, alice, _, bob, convID := startChat(t, h)

	for _, text := range []string{"one", "two", "three"} {
		_, err := h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: convID, Content: text})
		require.NoError(t, err)
	}
	h.drain(t)

	// the sender's read does not mark anything
	_, err := h.svc.MessagePage(ctx, alice, convID, 0, 0)
	require.NoError(t, err)
	conv, err := h.store.Conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 3, conv.UnreadCounts["bob"])

	page, err := h.svc.MessagePage(ctx, bob, convID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "two", page[0].Content)
	assert.Equal(t, "three", page[1].Content)
	assert.False(t, page[0].Read, "page shows the state before this read")

	older, err := h.svc.MessagePage(ctx, bob, convID, 2, 2)
	require.NoError(t, err)
	require.Len(t, older, 1)
	assert.Equal(t, "one", older[0].Content)
	assert.True(t, older[0].Read, "every message to the reader was marked by the first page")

	conv, err = h.store.Conversations.FindByID(ctx, convID)
	require.NoError(t, err)
	assert.Equal(t, 0, conv.UnreadCounts["bob"])

	_, eve := h.connect(t, "c-e", "eve", user.RoleDriver)
	_, err = h.svc.MessagePage(ctx, eve, convID, 0, 0)
	assert.ErrorIs(t, err, chat.ErrNotParticipant)
}

func TestTypingRequiresMembership(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	am, _, bm, bob, convID := startChat(t, h)
	_, eve := h.connect(t, "c-e", "eve", user.RoleDriver)

	require.NoError(t, h.svc.Typing(ctx, bob, convID, true))
	require.NoError(t, h.svc.Typing(ctx, bob, convID, false))
	assert.Equal(t, []string{contracts.EventUserTyping, contracts.EventUserStoppedTyping}, am.events())
	assert.Equal(t, "bob name", am.payload(t, contracts.EventUserTyping, 0)["userName"])
	assert.Len(t, bm.events(), 2)

	assert.ErrorIs(t, h.svc.Typing(ctx, eve, convID, true), chat.ErrNotParticipant)
	assert.Len(t, am.events(), 2)
}

func TestJoinConversation(t *testing.T) {
	ctx := context.Background()
	h := newMemHarness(t)
	_, _, _, _, convID := startChat(t, h)
	_, eve := h.connect(t, "c-e", "eve", user.RoleDriver)
	_, zed := h.connect(t, "c-z", "zed", user.RoleDriver)

	assert.ErrorIs(t, h.svc.JoinConversation(ctx, eve, convID), chat.ErrNotParticipant)
	assert.False(t, h.router.IsMember("c-e", room.Chat(convID)))

	// not created yet, but the id names the caller
	require.NoError(t, h.svc.JoinConversation(ctx, zed, "eve_zed"))
	assert.True(t, h.router.IsMember("c-z", room.Chat("eve_zed")))

	assert.ErrorIs(t, h.svc.JoinConversation(ctx, zed, "group-42"), chat.ErrConversationNotFound)
	assert.ErrorIs(t, h.svc.JoinConversation(ctx, zed, ""), chat.ErrMissingConversationID)
}

func TestChatDegradesWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	h := newHarness(t, newDownStore(), logger.New("test", logger.WithWriter(&buf), logger.WithoutStacks()))

	_, alice := h.connect(t, "c-a", "alice", user.RoleManager)
	bm, bob := h.connect(t, "c-b", "bob", user.RoleDriver)

	conv, err := h.svc.StartConversation(ctx, alice, ports.StartConversationInput{OtherUserID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice_bob", conv.ID)
	require.NoError(t, h.svc.JoinConversation(ctx, bob, conv.ID))

	_, err = h.svc.SendMessage(ctx, alice, ports.SendMessageInput{ConversationID: conv.ID, Content: "still here"})
	require.NoError(t, err)
	assert.Equal(t, "still here", bm.payload(t, contracts.EventReceiveMessage, 0)["content"])

	h.drain(t)
	assert.Contains(t, buf.String(), `"action":"persistence_failed"`)
}
