package handler

import (
	"net/http"
	"strings"
	"time"

	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/ports"
)

// ----- Handler: GET /api/messages/conversations -----

func (handler *RealtimeHTTPHandler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	convs, err := handler.svc.ListConversations(callCtx, s)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"conversations": contracts.NewConversationViews(convs, s.User.ID),
	})
}

// ----- Handler: POST /api/messages/conversations/start -----

func (handler *RealtimeHTTPHandler) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	var req contracts.StartConversationRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	conv, err := handler.svc.StartConversation(callCtx, s, ports.StartConversationInput{
		OtherUserID:   req.Other(),
		OtherUserName: req.OtherUserName,
		OtherUserRole: req.OtherUserRole,
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.NewConversationView(conv, s.User.ID))
}

// ----- Handler: GET /api/messages/conversations/{conversationId}/messages -----

func (handler *RealtimeHTTPHandler) handleMessagePage(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}
	skip, err := queryInt(r, "skip")
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	msgs, err := handler.svc.MessagePage(callCtx, s, strings.TrimSpace(r.PathValue("conversationId")), limit, skip)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"messages": contracts.NewMessageViews(msgs),
	})
}

// ----- Handler: POST /api/messages/conversations/{conversationId}/messages -----

func (handler *RealtimeHTTPHandler) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	var req contracts.SendMessageRequest
	if !handler.decodeJSON(ctx, w, r, &req) {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	// the path wins over any conversationId in the body
	msg, err := handler.svc.SendMessage(callCtx, s, ports.SendMessageInput{
		ConversationID: strings.TrimSpace(r.PathValue("conversationId")),
		RecipientID:    req.RecipientID,
		Content:        req.Text(),
		Attachments:    req.DomainAttachments(),
	})
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusCreated, contracts.NewMessageView(msg))
}

// ----- Handler: PUT /api/messages/{messageId}/read -----

func (handler *RealtimeHTTPHandler) handleMarkMessageRead(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	msg, err := handler.svc.MarkRead(callCtx, s, strings.TrimSpace(r.PathValue("messageId")))
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.NewMessageView(msg))
}

// ----- Handler: DELETE /api/messages/{messageId} -----

func (handler *RealtimeHTTPHandler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	msg, err := handler.svc.DeleteMessage(callCtx, s, strings.TrimSpace(r.PathValue("messageId")))
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, contracts.MessageDeleted{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
		DeletedAt:      deletedAt(msg.DeletedAt),
	})
}

func deletedAt(t *time.Time) string {
	if t == nil {
		return contracts.Now()
	}
	return contracts.FormatTime(*t)
}
