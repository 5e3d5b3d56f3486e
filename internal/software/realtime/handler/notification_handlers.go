package handler

import (
	"net/http"
	"strings"

	"fleet-realtime/internal/general/contracts"
)

// ----- Handler: GET /api/notifications -----

func (handler *RealtimeHTTPHandler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	ns, err := handler.svc.ListNotifications(callCtx, s, limit)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{
		"notifications": contracts.NewNotificationPayloads(ns),
	})
}

// ----- Handler: PUT /api/notifications/{id}/read -----

func (handler *RealtimeHTTPHandler) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	if err := handler.svc.MarkNotificationRead(callCtx, s, id); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{"id": id, "read": true})
}

// ----- Handler: PUT /api/notifications/read-all -----

func (handler *RealtimeHTTPHandler) handleMarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	n, err := handler.svc.MarkAllNotificationsRead(callCtx, s)
	if err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{"updated": n})
}

// ----- Handler: DELETE /api/notifications/{id} -----

func (handler *RealtimeHTTPHandler) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	ctx, s, ok := handler.session(handler.withReqID(r.Context(), r), w, r)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.PathValue("id"))

	callCtx, cancel := handler.call(ctx)
	defer cancel()

	if err := handler.svc.DeleteNotification(callCtx, s, id); err != nil {
		handler.serviceError(ctx, w, err)
		return
	}

	handler.jsonResponse(ctx, w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
