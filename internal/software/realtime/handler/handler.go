package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/jwt"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/websocket"
	"fleet-realtime/internal/ports"
)

const defaultCallTimeout = 5 * time.Second

// RealtimeHTTPHandler adapts HTTP requests to the RealtimeService.
type RealtimeHTTPHandler struct {
	svc       ports.RealtimeService
	logger    *logger.Logger
	auth      *jwt.Manager
	websocket *websocket.WebSocket

	devTokens   bool
	callTimeout time.Duration
}

// Option tweaks a RealtimeHTTPHandler.
type Option func(*RealtimeHTTPHandler)

// WithDevTokens mounts POST /tokens.
func WithDevTokens(enabled bool) Option {
	return func(h *RealtimeHTTPHandler) { h.devTokens = enabled }
}

// WithCallTimeout bounds every service call made by a request.
func WithCallTimeout(d time.Duration) Option {
	return func(h *RealtimeHTTPHandler) {
		if d > 0 {
			h.callTimeout = d
		}
	}
}

// NewRealtimeHTTPHandler wires an HTTP handler around the RealtimeService.
func NewRealtimeHTTPHandler(
	svc ports.RealtimeService,
	logger *logger.Logger,
	auth *jwt.Manager,
	ws *websocket.WebSocket,
	opts ...Option,
) *RealtimeHTTPHandler {
	handler := &RealtimeHTTPHandler{
		svc:         svc,
		logger:      logger,
		auth:        auth,
		websocket:   ws,
		callTimeout: defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// RegisterRoutes mounts the REST surface and the websocket endpoint on mux.
func (handler *RealtimeHTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	authed := jwt.AuthMiddlewareFunc(handler.auth)
	dispatch := jwt.AuthMiddlewareFunc(handler.auth, user.DispatchRoles...)

	// chat
	mux.HandleFunc("GET /api/messages/conversations", authed(handler.handleListConversations))
	mux.HandleFunc("POST /api/messages/conversations/start", authed(handler.handleStartConversation))
	mux.HandleFunc("GET /api/messages/conversations/{conversationId}/messages", authed(handler.handleMessagePage))
	mux.HandleFunc("POST /api/messages/conversations/{conversationId}/messages", authed(handler.handleSendMessage))
	mux.HandleFunc("PUT /api/messages/{messageId}/read", authed(handler.handleMarkMessageRead))
	mux.HandleFunc("DELETE /api/messages/{messageId}", authed(handler.handleDeleteMessage))

	// notifications
	mux.HandleFunc("GET /api/notifications", authed(handler.handleListNotifications))
	mux.HandleFunc("PUT /api/notifications/read-all", authed(handler.handleMarkAllNotificationsRead))
	mux.HandleFunc("PUT /api/notifications/{id}/read", authed(handler.handleMarkNotificationRead))
	mux.HandleFunc("DELETE /api/notifications/{id}", authed(handler.handleDeleteNotification))

	// locations
	mux.HandleFunc("GET /api/locations", dispatch(handler.handleAllLocations))
	mux.HandleFunc("GET /api/locations/{driverId}", dispatch(handler.handleCurrentLocation))
	mux.HandleFunc("GET /api/locations/{driverId}/history", dispatch(handler.handleLocationHistory))
	mux.HandleFunc("GET /api/locations/{driverId}/trail", dispatch(handler.handleLocationTrail))

	// system
	mux.HandleFunc("GET /api/presence/{userId}", authed(handler.handlePresence))
	mux.HandleFunc("GET /api/realtime/stats", authed(handler.handleStats))
	mux.HandleFunc("GET /health", handler.handleHealth)
	if handler.devTokens {
		mux.HandleFunc("POST /tokens", handler.handleCreateToken)
	}

	// websocket authenticates itself
	if handler.websocket != nil {
		mux.HandleFunc("GET /ws", handler.websocket.Connect)
	}
}

// ----- general helpers -----

// session builds the caller session from the claims injected by the middleware.
func (handler *RealtimeHTTPHandler) session(ctx context.Context, w http.ResponseWriter, r *http.Request) (context.Context, ports.Session, bool) {
	identity, ok := jwt.RequireIdentity(r)
	if !ok {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", nil)
		return ctx, ports.Session{}, false
	}
	return logger.WithUserID(ctx, identity.ID), ports.Session{User: identity}, true
}

// call bounds one service call.
func (handler *RealtimeHTTPHandler) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, handler.callTimeout)
}

// decodeJSON checks the content type and decodes the body into dst.
func (handler *RealtimeHTTPHandler) decodeJSON(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(name + " must be a non-negative integer")
	}
	return n, nil
}

// jsonResponse takes any type of data and encode it to HTTP response.
func (handler *RealtimeHTTPHandler) jsonResponse(ctx context.Context, w http.ResponseWriter, status int, data any) {
	// encode to buffer first so we can control status on failure
	var buf []byte
	var err error

	if data != nil {
		buf, err = json.Marshal(data)
		if err != nil {
			handler.logger.Error(ctx, "response_encode_failed", "Failed to encode response", err, nil)
			http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
			return
		}
	} else {
		buf = []byte("{}")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

type errBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// httpError sends a JSON error response with a message.
func (handler *RealtimeHTTPHandler) httpError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
	} else if status == http.StatusBadRequest {
		action = "validation_failed"
	} else if status == http.StatusUnsupportedMediaType {
		action = "unsupported_media_type"
	}
	if status >= 500 {
		handler.logger.Error(ctx, action, msg, err, nil)
	} else {
		handler.logger.Warn(ctx, action, msg, map[string]any{"status": status})
	}

	handler.jsonResponse(ctx, w, status, errBody{Error: msg})
}

// serviceError maps a service error onto its status and client-safe message.
func (handler *RealtimeHTTPHandler) serviceError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	action := "request_failed"
	if status >= 500 {
		action = "http_internal_error"
		handler.logger.Error(ctx, action, "Service call failed", err, nil)
	} else {
		handler.logger.Warn(ctx, action, err.Error(), map[string]any{"status": status})
	}
	handler.jsonResponse(ctx, w, status, errBody{Error: apperr.Message(err), Code: apperr.Code(err)})
}

// withReqID extracts or generates a request ID and adds it to the context.
func (handler *RealtimeHTTPHandler) withReqID(ctx context.Context, r *http.Request) context.Context {
	reqID := r.Header.Get("X-Request-ID")
	if strings.TrimSpace(reqID) == "" {
		reqID = randID()
	}
	return logger.WithRequestID(ctx, reqID)
}

// randID generates a random 24-char hex string suitable for request IDs.
func randID() string {
	var b [12]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
