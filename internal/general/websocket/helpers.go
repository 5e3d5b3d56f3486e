package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"fleet-realtime/internal/general/apperr"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/jwt"

	"github.com/gorilla/websocket"
)

const (
	wsCloseAckWindow = 2 * time.Second
	shutdownReason   = "server shutting down"
)

var (
	errAuthTimeout = errors.New("authentication timeout: send an auth frame first")
	errAuthNotText = errors.New("auth message must be in text format")
	errBadFrame    = apperr.Validation("frame must be JSON with a type")
)

// checkOrigin admits any origin when the allow-list is empty; otherwise the
// Origin host must match an entry ("*" admits all).
func (ws *WebSocket) checkOrigin(r *http.Request) bool {
	allowed := ws.opts.AllowedOrigins
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(allowed, func(a string) bool {
		return strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host)
	})
}

// writeAuthError is written directly; the writer goroutine is not running yet.
func (ws *WebSocket) writeAuthError(conn *websocket.Conn, message string) {
	msg, err := json.Marshal(map[string]any{
		"type":    contracts.EventAuthError,
		"error":   message,
		"success": false,
	})
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(ws.opts.WriteWait))
	_ = conn.WriteMessage(websocket.TextMessage, msg)
}

// writeClose sends a close control frame with the given code and reason.
func (ws *WebSocket) writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

func authErrorText(err error) string {
	switch {
	case errors.Is(err, errAuthTimeout), errors.Is(err, errAuthNotText):
		return err.Error()
	case errors.Is(err, jwt.ErrBadAuthMsg), errors.Is(err, jwt.ErrBadTokenWrap):
		return "authentication failed: " + err.Error()
	default:
		return "authentication failed: invalid token"
	}
}

func panicError(rec any) error {
	if err, ok := rec.(error); ok {
		return err
	}
	return fmt.Errorf("%v", rec)
}
