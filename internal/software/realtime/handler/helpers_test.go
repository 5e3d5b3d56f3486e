package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/jwt"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/memstore"
	"fleet-realtime/internal/general/websocket"
	"fleet-realtime/internal/ports"
	"fleet-realtime/internal/software/realtime/cache"
	"fleet-realtime/internal/software/realtime/presence"
	"fleet-realtime/internal/software/realtime/router"
	"fleet-realtime/internal/software/realtime/service"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// app is the full realtime stack behind one httptest server.
type app struct {
	url string
	mgr *jwt.Manager
	svc ports.RealtimeService
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := logger.Discard()
	mgr := jwt.NewManager("test-secret", time.Hour)

	svc := service.NewRealtimeService(service.Options{
		SpeedLimitKmh:  120,
		PersistHistory: true,
		MaxInFlight:    16,
		WriteTimeout:   time.Second,
	}, log, cache.New(cache.DefaultCapacity, 50), presence.New(), router.New("node-test", log), memstore.New())

	ws := websocket.NewWebSocket(log, mgr, NewEventDispatcher(svc, log), websocket.Options{})
	mux := http.NewServeMux()
	NewRealtimeHTTPHandler(svc, log, mgr, ws, WithDevTokens(true)).RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = svc.Drain(context.Background()) })

	return &app{url: srv.URL, mgr: mgr, svc: svc}
}

func (a *app) token(t *testing.T, id string, role user.Role) string {
	t.Helper()
	token, _, err := a.mgr.IssueUserToken(id, id+" name", role)
	require.NoError(t, err)
	return token
}

func (a *app) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.svc.Drain(ctx))
}

// ----- websocket client -----

type client struct {
	t *testing.T
	c *gorilla.Conn
}

// dial opens /ws with a query token and consumes auth_success.
func (a *app) dial(t *testing.T, id string, role user.Role) *client {
	t.Helper()
	u := "ws" + strings.TrimPrefix(a.url, "http") + "/ws?token=" + a.token(t, id, role)
	c, _, err := gorilla.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	cl := &client{t: t, c: c}
	ack := cl.next()
	require.Equal(t, "auth_success", ack.Type)
	return cl
}

type wsFrame struct {
	Type  string          `json:"type"`
	Error string          `json:"error"`
	Data  json.RawMessage `json:"data"`
}

func (f wsFrame) data(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(f.Data, &m))
	return m
}

func (cl *client) send(event string, data any) {
	cl.t.Helper()
	require.NoError(cl.t, cl.c.WriteJSON(map[string]any{"type": event, "data": data}))
}

func (cl *client) next() wsFrame {
	cl.t.Helper()
	require.NoError(cl.t, cl.c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f wsFrame
	require.NoError(cl.t, cl.c.ReadJSON(&f))
	return f
}

// until skips frames until one of the given type arrives.
func (cl *client) until(event string) wsFrame {
	cl.t.Helper()
	for {
		if f := cl.next(); f.Type == event {
			return f
		}
	}
}

// sync round-trips a request so every earlier event of this connection has run.
func (cl *client) sync() {
	cl.t.Helper()
	cl.send("system:get_active_drivers", nil)
	cl.until("system:active_drivers_count")
}

// ----- REST client -----

func (a *app) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, a.url+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &out) != nil {
		out["raw"] = string(raw)
	}
	return resp.StatusCode, out
}

func jsonInt(raw json.RawMessage, dst *int) error {
	return json.Unmarshal(raw, dst)
}
