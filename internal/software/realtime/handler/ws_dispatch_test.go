package handler

import (
	"testing"
	"time"

	"fleet-realtime/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationFanOutAndSpeedAlert(t *testing.T) {
	a := newApp(t)

	dispatcher := a.dial(t, "disp-1", user.RoleDispatcher)
	dispatcher.send("user:join_dispatch", nil)
	dispatcher.sync()

	driver := a.dial(t, "d-1", user.RoleDriver)
	driver.send("driver:join_tracking", map[string]any{"driverId": "d-1", "vehicleId": "V1"})

	started := dispatcher.until("notification:new").data(t)
	assert.Equal(t, "Tracking Started", started["title"])
	assert.Equal(t, "Driver d-1 started sharing location", started["message"])

	driver.send("driver:location_update", map[string]any{
		"driverId": "d-1", "latitude": 40.1, "longitude": -74.2, "speed": 150,
	})

	loc := dispatcher.next()
	require.Equal(t, "driver:location_update", loc.Type)
	assert.Equal(t, "d-1", loc.data(t)["driverId"])
	assert.InDelta(t, 40.1, loc.data(t)["latitude"], 1e-9)

	alert := dispatcher.next()
	require.Equal(t, "vehicle:speed_alert", alert.Type)
	assert.Equal(t, "Driver d-1 exceeding speed limit: 150 km/h", alert.data(t)["message"])

	// the tracking driver is in vehicle:V1 and sees the routine update only
	assert.Equal(t, "driver:location_update", driver.until("driver:location_update").Type)

	// map queries answer on the calling connection
	dispatcher.send("map:request_location", map[string]any{"driverId": "d-1"})
	assert.Equal(t, "V1", dispatcher.until("driver:location_update").data(t)["vehicleId"])

	dispatcher.send("system:get_active_drivers", nil)
	var count int
	require.NoError(t, jsonInt(dispatcher.until("system:active_drivers_count").Data, &count))
	assert.Equal(t, 1, count)
}

func TestChatOverSocket(t *testing.T) {
	a := newApp(t)

	alice := a.dial(t, "alice", user.RoleDispatcher)
	bob := a.dial(t, "bob", user.RoleDriver)

	alice.send("chat:start_conversation", map[string]any{"otherUserId": "bob"})
	started := alice.until("chat:conversation_started").data(t)
	assert.Equal(t, "alice_bob", started["conversationId"])
	assert.ElementsMatch(t, []any{"alice", "bob"}, started["participants"])

	bob.send("chat:join_conversation", map[string]any{"conversationId": "alice_bob"})
	bob.sync()

	alice.send("chat:send_message", map[string]any{"conversationId": "alice_bob", "message": "on my way"})
	for _, cl := range []*client{alice, bob} {
		got := cl.until("chat:receive_message").data(t)
		assert.Equal(t, "on my way", got["content"])
		assert.Equal(t, "alice", got["senderId"])
		assert.Equal(t, "bob", got["recipientId"])
	}

	bob.send("chat:typing", map[string]any{"conversationId": "alice_bob"})
	assert.Equal(t, "bob", alice.until("chat:user_typing").data(t)["userId"])

	// persisted and readable over REST
	a.drain(t)
	status, body := a.do(t, "GET", "/api/messages/conversations", a.token(t, "bob", user.RoleDriver), nil)
	require.Equal(t, 200, status)
	convs := body["conversations"].([]any)
	require.Len(t, convs, 1)
	assert.EqualValues(t, 1, convs[0].(map[string]any)["unreadCount"])
}

func TestNotificationRoleTargeting(t *testing.T) {
	a := newApp(t)

	driver := a.dial(t, "d-1", user.RoleDriver)
	driver.send("user:join_notifications", nil)
	driver.sync()

	mechanic := a.dial(t, "m-1", user.RoleMechanic)
	mechanic.send("user:join_notifications", nil)
	mechanic.sync()

	dispatcher := a.dial(t, "disp-1", user.RoleDispatcher)
	dispatcher.send("notification:send", map[string]any{
		"targetRole": "driver", "type": "system", "title": "Shift change", "message": "Report to depot",
	})
	dispatcher.sync()

	got := driver.next()
	require.Equal(t, "notification:new", got.Type)
	assert.Equal(t, "Shift change", got.data(t)["title"])

	// the mechanic's next frame is its own sync reply, so nothing else arrived
	mechanic.send("system:get_active_drivers", nil)
	assert.Equal(t, "system:active_drivers_count", mechanic.next().Type)
}

func TestSocketErrorFrames(t *testing.T) {
	a := newApp(t)
	driver := a.dial(t, "d-1", user.RoleDriver)

	tests := []struct {
		name  string
		event string
		data  any
		code  string
		msg   string
	}{
		{"dispatch is role gated", "user:join_dispatch", nil, "forbidden", "only admin, manager or dispatcher may join dispatch"},
		{"unknown event", "nope:nothing", nil, "validation", "unknown event type"},
		{"bad payload", "driver:join_tracking", "not an object", "validation", "invalid payload for driver:join_tracking"},
		{"missing location", "map:request_location", map[string]any{"driverId": "ghost"}, "not_found", "no current location for driver"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver.send(tt.event, tt.data)
			f := driver.until("error")
			assert.Equal(t, tt.msg, f.Error)
			assert.Equal(t, tt.code, f.data(t)["code"])
			assert.Equal(t, tt.event, f.data(t)["event"])
		})
	}
}

func TestDisconnectClearsPresence(t *testing.T) {
	a := newApp(t)
	token := a.token(t, "disp-1", user.RoleDispatcher)

	driver := a.dial(t, "d-1", user.RoleDriver)
	_, body := a.do(t, "GET", "/api/presence/d-1", token, nil)
	assert.Equal(t, true, body["online"])

	require.NoError(t, driver.c.Close())

	assert.Eventually(t, func() bool {
		_, body := a.do(t, "GET", "/api/presence/d-1", token, nil)
		return body["online"] == false
	}, 2*time.Second, 20*time.Millisecond)
}
