package contracts

import (
	"encoding/json"
	"testing"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimeUsesMillisecondsUTC(t *testing.T) {
	loc := time.FixedZone("X", 3600)
	got := FormatTime(time.Date(2026, 3, 1, 11, 0, 0, 5_000_000, loc))
	assert.Equal(t, "2026-03-01T10:00:00.005Z", got)
}

func TestReceiveMessageWireShape(t *testing.T) {
	msg := &chat.Message{
		ID: "m1", ConversationID: "a_b", SenderID: "a", SenderName: "Ann",
		SenderRole: user.RoleManager, RecipientID: "b", Content: "hello",
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(NewReceiveMessage(msg))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"_id":"m1","conversationId":"a_b","senderId":"a","senderName":"Ann",
		"senderRole":"manager","recipientId":"b","content":"hello",
		"timestamp":"2026-03-01T10:00:00.000Z","read":false
	}`, string(b))
}

func TestNotificationPayloadFlattensExtra(t *testing.T) {
	n := &notification.Notification{
		Type: notification.TypeFuelAlert, Title: "Low Fuel Warning",
		Message: "Vehicle V1 fuel level: 8%", RelatedID: "V1",
		Extra:     map[string]any{"fuelLevel": 8.0, "title": "ignored"},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	b, err := json.Marshal(OutboundFrame{Type: EventNotification, Data: NewNotificationPayload(n)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"notification:new","data":{
		"type":"fuel_alert","title":"Low Fuel Warning","message":"Vehicle V1 fuel level: 8%",
		"relatedId":"V1","timestamp":"2026-03-01T10:00:00.000Z","read":false,"fuelLevel":8
	}}`, string(b))
}

func TestRequestAliases(t *testing.T) {
	var start StartConversationRequest
	require.NoError(t, json.Unmarshal([]byte(`{"userId":" b "}`), &start))
	assert.Equal(t, "b", start.Other())

	var send SendMessageRequest
	require.NoError(t, json.Unmarshal([]byte(`{"conversationId":"a_b","content":"hi"}`), &send))
	assert.Equal(t, "hi", send.Text())
}

func TestErrorFrameShape(t *testing.T) {
	b, err := json.Marshal(ErrorFrame{Type: EventError, Error: "nope", Data: ErrorData{Event: EventJoinDispatch, Code: "forbidden"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"nope","data":{"event":"user:join_dispatch","code":"forbidden"}}`, string(b))
}
