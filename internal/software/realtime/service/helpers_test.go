package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/memstore"
	"fleet-realtime/internal/ports"
	"fleet-realtime/internal/software/realtime/cache"
	"fleet-realtime/internal/software/realtime/presence"
	"fleet-realtime/internal/software/realtime/router"

	"github.com/stretchr/testify/require"
)

// member records every frame routed to one fake connection.
type member struct {
	id     string
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

var _ ports.Subscriber = (*member)(nil)

func (m *member) ID() string { return m.id }

func (m *member) Deliver(b []byte) bool {
	var f frame
	if err := json.Unmarshal(b, &f); err != nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, f)
	return true
}

func (m *member) events() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, f := range m.frames {
		out = append(out, f.Type)
	}
	return out
}

func (m *member) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// payload decodes the data of the n-th frame of the given type.
func (m *member) payload(t *testing.T, event string, n int) map[string]any {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := 0
	for _, f := range m.frames {
		if f.Type != event {
			continue
		}
		if seen == n {
			var out map[string]any
			require.NoError(t, json.Unmarshal(f.Data, &out))
			return out
		}
		seen++
	}
	t.Fatalf("no frame #%d of type %q in %v", n, event, m.frames)
	return nil
}

type harness struct {
	svc    *realtimeService
	router *router.Router
	store  ports.Store
}

func newHarness(t *testing.T, store ports.Store, log *logger.Logger) *harness {
	t.Helper()
	if log == nil {
		log = logger.Discard()
	}
	rt := router.New("node-test", log)
	opts := Options{
		SpeedLimitKmh:         120,
		PersistHistory:        true,
		PreviewLength:         10,
		PageSize:              50,
		MaxPageSize:           200,
		ConversationLimit:     50,
		MaxInFlight:           16,
		WriteTimeout:          time.Second,
		NotificationRetention: 30 * 24 * time.Hour,
		LocationRetention:     30 * 24 * time.Hour,
		SweepInterval:         time.Hour,
	}
	svc := NewRealtimeService(opts, log, cache.New(cache.DefaultCapacity, 50), presence.New(), rt, store)
	t.Cleanup(func() { _ = svc.Drain(context.Background()) })
	return &harness{svc: svc.(*realtimeService), router: rt, store: store}
}

// connect registers a connection for id/role and returns it with its session.
func (h *harness) connect(t *testing.T, connID, userID string, role user.Role) (*member, ports.Session) {
	t.Helper()
	m := &member{id: connID}
	identity, err := user.NewIdentity(userID, userID+" name", role)
	require.NoError(t, err)
	_, err = h.svc.Connect(context.Background(), m, identity)
	require.NoError(t, err)
	return m, ports.Session{ConnID: connID, User: identity}
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.svc.Drain(ctx))
}

func ptr(f float64) *float64 { return &f }

// ----- failing backend -----

var errStoreDown = errors.New("connection refused")

type (
	downUoW           struct{}
	downConversations struct{}
	downMessages      struct{}
	downNotifications struct{}
	downLocations     struct{}
)

var (
	_ ports.UnitOfWork                = downUoW{}
	_ ports.ConversationRepository    = downConversations{}
	_ ports.MessageRepository         = downMessages{}
	_ ports.NotificationRepository    = downNotifications{}
	_ ports.LocationHistoryRepository = downLocations{}
)

func newDownStore() ports.Store {
	return ports.Store{
		UoW:           downUoW{},
		Conversations: downConversations{},
		Messages:      downMessages{},
		Notifications: downNotifications{},
		Locations:     downLocations{},
	}
}

func (downUoW) WithinTx(context.Context, func(context.Context) error) error { return errStoreDown }

func (downConversations) Create(context.Context, *chat.Conversation) (bool, error) {
	return false, errStoreDown
}
func (downConversations) FindByID(context.Context, string) (*chat.Conversation, error) {
	return nil, errStoreDown
}
func (downConversations) ListForUser(context.Context, string, int) ([]*chat.Conversation, error) {
	return nil, errStoreDown
}
func (downConversations) RecordMessage(context.Context, string, chat.LastMessage, string) error {
	return errStoreDown
}
func (downConversations) AdjustUnread(context.Context, string, string, int) error {
	return errStoreDown
}
func (downConversations) ResetUnread(context.Context, string, string) error { return errStoreDown }

func (downMessages) Save(context.Context, *chat.Message) error { return errStoreDown }
func (downMessages) FindByID(context.Context, string) (*chat.Message, error) {
	return nil, errStoreDown
}
func (downMessages) ListPage(context.Context, string, int, int) ([]*chat.Message, error) {
	return nil, errStoreDown
}
func (downMessages) MarkRead(context.Context, string, time.Time) (bool, error) {
	return false, errStoreDown
}
func (downMessages) MarkReadForRecipient(context.Context, string, string, time.Time) (int, error) {
	return 0, errStoreDown
}
func (downMessages) SoftDelete(context.Context, string, time.Time) (bool, error) {
	return false, errStoreDown
}

func (downNotifications) Log(context.Context, *notification.Notification) error { return errStoreDown }
func (downNotifications) ListForUser(context.Context, string, user.Role, int) ([]*notification.Notification, error) {
	return nil, errStoreDown
}
func (downNotifications) MarkRead(context.Context, string, string, user.Role) error {
	return errStoreDown
}
func (downNotifications) MarkAllRead(context.Context, string, user.Role) (int, error) {
	return 0, errStoreDown
}
func (downNotifications) Delete(context.Context, string, string, user.Role) error {
	return errStoreDown
}
func (downNotifications) DeleteExpired(context.Context, time.Time) (int, error) {
	return 0, errStoreDown
}

func (downLocations) Archive(context.Context, *geo.HistoryRecord) error { return errStoreDown }
func (downLocations) ListForDriver(context.Context, string, time.Time, int) ([]*geo.HistoryRecord, error) {
	return nil, errStoreDown
}
func (downLocations) DeleteExpired(context.Context, time.Time) (int, error) { return 0, errStoreDown }

func newMemHarness(t *testing.T) *harness {
	return newHarness(t, memstore.New(), nil)
}

func readingAt(driverID string, lat, lon float64) geo.Reading {
	return geo.Reading{DriverID: driverID, Latitude: &lat, Longitude: &lon}
}
