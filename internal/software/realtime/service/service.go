package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleet-realtime/internal/domain/room"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/contracts"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/ports"
	"fleet-realtime/internal/software/realtime/cache"
	"fleet-realtime/internal/software/realtime/presence"
	"fleet-realtime/internal/software/realtime/router"

	"golang.org/x/sync/semaphore"
)

// Options carries the tunables of the realtime layer.
type Options struct {
	SpeedLimitKmh         float64
	PersistHistory        bool
	PreviewLength         int
	PageSize              int
	MaxPageSize           int
	ConversationLimit     int
	MaxInFlight           int64
	WriteTimeout          time.Duration
	NotificationRetention time.Duration
	LocationRetention     time.Duration
	SweepInterval         time.Duration
}

// OptionsFrom reads Options from the loaded config.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		SpeedLimitKmh:         cfg.Tracking.SpeedLimitKmh,
		PersistHistory:        cfg.Tracking.PersistHistory,
		PreviewLength:         cfg.Chat.PreviewLength,
		PageSize:              cfg.Chat.PageSize,
		MaxPageSize:           cfg.Chat.MaxPageSize,
		ConversationLimit:     cfg.Chat.ConversationLimit,
		MaxInFlight:           cfg.Persistence.MaxInFlight,
		WriteTimeout:          cfg.Persistence.WriteTimeout.Duration,
		NotificationRetention: cfg.Retention.Notifications.Duration,
		LocationRetention:     cfg.Retention.LocationHistory.Duration,
		SweepInterval:         cfg.Retention.SweepInterval.Duration,
	}
}

// session is the per-connection state owned by the service.
type session struct {
	sub      ports.Subscriber
	identity user.Identity
	tracking *trackingState
}

type trackingState struct {
	driverID  string
	vehicleID string
}

// realtimeService holds all dependencies required by the realtime layer.
type realtimeService struct {
	opts     Options
	logger   *logger.Logger
	cache    *cache.Cache
	presence *presence.Registry
	router   *router.Router
	store    ports.Store

	// mu guards sessions and directory; disconnect cleanup runs entirely under it
	mu        sync.RWMutex
	sessions  map[string]*session
	directory map[string]user.Identity

	inflight *semaphore.Weighted
	writes   sync.WaitGroup

	pendingMu sync.Mutex
	pending   map[string]chan struct{} // message id -> closed once persisted
}

// NewRealtimeService constructs the service with required dependencies.
func NewRealtimeService(
	opts Options,
	logger *logger.Logger,
	locations *cache.Cache,
	registry *presence.Registry,
	rt *router.Router,
	store ports.Store,
) ports.RealtimeService {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 128
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PreviewLength <= 0 {
		opts.PreviewLength = 100
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPageSize < opts.PageSize {
		opts.MaxPageSize = max(opts.PageSize, 200)
	}
	if opts.ConversationLimit <= 0 {
		opts.ConversationLimit = 50
	}

	return &realtimeService{
		opts:      opts,
		logger:    logger,
		cache:     locations,
		presence:  registry,
		router:    rt,
		store:     store,
		sessions:  make(map[string]*session),
		directory: make(map[string]user.Identity),
		inflight:  semaphore.NewWeighted(opts.MaxInFlight),
		pending:   make(map[string]chan struct{}),
	}
}

var _ ports.RealtimeService = (*realtimeService)(nil)

var errUnknownConnection = errors.New("unknown connection")

// lookup returns the live session for a websocket caller.
func (service *realtimeService) lookup(connID string) (*session, error) {
	service.mu.RLock()
	defer service.mu.RUnlock()

	sess, ok := service.sessions[connID]
	if !ok {
		return nil, errUnknownConnection
	}
	return sess, nil
}

// join adds the caller's connection to g. REST callers have no connection and are skipped.
func (service *realtimeService) join(ctx context.Context, s ports.Session, g room.Group) error {
	if s.ConnID == "" {
		return nil
	}
	sess, err := service.lookup(s.ConnID)
	if err != nil {
		return err
	}
	added, err := service.router.Join(sess.sub, g)
	if err != nil {
		return err
	}
	if added {
		service.logger.Debug(ctx, "group_joined", "Connection joined group", map[string]any{"group": g.String()})
	}
	return nil
}

func (service *realtimeService) broadcast(ctx context.Context, g room.Group, event string, data any) {
	if _, err := service.router.Broadcast(ctx, g, event, data); err != nil {
		service.logger.Error(ctx, "broadcast_failed", "Failed to encode broadcast", err, map[string]any{
			"group": g.String(), "event": event,
		})
	}
}

// persist runs fn in the background after the realtime effect already happened.
// Failures are logged and swallowed; when too many writes are in flight the
// write is dropped.
func (service *realtimeService) persist(ctx context.Context, action string, details map[string]any, fn func(ctx context.Context) error) bool {
	if !service.inflight.TryAcquire(1) {
		service.logger.Warn(ctx, "persistence_dropped", "Too many writes in flight, skipping "+action, details)
		return false
	}

	service.writes.Add(1)
	go func() {
		defer service.writes.Done()
		defer service.inflight.Release(1)

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), service.opts.WriteTimeout)
		defer cancel()

		if err := fn(wctx); err != nil {
			d := map[string]any{"operation": action}
			for k, v := range details {
				d[k] = v
			}
			service.logger.Error(wctx, "persistence_failed", "Best-effort write failed", err, d)
		}
	}()
	return true
}

func (service *realtimeService) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		service.writes.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (service *realtimeService) Stats(_ context.Context) contracts.Stats {
	users, conns := service.presence.Counts()
	return contracts.Stats{
		NodeID:        service.router.NodeID(),
		ActiveDrivers: service.cache.ActiveCount(),
		OnlineUsers:   users,
		Connections:   conns,
		Groups:        service.router.GroupSizes(),
	}
}

func (service *realtimeService) Presence(_ context.Context, userID string) contracts.Presence {
	return contracts.Presence{
		UserID:      userID,
		Online:      service.presence.Online(userID),
		Connections: len(service.presence.Connections(userID)),
	}
}
