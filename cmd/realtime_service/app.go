package realtimeservice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/jwt"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/websocket"
	"fleet-realtime/internal/software/realtime/cache"
	"fleet-realtime/internal/software/realtime/handler"
	"fleet-realtime/internal/software/realtime/presence"
	"fleet-realtime/internal/software/realtime/router"
	"fleet-realtime/internal/software/realtime/service"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Run wires the realtime service and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	// set up a new logger with a static request ID for startup logs
	log := logger.New("realtime-service")
	ctx = logger.WithRequestID(ctx, "startup-001")

	nodeID := uuid.NewString()

	// 1. storage: postgres when enabled, in-memory otherwise
	store, closeStore, err := openStore(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// 2. optional cross-node backplane
	var routerOpts []router.Option
	bp, err := openBackplane(ctx, cfg, nodeID, log)
	if err != nil {
		return err
	}
	if bp != nil {
		defer bp.Close()
		routerOpts = append(routerOpts, router.WithBackplane(bp, cfg.Backplane.OutboundBuffer))
	}

	// 3. core components
	rt := router.New(nodeID, log, routerOpts...)
	locations := cache.New(cfg.Tracking.HistoryCapacity, cfg.Tracking.AccuracyThresholdM)
	svc := service.NewRealtimeService(service.OptionsFrom(cfg), log, locations, presence.New(), rt, store)

	// 4. transports: websocket gateway and REST routes on one mux
	jwtManager := jwt.NewManager(cfg.JWT.SecretKey, cfg.JWT.AccessTTL.Duration)
	ws := websocket.NewWebSocket(log, jwtManager, handler.NewEventDispatcher(svc, log), websocket.OptionsFrom(cfg.WebSocket))

	mux := http.NewServeMux()
	httpHandler := handler.NewRealtimeHTTPHandler(svc, log, jwtManager, ws, handler.WithDevTokens(cfg.JWT.AllowDevTokens))
	httpHandler.RegisterRoutes(mux)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           withConcurrencyLimit(cfg.Server.MaxConcurrent, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout.Duration,
		WriteTimeout:      cfg.Server.WriteTimeout.Duration,
		IdleTimeout:       cfg.Server.IdleTimeout.Duration,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(ctx, "service_started", fmt.Sprintf("Realtime service started on %s", cfg.Addr()), map[string]any{
		"node_id":        nodeID,
		"backplane":      cfg.Backplane.Driver,
		"persistence":    cfg.Database.Enabled,
		"max_concurrent": cfg.Server.MaxConcurrent,
	})

	// 5. run the server, the router pump and the retention sweeper together
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_server_error", "HTTP server terminated with error", err, map[string]any{"addr": cfg.Addr()})
			return err
		}
		return nil
	})
	g.Go(func() error { return rt.Run(gctx) })
	g.Go(func() error { return svc.RunRetention(gctx) })

	g.Go(func() error {
		<-gctx.Done()

		// graceful HTTP shutdown, close hijacked sockets, then wait for queued writes
		shCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		if err := srv.Shutdown(shCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "http_shutdown_failed", "Failed to gracefully shut down HTTP server", err, nil)
		}
		if err := ws.Shutdown(shCtx); err != nil {
			log.Warn(ctx, "ws_shutdown_incomplete", "Websocket sessions still open at shutdown deadline", map[string]any{"reason": err.Error()})
		}
		if err := svc.Drain(shCtx); err != nil {
			log.Warn(ctx, "drain_incomplete", "Shutdown before all writes finished", map[string]any{"reason": err.Error()})
		}
		log.Info(ctx, "service_stopped", "Realtime service stopped", map[string]any{"node_id": nodeID})
		return nil
	})

	return g.Wait()
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// The websocket route is exempt since an upgraded request never returns its slot.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			next.ServeHTTP(w, r)
			return
		}
		select {
		case sem <- struct{}{}: // acquire
			defer func() { <-sem }() // release
			next.ServeHTTP(w, r)
		case <-r.Context().Done():
			// client canceled or server is shutting down
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
}
