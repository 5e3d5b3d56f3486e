package realtimeservice

import (
	"context"
	"fmt"

	"fleet-realtime/internal/general/config"
	"fleet-realtime/internal/general/logger"
	"fleet-realtime/internal/general/memstore"
	"fleet-realtime/internal/general/postgres"
	"fleet-realtime/internal/general/rabbitmq"
	"fleet-realtime/internal/general/redis"
	"fleet-realtime/internal/ports"
)

// openStore returns the postgres store when enabled. An unreachable database
// falls back to memory unless it is marked required.
func openStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (ports.Store, func(), error) {
	if !cfg.Enabled {
		log.Info(ctx, "store_selected", "Using in-memory store", map[string]any{"driver": "memory"})
		return memstore.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err == nil {
		if err = postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			log.Error(ctx, "db_schema_failed", "Failed to ensure database schema", err, nil)
		}
	}
	if err != nil {
		if cfg.Required {
			return ports.Store{}, nil, fmt.Errorf("database required: %w", err)
		}
		log.Warn(ctx, "store_degraded", "Database unavailable, falling back to in-memory store", map[string]any{
			"host": cfg.Host, "reason": err.Error(),
		})
		return memstore.New(), func() {}, nil
	}

	log.Info(ctx, "store_selected", "Using postgres store", map[string]any{"driver": "postgres", "database": cfg.Name})
	return postgres.NewStore(pool), pool.Close, nil
}

// openBackplane returns nil when no driver is configured.
func openBackplane(ctx context.Context, cfg *config.Config, nodeID string, log *logger.Logger) (ports.Backplane, error) {
	switch cfg.Backplane.Driver {
	case config.BackplaneNone:
		return nil, nil
	case config.BackplaneRabbitMQ:
		client, err := rabbitmq.ConnectRabbitMQ(ctx, cfg.RabbitMQ, log)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq backplane: %w", err)
		}
		return rabbitmq.NewBackplane(client, nodeID, log), nil
	case config.BackplaneRedis:
		bp, err := redis.Connect(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("redis backplane: %w", err)
		}
		return bp, nil
	default:
		return nil, fmt.Errorf("unknown backplane driver %q", cfg.Backplane.Driver)
	}
}
