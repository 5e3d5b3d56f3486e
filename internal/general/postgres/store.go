// Package postgres is the durable backend of the Conversation Store and the
// notification and location logs.
package postgres

import (
	"fleet-realtime/internal/ports"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NewStore wires every repository to pool.
func NewStore(pool *pgxpool.Pool) ports.Store {
	return ports.Store{
		UoW:           NewUnitOfWork(pool),
		Conversations: NewConversationRepo(pool),
		Messages:      NewMessageRepo(pool),
		Notifications: NewNotificationRepo(pool),
		Locations:     NewLocationHistoryRepo(pool),
	}
}
