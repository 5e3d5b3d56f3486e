// Package memstore keeps conversations, messages and logs in process memory.
// It backs the service when Postgres is disabled or unreachable.
package memstore

import (
	"context"
	"sync"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/ports"
)

type db struct {
	mu            sync.RWMutex
	conversations map[string]*chat.Conversation
	messages      map[string]*chat.Message
	byConv        map[string][]string // message ids ordered by CreatedAt
	notifications map[string]*notification.Notification
	locations     []*geo.HistoryRecord

	txMu sync.Mutex
}

// New returns an empty store wired as ports.Store.
func New() ports.Store {
	d := &db{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string]*chat.Message),
		byConv:        make(map[string][]string),
		notifications: make(map[string]*notification.Notification),
	}
	return ports.Store{
		UoW:           &unitOfWork{db: d},
		Conversations: &ConversationRepo{db: d},
		Messages:      &MessageRepo{db: d},
		Notifications: &NotificationRepo{db: d},
		Locations:     &LocationHistoryRepo{db: d},
	}
}

// unitOfWork serializes transactional blocks. There is no rollback: a failed
// block keeps the writes it already made.
type unitOfWork struct {
	db *db
}

var _ ports.UnitOfWork = (*unitOfWork)(nil)

func (u *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	u.db.txMu.Lock()
	defer u.db.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
