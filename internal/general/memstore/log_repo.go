package memstore

import (
	"context"
	"slices"
	"time"

	"fleet-realtime/internal/domain/geo"
	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
)

type NotificationRepo struct {
	db *db
}

var _ ports.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Log(_ context.Context, n *notification.Notification) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c := n.Clone()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	r.db.notifications[c.ID] = c
	return nil
}

func (r *NotificationRepo) ListForUser(_ context.Context, userID string, role user.Role, limit int) ([]*notification.Notification, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*notification.Notification
	for _, n := range r.db.notifications {
		if n.VisibleTo(userID, role) {
			out = append(out, n.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *notification.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id, userID string, role user.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n, ok := r.db.notifications[id]
	if !ok || !n.VisibleTo(userID, role) {
		return notification.ErrNotFound
	}
	n.Read = true
	return nil
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, userID string, role user.Role) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	count := 0
	for _, n := range r.db.notifications {
		if !n.Read && n.VisibleTo(userID, role) {
			n.Read = true
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepo) Delete(_ context.Context, id, userID string, role user.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	n, ok := r.db.notifications[id]
	if !ok || !n.VisibleTo(userID, role) {
		return notification.ErrNotFound
	}
	delete(r.db.notifications, id)
	return nil
}

func (r *NotificationRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	count := 0
	for id, n := range r.db.notifications {
		if n.Expired(before) {
			delete(r.db.notifications, id)
			count++
		}
	}
	return count, nil
}

type LocationHistoryRepo struct {
	db *db
}

var _ ports.LocationHistoryRepository = (*LocationHistoryRepo)(nil)

func (r *LocationHistoryRepo) Archive(_ context.Context, record *geo.HistoryRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c := *record
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	record.ID = c.ID
	r.db.locations = append(r.db.locations, &c)
	return nil
}

// ListForDriver returns rows recorded at or after since, oldest first.
func (r *LocationHistoryRepo) ListForDriver(_ context.Context, driverID string, since time.Time, limit int) ([]*geo.HistoryRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*geo.HistoryRecord
	for _, rec := range r.db.locations {
		if rec.DriverID == driverID && !rec.RecordedAt.Before(since) {
			c := *rec
			out = append(out, &c)
		}
	}
	slices.SortStableFunc(out, func(a, b *geo.HistoryRecord) int { return a.RecordedAt.Compare(b.RecordedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (r *LocationHistoryRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	kept := r.db.locations[:0]
	for _, rec := range r.db.locations {
		if !rec.Expired(before) {
			kept = append(kept, rec)
		}
	}
	removed := len(r.db.locations) - len(kept)
	clear(r.db.locations[len(kept):])
	r.db.locations = kept
	return removed, nil
}
