package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-realtime/internal/domain/notification"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NotificationRepo is the notification_log table.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

// NewNotificationRepo constructs a new NotificationRepo.
func NewNotificationRepo(pool *pgxpool.Pool) ports.NotificationRepository {
	return &NotificationRepo{pool: pool}
}

// visibleTo matches rows addressed to the user, or role rows with no user.
const visibleTo = `(target_user_id = $1 OR (target_user_id IS NULL AND target_role = $2))`

func (repo *NotificationRepo) Log(ctx context.Context, n *notification.Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}

	var extra []byte
	if len(n.Extra) > 0 {
		b, err := json.Marshal(n.Extra)
		if err != nil {
			return fmt.Errorf("encode extra: %w", err)
		}
		extra = b
	}

	_, err := querier(ctx, repo.pool).Exec(ctx, `
		INSERT INTO notification_log (
			id, target_user_id, target_role, type, title, message, related_id, extra, read, created_at
		)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`,
		n.ID,
		n.Target.UserID,
		n.Target.Role.String(),
		string(n.Type),
		n.Title,
		n.Message,
		n.RelatedID,
		extra,
		n.Read,
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (repo *NotificationRepo) ListForUser(ctx context.Context, userID string, role user.Role, limit int) ([]*notification.Notification, error) {
	rows, err := querier(ctx, repo.pool).Query(ctx, `
		SELECT id, COALESCE(target_user_id, ''), COALESCE(target_role, ''), type, title, message,
		       related_id, extra, read, created_at
		FROM notification_log
		WHERE `+visibleTo+`
		ORDER BY created_at DESC
		LIMIT NULLIF($3, 0)
	`, userID, role.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var (
			n           notification.Notification
			target, typ string
			extra       []byte
		)
		if err := rows.Scan(&n.ID, &n.Target.UserID, &target, &typ, &n.Title, &n.Message,
			&n.RelatedID, &extra, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Target.Role = user.Role(target)
		n.Type = notification.Type(typ)
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &n.Extra); err != nil {
				return nil, fmt.Errorf("decode extra: %w", err)
			}
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (repo *NotificationRepo) MarkRead(ctx context.Context, id, userID string, role user.Role) error {
	tag, err := querier(ctx, repo.pool).Exec(ctx,
		`UPDATE notification_log SET read = true WHERE id = $3 AND `+visibleTo, userID, role.String(), id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

func (repo *NotificationRepo) MarkAllRead(ctx context.Context, userID string, role user.Role) (int, error) {
	tag, err := querier(ctx, repo.pool).Exec(ctx,
		`UPDATE notification_log SET read = true WHERE NOT read AND `+visibleTo, userID, role.String())
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (repo *NotificationRepo) Delete(ctx context.Context, id, userID string, role user.Role) error {
	tag, err := querier(ctx, repo.pool).Exec(ctx,
		`DELETE FROM notification_log WHERE id = $3 AND `+visibleTo, userID, role.String(), id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notification.ErrNotFound
	}
	return nil
}

// DeleteExpired removes rows created before the cut-off.
func (repo *NotificationRepo) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	tag, err := querier(ctx, repo.pool).Exec(ctx, `DELETE FROM notification_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
