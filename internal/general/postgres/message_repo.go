package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleet-realtime/internal/domain/chat"
	"fleet-realtime/internal/domain/user"
	"fleet-realtime/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepo persists chat messages using pgx and plain SQL.
type MessageRepo struct {
	pool *pgxpool.Pool
}

// NewMessageRepo constructs a new MessageRepo.
func NewMessageRepo(pool *pgxpool.Pool) ports.MessageRepository {
	return &MessageRepo{pool: pool}
}

type attachmentDoc struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
}

const messageColumns = `
	id, conversation_id, sender_id, sender_name, sender_role, recipient_id, content,
	read, read_at, deleted, deleted_at, attachments, created_at`

// Save inserts msg. Saving the same id twice keeps the first row.
func (repo *MessageRepo) Save(ctx context.Context, msg *chat.Message) error {
	// validate domain invariants
	if err := msg.Validate(); err != nil {
		return err
	}

	docs := make([]attachmentDoc, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		docs = append(docs, attachmentDoc{URL: a.URL, Type: a.Type, Name: a.Name})
	}
	attJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode attachments: %w", err)
	}

	_, err = querier(ctx, repo.pool).Exec(ctx, `
		INSERT INTO messages (
			id, conversation_id, sender_id, sender_name, sender_role, recipient_id,
			content, read, read_at, deleted, deleted_at, attachments, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO NOTHING
	`,
		msg.ID,
		msg.ConversationID,
		msg.SenderID,
		msg.SenderName,
		msg.SenderRole.String(),
		msg.RecipientID,
		msg.Content,
		msg.Read,
		msg.ReadAt,
		msg.Deleted,
		msg.DeletedAt,
		attJSON,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindByID returns the message even when it is soft-deleted.
func (repo *MessageRepo) FindByID(ctx context.Context, id string) (*chat.Message, error) {
	row := querier(ctx, repo.pool).QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrMessageNotFound
	}
	return msg, err
}

// ListPage returns visible messages newest first.
func (repo *MessageRepo) ListPage(ctx context.Context, conversationID string, limit, skip int) ([]*chat.Message, error) {
	rows, err := querier(ctx, repo.pool).Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND NOT deleted
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0) OFFSET $3
	`, conversationID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*chat.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// MarkRead flips one message; changed is false when it was already read.
func (repo *MessageRepo) MarkRead(ctx context.Context, id string, at time.Time) (bool, error) {
	q := querier(ctx, repo.pool)
	tag, err := q.Exec(ctx, `UPDATE messages SET read = true, read_at = $2 WHERE id = $1 AND NOT read`, id, at)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, repo.exists(ctx, q, id)
}

func (repo *MessageRepo) MarkReadForRecipient(ctx context.Context, conversationID, recipientID string, at time.Time) (int, error) {
	tag, err := querier(ctx, repo.pool).Exec(ctx, `
		UPDATE messages
		SET read = true, read_at = $3
		WHERE conversation_id = $1 AND recipient_id = $2 AND NOT read AND NOT deleted
	`, conversationID, recipientID, at)
	if err != nil {
		return 0, fmt.Errorf("mark conversation read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (repo *MessageRepo) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	q := querier(ctx, repo.pool)
	tag, err := q.Exec(ctx, `UPDATE messages SET deleted = true, deleted_at = $2 WHERE id = $1 AND NOT deleted`, id, at)
	if err != nil {
		return false, fmt.Errorf("soft delete message: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, repo.exists(ctx, q, id)
}

// exists tells "already in that state" apart from "no such message".
func (repo *MessageRepo) exists(ctx context.Context, q dbtx, id string) error {
	var found bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&found); err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if !found {
		return chat.ErrMessageNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (*chat.Message, error) {
	var (
		msg     chat.Message
		role    string
		attJSON []byte
	)
	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.SenderName, &role, &msg.RecipientID, &msg.Content,
		&msg.Read, &msg.ReadAt, &msg.Deleted, &msg.DeletedAt, &attJSON, &msg.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	msg.SenderRole = user.Role(role)

	var docs []attachmentDoc
	if len(attJSON) > 0 {
		if err := json.Unmarshal(attJSON, &docs); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}
	for _, d := range docs {
		msg.Attachments = append(msg.Attachments, chat.Attachment{URL: d.URL, Type: d.Type, Name: d.Name})
	}
	return &msg, nil
}
