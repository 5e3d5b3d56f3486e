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

// ConversationRepo persists conversations using pgx and plain SQL.
// Participants, the preview and unread counters are JSONB columns.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

// NewConversationRepo constructs a new ConversationRepo.
func NewConversationRepo(pool *pgxpool.Pool) ports.ConversationRepository {
	return &ConversationRepo{pool: pool}
}

type participantDoc struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	UserRole string `json:"userRole,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

type lastMessageDoc struct {
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	Timestamp time.Time `json:"timestamp"`
}

const conversationColumns = `
	id, participants, type, name, last_message, unread_counts, archived, created_at, updated_at`

// Create inserts conv unless the id already exists.
func (repo *ConversationRepo) Create(ctx context.Context, conv *chat.Conversation) (bool, error) {
	participants := make([]participantDoc, 0, len(conv.Participants))
	for _, p := range conv.Participants {
		participants = append(participants, participantDoc{
			UserID: p.UserID, UserName: p.UserName, UserRole: p.UserRole.String(), Avatar: p.Avatar,
		})
	}
	partJSON, err := json.Marshal(participants)
	if err != nil {
		return false, fmt.Errorf("encode participants: %w", err)
	}
	unread := conv.UnreadCounts
	if unread == nil {
		unread = map[string]int{}
	}
	unreadJSON, err := json.Marshal(unread)
	if err != nil {
		return false, fmt.Errorf("encode unread counts: %w", err)
	}

	tag, err := querier(ctx, repo.pool).Exec(ctx, `
		INSERT INTO conversations (
			id, participants, participant_ids, type, name,
			unread_counts, archived, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`,
		conv.ID,
		partJSON,
		conv.ParticipantIDs(),
		string(conv.Type),
		conv.Name,
		unreadJSON,
		conv.Archived,
		conv.CreatedAt,
		conv.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert conversation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (repo *ConversationRepo) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	row := querier(ctx, repo.pool).QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, chat.ErrConversationNotFound
	}
	return conv, err
}

// ListForUser returns non-archived conversations, newest preview first.
func (repo *ConversationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]*chat.Conversation, error) {
	rows, err := querier(ctx, repo.pool).Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE $1 = ANY(participant_ids) AND NOT archived
		ORDER BY last_message_at DESC NULLS LAST, created_at DESC
		LIMIT NULLIF($2, 0)
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*chat.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// RecordMessage sets the preview and bumps the recipient's unread counter in one statement.
func (repo *ConversationRepo) RecordMessage(ctx context.Context, conversationID string, preview chat.LastMessage, recipientID string) error {
	doc, err := json.Marshal(lastMessageDoc{
		Content: preview.Content, SenderID: preview.SenderID, Timestamp: preview.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	tag, err := querier(ctx, repo.pool).Exec(ctx, `
		UPDATE conversations
		SET last_message    = $2,
		    last_message_at = $3,
		    unread_counts   = jsonb_set(unread_counts, ARRAY[$4::text],
		                      to_jsonb(COALESCE((unread_counts ->> $4::text)::int, 0) + 1)),
		    updated_at      = now()
		WHERE id = $1
	`, conversationID, doc, preview.Timestamp, recipientID)
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

// AdjustUnread adds delta to one counter, never going below zero.
func (repo *ConversationRepo) AdjustUnread(ctx context.Context, conversationID, userID string, delta int) error {
	tag, err := querier(ctx, repo.pool).Exec(ctx, `
		UPDATE conversations
		SET unread_counts = jsonb_set(unread_counts, ARRAY[$2::text],
		                    to_jsonb(GREATEST(0, COALESCE((unread_counts ->> $2::text)::int, 0) + $3::int)))
		WHERE id = $1
	`, conversationID, userID, delta)
	if err != nil {
		return fmt.Errorf("adjust unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func (repo *ConversationRepo) ResetUnread(ctx context.Context, conversationID, userID string) error {
	tag, err := querier(ctx, repo.pool).Exec(ctx, `
		UPDATE conversations
		SET unread_counts = jsonb_set(unread_counts, ARRAY[$2::text], '0'::jsonb)
		WHERE id = $1
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("reset unread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return chat.ErrConversationNotFound
	}
	return nil
}

func scanConversation(row pgx.Row) (*chat.Conversation, error) {
	var (
		conv                 chat.Conversation
		typ                  string
		partJSON, unreadJSON []byte
		lastJSON             []byte
	)
	err := row.Scan(
		&conv.ID, &partJSON, &typ, &conv.Name, &lastJSON, &unreadJSON,
		&conv.Archived, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	conv.Type = chat.Type(typ)

	var participants []participantDoc
	if err := json.Unmarshal(partJSON, &participants); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	for _, p := range participants {
		conv.Participants = append(conv.Participants, chat.Participant{
			UserID: p.UserID, UserName: p.UserName, UserRole: user.Role(p.UserRole), Avatar: p.Avatar,
		})
	}

	conv.UnreadCounts = map[string]int{}
	if len(unreadJSON) > 0 {
		if err := json.Unmarshal(unreadJSON, &conv.UnreadCounts); err != nil {
			return nil, fmt.Errorf("decode unread counts: %w", err)
		}
	}

	if len(lastJSON) > 0 {
		var lm lastMessageDoc
		if err := json.Unmarshal(lastJSON, &lm); err != nil {
			return nil, fmt.Errorf("decode preview: %w", err)
		}
		conv.LastMessage = &chat.LastMessage{Content: lm.Content, SenderID: lm.SenderID, Timestamp: lm.Timestamp}
	}
	return &conv, nil
}
