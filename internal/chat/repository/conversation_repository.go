package repository

// Schema:
//
//   CREATE TABLE conversations (
//       id              UUID PRIMARY KEY,
//       participant_key TEXT NOT NULL UNIQUE,
//       created_at      TIMESTAMPTZ NOT NULL,
//       updated_at      TIMESTAMPTZ NOT NULL
//   );
//   CREATE TABLE conversation_members (
//       conversation_id UUID NOT NULL REFERENCES conversations(id),
//       user_id         TEXT NOT NULL,
//       UNIQUE (conversation_id, user_id)
//   );
//
// participant_key is the sorted participant set joined with ":". The UNIQUE
// constraint is what makes find-or-create race-free: two concurrent first
// messages between the same set collapse onto one row.

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"medlink_chat_service/internal/chat/domain"
	"medlink_chat_service/pkg/errs"
)

// ConversationRepository durable CRUD for conversations and memberships.
type ConversationRepository interface {
	FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error)
	FindByParticipants(ctx context.Context, normalizedIDs []string) (*domain.Conversation, error)
	// Create inserts a conversation with exactly the given membership.
	// Idempotent: a concurrent or earlier creation with the same
	// participant set returns the existing row.
	Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error)
	Touch(ctx context.Context, conversationID string, at time.Time) error
	ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error)
}

type conversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository create a ConversationRepository backed by PostgreSQL.
func NewConversationRepository(db *pgxpool.Pool) ConversationRepository {
	return &conversationRepository{db: db}
}

const conversationSelect = `
	SELECT c.id, c.created_at, c.updated_at, array_agg(m.user_id ORDER BY m.user_id)
	FROM conversations c
	JOIN conversation_members m ON m.conversation_id = c.id`

func (r *conversationRepository) FindByID(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRow(ctx, conversationSelect+" WHERE c.id = $1 GROUP BY c.id", conversationID)
	return scanConversation(row, conversationID)
}

func (r *conversationRepository) FindByParticipants(ctx context.Context, normalizedIDs []string) (*domain.Conversation, error) {
	key := domain.ParticipantKey(normalizedIDs)
	row := r.db.QueryRow(ctx, conversationSelect+" WHERE c.participant_key = $1 GROUP BY c.id", key)
	return scanConversation(row, key)
}

func (r *conversationRepository) Create(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	key := domain.ParticipantKey(conv.ParticipantIDs)

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO conversations (id, participant_key, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)
		 ON CONFLICT (participant_key) DO NOTHING`,
		conv.ID, key, conv.CreatedAt)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		// Lost the race (or the conversation already existed): hand back
		// the surviving row.
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			return nil, err
		}
		return r.FindByParticipants(ctx, conv.ParticipantIDs)
	}

	for _, userID := range conv.ParticipantIDs {
		if _, err := tx.Exec(ctx,
			"INSERT INTO conversation_members (conversation_id, user_id) VALUES ($1, $2)",
			conv.ID, userID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *conversationRepository) Touch(ctx context.Context, conversationID string, at time.Time) error {
	_, err := r.db.Exec(ctx, "UPDATE conversations SET updated_at = $1 WHERE id = $2", at, conversationID)
	return err
}

func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.id, c.created_at, c.updated_at, array_agg(m2.user_id ORDER BY m2.user_id)
		FROM conversations c
		JOIN conversation_members m ON m.conversation_id = c.id AND m.user_id = $1
		JOIN conversation_members m2 ON m2.conversation_id = c.id
		GROUP BY c.id
		ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		if err := rows.Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt, &conv.ParticipantIDs); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func scanConversation(row pgx.Row, ref string) (*domain.Conversation, error) {
	var conv domain.Conversation
	err := row.Scan(&conv.ID, &conv.CreatedAt, &conv.UpdatedAt, &conv.ParticipantIDs)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.NotFound("conversation %s", ref)
		}
		return nil, err
	}
	return &conv, nil
}
