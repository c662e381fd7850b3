package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ArchiveStore keeps a durable long-term record of conversations and their
// turns in PostgreSQL. It is not on the message hot path: the engine works
// against a Store (redis/memory); the archive exists for reporting and
// audit, and failures here never block message processing.
type ArchiveStore struct {
	db *sql.DB
}

// NewArchiveStore creates an archive store. A nil db yields a nil store;
// all methods on a nil store are no-ops, so wiring is optional.
func NewArchiveStore(db *sql.DB) *ArchiveStore {
	if db == nil {
		return nil
	}
	return &ArchiveStore{db: db}
}

// ConversationRecord is an archived conversation row.
type ConversationRecord struct {
	ID            uuid.UUID
	Key           string
	BusinessID    string
	Channel       string
	TurnCount     int
	UserTurns     int
	StartedAt     time.Time
	LastMessageAt *time.Time
}

// parseKey extracts the business and channel parts from a
// "chat:{business}:{channel}:{user}" conversation key.
func parseKey(key string) (businessID, channel string, ok bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "chat" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// EnsureConversation creates the conversation row if absent and returns
// its id, bumping updated_at when it already exists.
func (s *ArchiveStore) EnsureConversation(ctx context.Context, key Key) (uuid.UUID, error) {
	if s == nil || s.db == nil {
		return uuid.Nil, nil
	}

	keyStr := key.String()
	businessID, channel, ok := parseKey(keyStr)
	if !ok {
		return uuid.Nil, fmt.Errorf("conversation: invalid conversation key: %s", keyStr)
	}

	var existingID uuid.UUID
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE conversation_key = $1`,
		keyStr,
	).Scan(&existingID)

	if err == nil {
		_, _ = s.db.ExecContext(ctx,
			`UPDATE conversations SET updated_at = $1 WHERE id = $2`,
			time.Now(), existingID,
		)
		return existingID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("conversation: failed to query conversation: %w", err)
	}

	id := uuid.New()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, conversation_key, business_id, channel, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		id, keyStr, businessID, channel, time.Now(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("conversation: failed to insert conversation: %w", err)
	}
	return id, nil
}

// RecordTurn archives one turn and updates the conversation's counters.
func (s *ArchiveStore) RecordTurn(ctx context.Context, key Key, turn Turn) error {
	if s == nil || s.db == nil {
		return nil
	}

	convID, err := s.EnsureConversation(ctx, key)
	if err != nil {
		return err
	}
	if convID == uuid.Nil {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (id, conversation_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), convID, turn.Role, turn.Content, turn.At,
	)
	if err != nil {
		return fmt.Errorf("conversation: failed to insert turn: %w", err)
	}

	userIncrement := 0
	if turn.Role == RoleUser {
		userIncrement = 1
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET turn_count = turn_count + 1,
		     user_turn_count = user_turn_count + $1,
		     last_message_at = $2
		 WHERE id = $3`,
		userIncrement, turn.At, convID,
	)
	if err != nil {
		return fmt.Errorf("conversation: failed to update counters: %w", err)
	}
	return nil
}

// GetConversation loads an archived conversation by key.
func (s *ArchiveStore) GetConversation(ctx context.Context, key Key) (*ConversationRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}

	var rec ConversationRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT id, conversation_key, business_id, channel, turn_count, user_turn_count, started_at, last_message_at
		 FROM conversations WHERE conversation_key = $1`,
		key.String(),
	).Scan(&rec.ID, &rec.Key, &rec.BusinessID, &rec.Channel, &rec.TurnCount, &rec.UserTurns, &rec.StartedAt, &rec.LastMessageAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to load conversation: %w", err)
	}
	return &rec, nil
}
