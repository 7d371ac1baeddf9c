package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"parkdash/backend/libs/db"
)

// StreamMessage is one raw inbound stream message as stored for audit.
type StreamMessage struct {
	ID          int64
	SessionID   string
	MessageType string
	Payload     []byte
	ReceivedAt  time.Time
}

// StreamLogRepository stores raw event stream messages.
type StreamLogRepository struct {
	db *sql.DB
}

// NewStreamLogRepository ctor.
func NewStreamLogRepository(db *sql.DB) *StreamLogRepository {
	return &StreamLogRepository{db: db}
}

// EnsureSchema creates the audit table when missing.
func (r *StreamLogRepository) EnsureSchema(ctx context.Context) error {
	return db.ExecAll(ctx, r.db, `
		CREATE TABLE IF NOT EXISTS stream_messages (
			id           BIGSERIAL PRIMARY KEY,
			session_id   TEXT        NOT NULL,
			message_type TEXT        NOT NULL,
			payload      JSONB       NOT NULL,
			received_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS stream_messages_session_idx ON stream_messages (session_id, id)`,
	)
}

// Save stores one message. Payloads that are not valid JSON are stored as a JSON string.
func (r *StreamLogRepository) Save(ctx context.Context, sessionID, messageType string, payload []byte) error {
	const query = `
		INSERT INTO stream_messages (session_id, message_type, payload)
		VALUES ($1, $2, $3::jsonb)
	`
	if !json.Valid(payload) {
		wrapped, err := json.Marshal(string(payload))
		if err != nil {
			return err
		}
		payload = wrapped
	}
	_, err := r.db.ExecContext(ctx, query, sessionID, messageType, string(payload))
	return err
}

// ListBySession returns the newest messages of a session first.
func (r *StreamLogRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]StreamMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
		SELECT id, session_id, message_type, payload::text, received_at
		FROM stream_messages
		WHERE session_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StreamMessage
	for rows.Next() {
		var (
			m       StreamMessage
			payload string
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.MessageType, &payload, &m.ReceivedAt); err != nil {
			return nil, err
		}
		m.Payload = []byte(payload)
		out = append(out, m)
	}
	return out, rows.Err()
}
