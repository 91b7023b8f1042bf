package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meditreat/meditreat/pkg/message"
)

// Append inserts one message. Timestamps are stored as Unix nanoseconds so
// that ordering is numeric; the autoincrement id breaks ties.
func (b *Backend) Append(ctx context.Context, msg message.Message) (message.Message, error) {
	meta := msg.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return message.Message{}, fmt.Errorf("sqlite: marshal meta: %w", err)
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO messages (user_id, chat_id, sender, body, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		msg.UserID, msg.ChatID, string(msg.Sender), msg.Body, string(metaJSON), msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return message.Message{}, fmt.Errorf("sqlite: append message: %w", err)
	}

	return msg, nil
}

// Fetch returns up to n messages of the chat in chronological order.
func (b *Backend) Fetch(ctx context.Context, userID, chatID string, n int) ([]message.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := b.db.QueryContext(ctx, `
		SELECT user_id, chat_id, sender, body, meta, created_at
		FROM messages
		WHERE user_id = ? AND chat_id = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`,
		userID, chatID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: fetch: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var msgs []message.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: fetch rows: %w", err)
	}

	return msgs, nil
}

// Purge removes every message of the chat.
func (b *Backend) Purge(ctx context.Context, userID, chatID string) (int, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin purge tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE user_id = ? AND chat_id = ?", userID, chatID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge messages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: purge rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit purge: %w", err)
	}
	return int(n), nil
}

// Len returns the number of messages stored for a chat.
func (b *Backend) Len(ctx context.Context, userID, chatID string) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE user_id = ? AND chat_id = ?", userID, chatID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlite: count messages: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner) (message.Message, error) {
	var (
		msg       message.Message
		sender    string
		metaJSON  string
		createdNS int64
	)

	if err := s.Scan(&msg.UserID, &msg.ChatID, &sender, &msg.Body, &metaJSON, &createdNS); err != nil {
		return msg, fmt.Errorf("sqlite: scan message: %w", err)
	}

	msg.Sender = message.Sender(sender)
	msg.CreatedAt = time.Unix(0, createdNS).UTC()

	if err := json.Unmarshal([]byte(metaJSON), &msg.Meta); err != nil {
		return msg, fmt.Errorf("sqlite: unmarshal meta: %w", err)
	}
	if msg.Meta == nil {
		msg.Meta = map[string]any{}
	}

	return msg, nil
}
