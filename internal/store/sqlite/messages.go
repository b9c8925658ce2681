package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

const messageColumns = `id, room_id, sender_id, body, media_url, edited, created_at, updated_at`

func scanMessage(row rowScanner) (*store.Message, error) {
	var msg store.Message
	err := row.Scan(
		&msg.ID,
		&msg.RoomID,
		&msg.SenderID,
		&msg.Body,
		&msg.MediaURL,
		&msg.Edited,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// CreateMessage persists a new message. The sender is part of its seen-set.
func (s *SQLiteStore) CreateMessage(ctx context.Context, roomID, senderID int64, body, mediaURL string) (*store.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	ts := now()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, body, media_url, edited, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, roomID, senderID, body, mediaURL, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO message_seen (message_id, user_id, seen_at) VALUES (?, ?, ?)`,
		id, senderID, ts,
	); err != nil {
		return nil, fmt.Errorf("insert seen: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &store.Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		MediaURL:  mediaURL,
		SeenBy:    []int64{senderID},
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	if msg.SeenBy, err = s.queryIDs(ctx,
		`SELECT user_id FROM message_seen WHERE message_id = ? ORDER BY user_id`, id,
	); err != nil {
		return nil, err
	}

	return msg, nil
}

// EditMessage replaces the body and marks the message as edited.
func (s *SQLiteStore) EditMessage(ctx context.Context, id int64, body string) (*store.Message, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE messages SET body = ?, edited = 1, updated_at = ? WHERE id = ?`,
		body, now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if err := requireAffected(result, "message"); err != nil {
		return nil, err
	}

	return s.GetMessage(ctx, id)
}

// DeleteMessage removes a message and repoints the room's last-message pointer
// at the newest remaining message of the room.
func (s *SQLiteStore) DeleteMessage(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	var roomID int64
	if err := tx.QueryRowContext(ctx, `SELECT room_id FROM messages WHERE id = ?`, id).Scan(&roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("message %d: %w", id, store.ErrNotFound)
		}
		return fmt.Errorf("query message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_seen WHERE message_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE rooms
		SET last_message_id = (SELECT MAX(id) FROM messages WHERE room_id = ?)
		WHERE id = ? AND last_message_id = ?
	`, roomID, roomID, id); err != nil {
		return fmt.Errorf("repoint last message: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListMessages retrieves messages from a room in chronological order.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID int64, limit int, beforeID *int64) ([]*store.Message, error) {
	var query string
	var args []any

	if beforeID != nil {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE room_id = ? AND id < ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{roomID, *beforeID, limit}
	} else {
		query = `
			SELECT ` + messageColumns + `
			FROM messages
			WHERE room_id = ?
			ORDER BY id DESC
			LIMIT ?
		`
		args = []any{roomID, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	var messages []*store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(messages) == 0 {
		return messages, nil
	}

	// Reverse to get chronological order
	slices.Reverse(messages)

	if err := s.loadSeen(ctx, roomID, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// loadSeen fills the seen-sets of chronologically ordered messages of one room.
func (s *SQLiteStore) loadSeen(ctx context.Context, roomID int64, messages []*store.Message) error {
	byID := make(map[int64]*store.Message, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT ms.message_id, ms.user_id
		FROM message_seen ms
		JOIN messages m ON m.id = ms.message_id
		WHERE m.room_id = ? AND ms.message_id BETWEEN ? AND ?
		ORDER BY ms.message_id, ms.user_id
	`, roomID, messages[0].ID, messages[len(messages)-1].ID)
	if err != nil {
		return fmt.Errorf("query seen: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, userID int64
		if err := rows.Scan(&messageID, &userID); err != nil {
			return fmt.Errorf("scan seen: %w", err)
		}
		if msg, ok := byID[messageID]; ok {
			msg.SeenBy = append(msg.SeenBy, userID)
		}
	}
	return rows.Err()
}

// AddSeenBy adds the user to the seen-set of every message in the room.
func (s *SQLiteStore) AddSeenBy(ctx context.Context, roomID, userID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO message_seen (message_id, user_id, seen_at)
		SELECT id, ?, ? FROM messages WHERE room_id = ?
	`, userID, now(), roomID)
	if err != nil {
		return 0, fmt.Errorf("insert seen: %w", err)
	}

	added, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return added, nil
}
