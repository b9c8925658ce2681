package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/relaychat-server/internal/store"
)

const roomColumns = `r.id, r.type, r.name, r.direct_key, r.last_message_id, r.created_at, r.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner, extra ...any) (*store.Room, error) {
	var room store.Room
	var directKey sql.NullString
	var lastMessageID sql.NullInt64
	dest := []any{
		&room.ID,
		&room.Type,
		&room.Name,
		&directKey,
		&lastMessageID,
		&room.CreatedAt,
		&room.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if directKey.Valid {
		room.DirectKey = &directKey.String
	}
	if lastMessageID.Valid {
		room.LastMessageID = &lastMessageID.Int64
	}
	return &room, nil
}

// DirectKey returns the deduplication key of the direct room between two users.
func DirectKey(user1ID, user2ID int64) string {
	if user1ID > user2ID {
		user1ID, user2ID = user2ID, user1ID
	}
	return fmt.Sprintf("dm:%d:%d", user1ID, user2ID)
}

// CreateGroupRoom creates a group room with the given members.
func (s *SQLiteStore) CreateGroupRoom(ctx context.Context, name string, memberIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	ts := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (type, name, created_at, updated_at) VALUES ('group', ?, ?, ?)`,
		name, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`,
			roomID, userID, ts,
		); err != nil {
			return nil, fmt.Errorf("add member %d: %w", userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// CreateDirectRoom returns the direct room between two users, creating it if needed.
// Concurrent calls for the same pair resolve to the same room.
func (s *SQLiteStore) CreateDirectRoom(ctx context.Context, user1ID, user2ID int64) (*store.Room, error) {
	directKey := DirectKey(user1ID, user2ID)

	room, err := s.getRoomByDirectKey(ctx, directKey)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("check existing room: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	ts := now()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (type, name, direct_key, created_at, updated_at) VALUES ('direct', '', ?, ?, ?)
		 ON CONFLICT(direct_key) DO NOTHING`,
		directKey, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("get rows affected: %w", err)
	}
	if inserted == 0 {
		// Another request created the room first.
		_ = tx.Rollback() //nolint:errcheck // nothing was written
		return s.getRoomByDirectKey(ctx, directKey)
	}

	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	memberQuery := `INSERT INTO room_members (room_id, user_id, joined_at) VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, user1ID, ts); err != nil {
		return nil, fmt.Errorf("add user1 to members: %w", err)
	}
	if _, err := tx.ExecContext(ctx, memberQuery, roomID, user2ID, ts); err != nil {
		return nil, fmt.Errorf("add user2 to members: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

// GetRoomByID retrieves a room by ID.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.id = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %d: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

func (s *SQLiteStore) getRoomByDirectKey(ctx context.Context, directKey string) (*store.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms r WHERE r.direct_key = ?`
	room, err := scanRoom(s.db.QueryRowContext(ctx, query, directKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("room %s: %w", directKey, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return room, nil
}

// ListRoomIDs lists the IDs of all rooms the user is a member of.
func (s *SQLiteStore) ListRoomIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.queryIDs(ctx, `SELECT room_id FROM room_members WHERE user_id = ? ORDER BY room_id`, userID)
}

// ListInbox returns room summaries for a member, most recently updated first.
func (s *SQLiteStore) ListInbox(ctx context.Context, userID int64) ([]*store.InboxEntry, error) {
	query := `
		SELECT ` + roomColumns + `, rm.last_read_at
		FROM rooms r
		JOIN room_members rm ON rm.room_id = r.id
		WHERE rm.user_id = ?
		ORDER BY r.updated_at DESC, r.id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}

	type inboxRow struct {
		room     *store.Room
		lastRead sql.NullTime
	}
	var collected []inboxRow
	for rows.Next() {
		var r inboxRow
		room, err := scanRoom(rows, &r.lastRead)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan room: %w", err)
		}
		r.room = room
		collected = append(collected, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// The pool holds a single connection: release it before the follow-up queries.
	rows.Close()

	entries := make([]*store.InboxEntry, 0, len(collected))
	for _, r := range collected {
		entry := &store.InboxEntry{Room: r.room}

		if entry.Members, err = s.ListMembers(ctx, r.room.ID); err != nil {
			return nil, err
		}
		if r.room.LastMessageID != nil {
			msg, err := s.GetMessage(ctx, *r.room.LastMessageID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, err
			}
			entry.LastMessage = msg
		}

		var lastRead time.Time
		if r.lastRead.Valid {
			lastRead = r.lastRead.Time.UTC()
		}
		err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM messages
			WHERE room_id = ? AND sender_id != ? AND created_at > ?
		`, r.room.ID, userID, lastRead).Scan(&entry.UnreadCount)
		if err != nil {
			return nil, fmt.Errorf("count unread: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// AddMember adds a user to a room.
func (s *SQLiteStore) AddMember(ctx context.Context, userID, roomID int64) error {
	query := `
		INSERT OR IGNORE INTO room_members (room_id, user_id, joined_at)
		VALUES (?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, roomID, userID, now()); err != nil {
		return fmt.Errorf("insert room member: %w", err)
	}
	return nil
}

// IsMember checks if user is a member of the room.
func (s *SQLiteStore) IsMember(ctx context.Context, userID, roomID int64) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM room_members WHERE user_id = ? AND room_id = ?`, userID, roomID,
	).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// ListMembers lists all members of a room in join order.
func (s *SQLiteStore) ListMembers(ctx context.Context, roomID int64) ([]int64, error) {
	return s.queryIDs(ctx, `
		SELECT user_id FROM room_members
		WHERE room_id = ?
		ORDER BY joined_at ASC, user_id ASC
	`, roomID)
}

// UpdateRoomLastMessage points the room at its most recent message.
// The message must belong to the room.
func (s *SQLiteStore) UpdateRoomLastMessage(ctx context.Context, roomID, messageID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET last_message_id = ?, updated_at = ?
		WHERE id = ? AND EXISTS (SELECT 1 FROM messages WHERE id = ? AND room_id = ?)
	`, messageID, now(), roomID, messageID, roomID)
	if err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	return requireAffected(result, "room message")
}

// MarkRoomRead stamps the member's last-read time.
func (s *SQLiteStore) MarkRoomRead(ctx context.Context, roomID, userID int64, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE room_members SET last_read_at = ? WHERE room_id = ? AND user_id = ?`,
		at.UTC(), roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("update last read: %w", err)
	}
	return requireAffected(result, "room member")
}

func (s *SQLiteStore) queryIDs(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
