package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const messageColumns = `id, sender_id, receiver_id, parent_id, content, edited, read, version, created_at`

func (u *txUnit) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := u.tx.GetContext(ctx, &msg, u.tx.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// InsertMessage stores a fresh message and fills in its id, version and
// creation time.
func (u *txUnit) InsertMessage(ctx context.Context, msg *models.Message) error {
	msg.CreatedAt = u.now()
	msg.Edited = false
	msg.Read = false
	msg.Version = 1
	err := u.tx.QueryRowxContext(ctx, u.tx.Rebind(`INSERT INTO messages (sender_id, receiver_id, parent_id, content, edited, read, version, created_at)
        VALUES (?, ?, ?, ?, FALSE, FALSE, 1, ?) RETURNING id`), msg.SenderID, msg.ReceiverID, msg.ParentID, msg.Content, msg.CreatedAt).
		Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// UpdateContent writes new content only if the row still carries version.
// A mismatch means another transaction committed first.
func (u *txUnit) UpdateContent(ctx context.Context, messageID, version int64, content string) error {
	res, err := u.tx.ExecContext(ctx, u.tx.Rebind(`UPDATE messages SET content = ?, edited = TRUE, version = version + 1
        WHERE id = ? AND version = ?`), content, messageID, version)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 1 {
		return nil
	}

	var exists bool
	if err := u.tx.GetContext(ctx, &exists, u.tx.Rebind(`SELECT EXISTS(SELECT 1 FROM messages WHERE id = ?)`), messageID); err != nil {
		return fmt.Errorf("check message: %w", err)
	}
	if !exists {
		return ErrMessageNotFound
	}
	return ErrStaleVersion
}

// GetMessage retrieves a single message.
func (s *Store) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := s.db.GetContext(ctx, &msg, s.db.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// DeleteMessage removes a message together with its replies, history and
// notifications.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM messages WHERE id = ?`), messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkRead flags a message read on behalf of its receiver.
func (s *Store) MarkRead(ctx context.Context, messageID, userID int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE messages SET read = TRUE WHERE id = ? AND receiver_id = ?`), messageID, userID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if _, err := s.GetMessage(ctx, messageID); err != nil {
		return err
	}
	return ErrNotReceiver
}

// MarkAllRead flags the user's unread messages read, optionally restricted to
// ids. Rows are updated in batches so no statement holds locks on an
// unbounded set of messages.
func (s *Store) MarkAllRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	if len(ids) > 0 {
		return s.markIDsRead(ctx, userID, ids)
	}

	query := s.db.Rebind(`UPDATE messages SET read = TRUE WHERE id IN (
            SELECT id FROM messages WHERE receiver_id = ? AND read = FALSE ORDER BY id LIMIT ?)`)
	var total int64
	for {
		res, err := s.db.ExecContext(ctx, query, userID, s.batchSize)
		if err != nil {
			return total, fmt.Errorf("mark all read: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += count
		if count < int64(s.batchSize) {
			return total, nil
		}
	}
}

func (s *Store) markIDsRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	var total int64
	for start := 0; start < len(ids); start += s.batchSize {
		end := min(start+s.batchSize, len(ids))
		query, args, err := sqlx.In(`UPDATE messages SET read = TRUE WHERE receiver_id = ? AND read = FALSE AND id IN (?)`, userID, ids[start:end])
		if err != nil {
			return total, err
		}
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return total, fmt.Errorf("mark read: %w", err)
		}
		count, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += count
	}
	return total, nil
}

// ListUnread returns the user's unread messages in receipt order, or with
// priority set, direct messages before replies and newest first within each
// group.
func (s *Store) ListUnread(ctx context.Context, userID int64, priority bool) ([]models.Message, error) {
	order := `ORDER BY created_at ASC, id ASC`
	if priority {
		order = `ORDER BY CASE WHEN parent_id IS NULL THEN 0 ELSE 1 END, created_at DESC, id DESC`
	}
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE receiver_id = ? AND read = FALSE `+order), userID)
	return msgs, err
}

// ListUnreadFromSender returns unread messages from one sender in receipt order.
func (s *Store) ListUnreadFromSender(ctx context.Context, userID, senderID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE receiver_id = ? AND sender_id = ? AND read = FALSE ORDER BY created_at ASC, id ASC`), userID, senderID)
	return msgs, err
}

// CountUnread counts the user's unread messages.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, s.db.Rebind(`SELECT COUNT(*) FROM messages WHERE receiver_id = ? AND read = FALSE`), userID)
	return count, err
}

// UnreadSummaryBySender groups the user's unread messages per sender, most
// recently active sender first.
func (s *Store) UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(`SELECT m.sender_id, u.username, m.created_at
        FROM messages m INNER JOIN users u ON u.id = m.sender_id
        WHERE m.receiver_id = ? AND m.read = FALSE
        ORDER BY m.created_at DESC, m.id DESC`), userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.SenderSummary{}
	index := map[int64]int{}
	for rows.Next() {
		var row models.SenderSummary
		if err := rows.Scan(&row.SenderID, &row.SenderUsername, &row.LatestAt); err != nil {
			return nil, err
		}
		if i, ok := index[row.SenderID]; ok {
			result[i].UnreadCount++
			continue
		}
		row.UnreadCount = 1
		index[row.SenderID] = len(result)
		result = append(result, row)
	}
	return result, rows.Err()
}

// UsersWithUnread lists receivers that have at least one unread message.
func (s *Store) UsersWithUnread(ctx context.Context) ([]int64, error) {
	ids := []int64{}
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT receiver_id FROM messages WHERE read = FALSE ORDER BY receiver_id`)
	return ids, err
}

// ListThread returns the root and its direct replies, oldest first.
func (s *Store) ListThread(ctx context.Context, rootID int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE id = ? OR parent_id = ? ORDER BY created_at ASC, id ASC`), rootID, rootID)
	return msgs, err
}

// ConversationBetween returns all messages exchanged by two users, oldest first.
func (s *Store) ConversationBetween(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.SelectContext(ctx, &msgs, s.db.Rebind(`SELECT `+messageColumns+` FROM messages
        WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)
        ORDER BY created_at ASC, id ASC`), userA, userB, userB, userA)
	return msgs, err
}
