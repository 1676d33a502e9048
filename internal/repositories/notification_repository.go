package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messaging-service/internal/models"
)

const notificationColumns = `id, user_id, message_id, kind, content, read, created_at`

// NotificationFilter narrows ListNotifications.
type NotificationFilter struct {
	UnreadOnly bool
	Kind       models.NotificationKind
	Limit      int
}

func (u *txUnit) InsertNotification(ctx context.Context, n *models.Notification) error {
	n.CreatedAt = u.now()
	n.Read = false
	err := u.tx.QueryRowxContext(ctx, u.tx.Rebind(`INSERT INTO notifications (user_id, message_id, kind, content, read, created_at)
        VALUES (?, ?, ?, ?, FALSE, ?) RETURNING id`), n.UserID, n.MessageID, n.Kind, n.Content, n.CreatedAt).
		Scan(&n.ID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID int64, filter NotificationFilter) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE user_id = ?`
	args := []any{userID}
	if filter.UnreadOnly {
		query += ` AND read = FALSE`
	}
	if filter.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, filter.Kind)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	notes := []models.Notification{}
	err := s.db.SelectContext(ctx, &notes, s.db.Rebind(query), args...)
	return notes, err
}

// MarkNotificationsRead flags the user's unread notifications read, optionally
// restricted to ids.
func (s *Store) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	var (
		query string
		args  []any
		err   error
	)
	if len(ids) > 0 {
		query, args, err = sqlx.In(`UPDATE notifications SET read = TRUE WHERE user_id = ? AND read = FALSE AND id IN (?)`, userID, ids)
		if err != nil {
			return 0, err
		}
	} else {
		query, args = `UPDATE notifications SET read = TRUE WHERE user_id = ? AND read = FALSE`, []any{userID}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}
