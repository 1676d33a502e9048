package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"messaging-service/internal/models"
)

const historyColumns = `id, message_id, old_content, editor_id, edited_at`

// AppendHistory records the content a message held before an edit. The id is
// a monotonic sequence and breaks ties between equal edit times.
func (u *txUnit) AppendHistory(ctx context.Context, entry *models.HistoryEntry) error {
	if entry.EditedAt.IsZero() {
		entry.EditedAt = u.now()
	}
	err := u.tx.QueryRowxContext(ctx, u.tx.Rebind(`INSERT INTO message_history (message_id, old_content, editor_id, edited_at)
        VALUES (?, ?, ?, ?) RETURNING id`), entry.MessageID, entry.OldContent, entry.EditorID, entry.EditedAt).
		Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ListHistory returns a message's history, most recent edit first.
func (s *Store) ListHistory(ctx context.Context, messageID int64) ([]models.HistoryEntry, error) {
	entries := []models.HistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`SELECT `+historyColumns+` FROM message_history
        WHERE message_id = ? ORDER BY edited_at DESC, id DESC`), messageID)
	return entries, err
}

// MessageWithHistory reads a message and its history from one snapshot so
// the pair is consistent with each other.
func (s *Store) MessageWithHistory(ctx context.Context, messageID int64) (models.Message, []models.HistoryEntry, error) {
	tx, err := s.db.BeginTxx(ctx, snapshotTxOptions(s.db.DriverName()))
	if err != nil {
		return models.Message{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg, tx.Rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, nil, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, nil, err
	}

	entries := []models.HistoryEntry{}
	if err := tx.SelectContext(ctx, &entries, tx.Rebind(`SELECT `+historyColumns+` FROM message_history
        WHERE message_id = ? ORDER BY edited_at DESC, id DESC`), messageID); err != nil {
		return models.Message{}, nil, err
	}
	return msg, entries, nil
}

// snapshotTxOptions returns options under which every statement of a read
// transaction sees the same committed state. Postgres needs REPEATABLE READ
// for that; SQLite transactions already read from a single snapshot.
func snapshotTxOptions(driver string) *sql.TxOptions {
	if driver == "postgres" {
		return &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	}
	return nil
}

// GetHistoryEntry fetches a single history entry.
func (s *Store) GetHistoryEntry(ctx context.Context, entryID int64) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.db.GetContext(ctx, &entry, s.db.Rebind(`SELECT `+historyColumns+` FROM message_history WHERE id = ?`), entryID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrHistoryNotFound
	}
	return entry, err
}

// OldestHistory returns the first edit recorded for a message.
func (s *Store) OldestHistory(ctx context.Context, messageID int64) (models.HistoryEntry, error) {
	var entry models.HistoryEntry
	err := s.db.GetContext(ctx, &entry, s.db.Rebind(`SELECT `+historyColumns+` FROM message_history
        WHERE message_id = ? ORDER BY edited_at ASC, id ASC LIMIT 1`), messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.HistoryEntry{}, ErrHistoryNotFound
	}
	return entry, err
}

// ListEditsBy returns history entries authored by one editor, newest first.
func (s *Store) ListEditsBy(ctx context.Context, editorID int64) ([]models.HistoryEntry, error) {
	entries := []models.HistoryEntry{}
	err := s.db.SelectContext(ctx, &entries, s.db.Rebind(`SELECT `+historyColumns+` FROM message_history
        WHERE editor_id = ? ORDER BY edited_at DESC, id DESC`), editorID)
	return entries, err
}
