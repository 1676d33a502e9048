package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"messaging-service/internal/models"
)

const userColumns = `id, username, created_at`

// CreateUser stores a new user with a unique username.
func (s *Store) CreateUser(ctx context.Context, username string) (models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.User{}, ErrInvalidUsername
	}

	user := models.User{Username: username, CreatedAt: s.now()}
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(`INSERT INTO users (username, created_at) VALUES (?, ?) RETURNING id`), user.Username, user.CreatedAt).
		Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// GetUser fetches a user by id.
func (s *Store) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// GetUserByUsername fetches a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE username = ?`), username)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

func (u *txUnit) GetUser(ctx context.Context, userID int64) (models.User, error) {
	var user models.User
	err := u.tx.GetContext(ctx, &user, u.tx.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// DeleteUser removes the user. The schema cascades to every message the user
// sent or received and from there to history and notifications.
func (u *txUnit) DeleteUser(ctx context.Context, userID int64) error {
	res, err := u.tx.ExecContext(ctx, u.tx.Rebind(`DELETE FROM users WHERE id = ?`), userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	return nil
}

// VerifyUserRemoved checks that nothing owned by the user survived deletion.
func (u *txUnit) VerifyUserRemoved(ctx context.Context, userID int64) error {
	var leftovers int
	err := u.tx.GetContext(ctx, &leftovers, u.tx.Rebind(`SELECT
            (SELECT COUNT(*) FROM messages WHERE sender_id = ? OR receiver_id = ?) +
            (SELECT COUNT(*) FROM notifications WHERE user_id = ?)`), userID, userID, userID)
	if err != nil {
		return fmt.Errorf("verify user removal: %w", err)
	}
	if leftovers > 0 {
		return fmt.Errorf("%w: %d rows still reference user %d", ErrIntegrity, leftovers, userID)
	}
	return nil
}
