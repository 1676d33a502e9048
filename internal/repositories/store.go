package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"messaging-service/internal/models"
)

const defaultBatchSize = 500

// Unit is the write surface of a single transaction. Everything done through
// one Unit commits or rolls back together.
type Unit interface {
	Now() time.Time
	GetUser(ctx context.Context, userID int64) (models.User, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	InsertMessage(ctx context.Context, msg *models.Message) error
	UpdateContent(ctx context.Context, messageID, version int64, content string) error
	AppendHistory(ctx context.Context, entry *models.HistoryEntry) error
	InsertNotification(ctx context.Context, n *models.Notification) error
	DeleteUser(ctx context.Context, userID int64) error
	VerifyUserRemoved(ctx context.Context, userID int64) error
}

// Transactor runs fn inside one transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(Unit) error) error
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for created/edited timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithBatchSize bounds the number of rows touched per bulk statement.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// Store is the sqlx-backed entity store for users, messages, history and
// notifications. Referential integrity and cascades live in the schema.
type Store struct {
	db        *sqlx.DB
	now       func() time.Time
	batchSize int
}

// NewStore constructs a Store.
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithTx begins a transaction, hands fn a Unit bound to it and commits when fn
// returns nil. Any error or panic rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(Unit) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(&txUnit{tx: tx, now: s.now}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// txUnit implements Unit on top of an open sqlx transaction.
type txUnit struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (u *txUnit) Now() time.Time {
	return u.now()
}

// isUniqueViolation recognises unique constraint failures from either driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
