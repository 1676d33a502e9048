package repositories

import (
	"context"
	"fmt"
)

type integrityCheck struct {
	name  string
	query string
}

var integrityChecks = []integrityCheck{
	{"orphaned history", `SELECT COUNT(*) FROM message_history h
        WHERE NOT EXISTS (SELECT 1 FROM messages m WHERE m.id = h.message_id)`},
	{"orphaned notifications", `SELECT COUNT(*) FROM notifications n
        WHERE NOT EXISTS (SELECT 1 FROM messages m WHERE m.id = n.message_id)`},
	{"messages without participants", `SELECT COUNT(*) FROM messages m
        WHERE NOT EXISTS (SELECT 1 FROM users u WHERE u.id = m.sender_id)
        OR NOT EXISTS (SELECT 1 FROM users u WHERE u.id = m.receiver_id)`},
	{"edited flag out of sync", `SELECT COUNT(*) FROM messages m
        WHERE m.edited <> EXISTS (SELECT 1 FROM message_history h WHERE h.message_id = m.id)`},
}

// VerifyIntegrity scans the whole store for rows that break ownership or the
// edited/history invariant. Any hit is a bug, not a retryable condition.
func (s *Store) VerifyIntegrity(ctx context.Context) error {
	for _, check := range integrityChecks {
		var count int
		if err := s.db.GetContext(ctx, &count, check.query); err != nil {
			return fmt.Errorf("integrity check %q: %w", check.name, err)
		}
		if count > 0 {
			return fmt.Errorf("%w: %s (%d rows)", ErrIntegrity, check.name, count)
		}
	}
	return nil
}
