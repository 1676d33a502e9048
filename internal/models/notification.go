package models

import "time"

// NotificationKind names the event that produced a notification.
type NotificationKind string

const (
	KindNewMessage NotificationKind = "new-message"
	KindReply      NotificationKind = "reply"
	KindEdit       NotificationKind = "edit"
)

// Valid reports whether k is one of the known kinds.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindNewMessage, KindReply, KindEdit:
		return true
	}
	return false
}

// Notification tells a user that something happened to a message. Only Read
// changes after creation.
type Notification struct {
	ID        int64            `db:"id" json:"id"`
	UserID    int64            `db:"user_id" json:"user_id"`
	MessageID int64            `db:"message_id" json:"message_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Content   string           `db:"content" json:"content"`
	Read      bool             `db:"read" json:"read"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// NotificationEvent is pushed over websockets and published on the broker.
type NotificationEvent struct {
	Type         string        `json:"type"`
	Notification *Notification `json:"notification,omitempty"`
}
