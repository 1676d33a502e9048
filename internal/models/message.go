package models

import "time"

// Message is a direct message between two users. Content is the only field
// edited after creation; Version guards concurrent content writes.
type Message struct {
	ID         int64     `db:"id" json:"id"`
	SenderID   int64     `db:"sender_id" json:"sender_id"`
	ReceiverID int64     `db:"receiver_id" json:"receiver_id"`
	ParentID   *int64    `db:"parent_id" json:"parent_id,omitempty"`
	Content    string    `db:"content" json:"content"`
	Edited     bool      `db:"edited" json:"edited"`
	Read       bool      `db:"read" json:"read"`
	Version    int64     `db:"version" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// IsReply reports whether the message belongs to another message's thread.
func (m Message) IsReply() bool {
	return m.ParentID != nil
}

// Involves reports whether the user is the sender or the receiver.
func (m Message) Involves(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// HistoryEntry records the content a message held before one edit.
type HistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	MessageID  int64     `db:"message_id" json:"message_id"`
	OldContent string    `db:"old_content" json:"old_content"`
	EditorID   *int64    `db:"editor_id" json:"editor_id,omitempty"`
	EditedAt   time.Time `db:"edited_at" json:"edited_at"`
}

// TimelineEntry is one version of a message content, newest first.
type TimelineEntry struct {
	Content   string    `json:"content"`
	Current   bool      `json:"current"`
	HistoryID int64     `json:"history_id,omitempty"`
	At        time.Time `json:"at"`
}

// Thread is a root message with its direct replies in send order.
type Thread struct {
	Root    Message   `json:"root"`
	Replies []Message `json:"replies"`
}

// SenderSummary aggregates a user's unread messages per sender.
type SenderSummary struct {
	SenderID       int64     `db:"sender_id" json:"sender_id"`
	SenderUsername string    `db:"sender_username" json:"sender_username"`
	UnreadCount    int       `db:"unread_count" json:"unread_count"`
	LatestAt       time.Time `db:"latest_at" json:"latest_at"`
}
