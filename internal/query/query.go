// Package query holds the read side of the messaging core. Every method is a
// plain read against the store; callers own any caching.
package query

import (
	"context"
	"errors"

	"messaging-service/internal/models"
	"messaging-service/internal/repositories"
)

// Store is the read surface the façade depends on.
type Store interface {
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	ListUnread(ctx context.Context, userID int64, priority bool) ([]models.Message, error)
	ListUnreadFromSender(ctx context.Context, userID, senderID int64) ([]models.Message, error)
	CountUnread(ctx context.Context, userID int64) (int, error)
	UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error)
	MessageWithHistory(ctx context.Context, messageID int64) (models.Message, []models.HistoryEntry, error)
	OldestHistory(ctx context.Context, messageID int64) (models.HistoryEntry, error)
	ListThread(ctx context.Context, rootID int64) ([]models.Message, error)
	ConversationBetween(ctx context.Context, userA, userB int64) ([]models.Message, error)
	ListEditsBy(ctx context.Context, editorID int64) ([]models.HistoryEntry, error)
	ListNotifications(ctx context.Context, userID int64, filter repositories.NotificationFilter) ([]models.Notification, error)
	GetUser(ctx context.Context, userID int64) (models.User, error)
}

type Facade struct {
	store Store
}

func NewFacade(store Store) *Facade {
	return &Facade{store: store}
}

func (f *Facade) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	return f.store.GetMessage(ctx, messageID)
}

// UnreadFor lists the user's unread messages in receipt order. With priority
// set, direct messages come before replies, newest first in each group.
func (f *Facade) UnreadFor(ctx context.Context, userID int64, priority bool) ([]models.Message, error) {
	return f.store.ListUnread(ctx, userID, priority)
}

func (f *Facade) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return f.store.CountUnread(ctx, userID)
}

// UnreadFromSender lists unread messages sent to userID by senderID.
func (f *Facade) UnreadFromSender(ctx context.Context, userID, senderID int64) ([]models.Message, error) {
	return f.store.ListUnreadFromSender(ctx, userID, senderID)
}

// UnreadSummaryBySender groups unread messages per sender, most recently
// active sender first.
func (f *Facade) UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error) {
	return f.store.UnreadSummaryBySender(ctx, userID)
}

// EditHistoryOf returns the message's history, most recent edit first.
func (f *Facade) EditHistoryOf(ctx context.Context, messageID int64) ([]models.HistoryEntry, error) {
	_, history, err := f.store.MessageWithHistory(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return history, nil
}

// TimelineOf snapshots the message and its history for iteration.
func (f *Facade) TimelineOf(ctx context.Context, messageID int64) (Timeline, error) {
	msg, history, err := f.store.MessageWithHistory(ctx, messageID)
	if err != nil {
		return Timeline{}, err
	}
	return Timeline{message: msg, history: history}, nil
}

// ThreadOf returns the thread the message belongs to: its root and the
// root's direct replies.
func (f *Facade) ThreadOf(ctx context.Context, messageID int64) (models.Thread, error) {
	msg, err := f.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.Thread{}, err
	}
	rootID := msg.ID
	if msg.ParentID != nil {
		rootID = *msg.ParentID
	}

	msgs, err := f.store.ListThread(ctx, rootID)
	if err != nil {
		return models.Thread{}, err
	}
	thread := models.Thread{Replies: []models.Message{}}
	found := false
	for _, m := range msgs {
		if m.ID == rootID {
			thread.Root = m
			found = true
			continue
		}
		thread.Replies = append(thread.Replies, m)
	}
	if !found {
		return models.Thread{}, repositories.ErrMessageNotFound
	}
	return thread, nil
}

// OriginalContentOf returns the content the message was created with. The
// message is read before its oldest edit: history only grows, so if no edit
// exists by the second read the content from the first is still the original.
func (f *Facade) OriginalContentOf(ctx context.Context, messageID int64) (string, error) {
	msg, err := f.store.GetMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	oldest, err := f.store.OldestHistory(ctx, messageID)
	if errors.Is(err, repositories.ErrHistoryNotFound) {
		return msg.Content, nil
	}
	if err != nil {
		return "", err
	}
	return oldest.OldContent, nil
}

// ConversationBetween returns every message exchanged by two users, oldest
// first.
func (f *Facade) ConversationBetween(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	return f.store.ConversationBetween(ctx, userA, userB)
}

// EditsBy lists history entries recorded for edits made by editorID.
func (f *Facade) EditsBy(ctx context.Context, editorID int64) ([]models.HistoryEntry, error) {
	if _, err := f.store.GetUser(ctx, editorID); err != nil {
		return nil, err
	}
	return f.store.ListEditsBy(ctx, editorID)
}

func (f *Facade) NotificationsFor(ctx context.Context, userID int64, filter repositories.NotificationFilter) ([]models.Notification, error) {
	return f.store.ListNotifications(ctx, userID, filter)
}
