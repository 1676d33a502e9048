package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messaging-service/internal/models"
	"messaging-service/internal/query"
	"messaging-service/internal/repositories"
)

type MutatorMock struct {
	mock.Mock
}

func (m *MutatorMock) CreateMessage(ctx context.Context, senderID, receiverID int64, content string, parentID *int64) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, content, parentID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MutatorMock) UpdateMessageContent(ctx context.Context, messageID, editorID int64, content string) (models.Message, error) {
	args := m.Called(ctx, messageID, editorID, content)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MutatorMock) RevertTo(ctx context.Context, messageID, historyID int64) (models.Message, error) {
	args := m.Called(ctx, messageID, historyID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MutatorMock) DeleteMessage(ctx context.Context, messageID, actorID int64) error {
	args := m.Called(ctx, messageID, actorID)
	return args.Error(0)
}

func (m *MutatorMock) MarkRead(ctx context.Context, messageID, userID int64) error {
	args := m.Called(ctx, messageID, userID)
	return args.Error(0)
}

func (m *MutatorMock) MarkAllRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MutatorMock) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	args := m.Called(ctx, userID, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MutatorMock) CreateUser(ctx context.Context, username string) (models.User, error) {
	args := m.Called(ctx, username)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *MutatorMock) DeleteUser(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

type ReaderMock struct {
	mock.Mock
}

func (m *ReaderMock) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ReaderMock) UnreadFor(ctx context.Context, userID int64, priority bool) ([]models.Message, error) {
	args := m.Called(ctx, userID, priority)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) UnreadCount(ctx context.Context, userID int64) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *ReaderMock) UnreadFromSender(ctx context.Context, userID, senderID int64) ([]models.Message, error) {
	args := m.Called(ctx, userID, senderID)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error) {
	args := m.Called(ctx, userID)
	var list []models.SenderSummary
	if val := args.Get(0); val != nil {
		list = val.([]models.SenderSummary)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) EditHistoryOf(ctx context.Context, messageID int64) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, messageID)
	var list []models.HistoryEntry
	if val := args.Get(0); val != nil {
		list = val.([]models.HistoryEntry)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) TimelineOf(ctx context.Context, messageID int64) (query.Timeline, error) {
	args := m.Called(ctx, messageID)
	var timeline query.Timeline
	if val := args.Get(0); val != nil {
		timeline = val.(query.Timeline)
	}
	return timeline, args.Error(1)
}

func (m *ReaderMock) ThreadOf(ctx context.Context, messageID int64) (models.Thread, error) {
	args := m.Called(ctx, messageID)
	var thread models.Thread
	if val := args.Get(0); val != nil {
		thread = val.(models.Thread)
	}
	return thread, args.Error(1)
}

func (m *ReaderMock) OriginalContentOf(ctx context.Context, messageID int64) (string, error) {
	args := m.Called(ctx, messageID)
	return args.String(0), args.Error(1)
}

func (m *ReaderMock) ConversationBetween(ctx context.Context, userA, userB int64) ([]models.Message, error) {
	args := m.Called(ctx, userA, userB)
	var list []models.Message
	if val := args.Get(0); val != nil {
		list = val.([]models.Message)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) EditsBy(ctx context.Context, editorID int64) ([]models.HistoryEntry, error) {
	args := m.Called(ctx, editorID)
	var list []models.HistoryEntry
	if val := args.Get(0); val != nil {
		list = val.([]models.HistoryEntry)
	}
	return list, args.Error(1)
}

func (m *ReaderMock) NotificationsFor(ctx context.Context, userID int64, filter repositories.NotificationFilter) ([]models.Notification, error) {
	args := m.Called(ctx, userID, filter)
	var list []models.Notification
	if val := args.Get(0); val != nil {
		list = val.([]models.Notification)
	}
	return list, args.Error(1)
}
