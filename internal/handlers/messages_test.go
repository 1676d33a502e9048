package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/cache"
	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/query"
	"messaging-service/internal/repositories"
)

const callerID int64 = 1

func setupRouter(messages *MessageHandler, notifications *NotificationHandler, users *UserHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	auth := func(c *gin.Context) {
		c.Set("userID", callerID)
		c.Next()
	}
	RegisterRoutes(r, messages, notifications, users, auth, func(c *gin.Context) { c.Next() })
	return r
}

func newMessageRouter(mutator *mocks.MutatorMock, reader *mocks.ReaderMock, c cache.Cache) *gin.Engine {
	return setupRouter(NewMessageHandler(mutator, reader, c), NewNotificationHandler(mutator, reader), NewUserHandler(mutator, nil))
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPostMessageSuccess(t *testing.T) {
	mutator := new(mocks.MutatorMock)
	router := newMessageRouter(mutator, new(mocks.ReaderMock), nil)

	parent := int64(4)
	mutator.On("CreateMessage", mock.Anything, callerID, int64(2), "hi", &parent).
		Return(models.Message{ID: 9, SenderID: callerID, ReceiverID: 2, Content: "hi", ParentID: &parent}, nil).Once()

	rec := doRequest(router, http.MethodPost, "/messages", `{"receiver_id":2,"content":"hi","parent_id":4}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var msg models.Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msg))
	assert.Equal(t, int64(9), msg.ID)
	mutator.AssertExpectations(t)
}

func TestPostMessageErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "validation", err: repositories.ErrUnknownRecipient, status: http.StatusBadRequest},
		{name: "not found", err: repositories.ErrMessageNotFound, status: http.StatusNotFound},
		{name: "conflict", err: repositories.ErrStaleVersion, status: http.StatusConflict},
		{name: "internal", err: assert.AnError, status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mutator := new(mocks.MutatorMock)
			router := newMessageRouter(mutator, new(mocks.ReaderMock), nil)
			mutator.On("CreateMessage", mock.Anything, callerID, int64(2), "hi", (*int64)(nil)).
				Return(nil, tc.err).Once()

			rec := doRequest(router, http.MethodPost, "/messages", `{"receiver_id":2,"content":"hi"}`)
			assert.Equal(t, tc.status, rec.Code)
			mutator.AssertExpectations(t)
		})
	}
}

func TestPostMessageBadBody(t *testing.T) {
	router := newMessageRouter(new(mocks.MutatorMock), new(mocks.ReaderMock), nil)
	rec := doRequest(router, http.MethodPost, "/messages", `{"content":"hi"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEditMessageSenderOnly(t *testing.T) {
	mutator := new(mocks.MutatorMock)
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(mutator, reader, nil)

	reader.On("GetMessage", mock.Anything, int64(5)).Return(models.Message{ID: 5, SenderID: 2, ReceiverID: callerID}, nil).Once()
	rec := doRequest(router, http.MethodPatch, "/messages/5", `{"content":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	reader.On("GetMessage", mock.Anything, int64(6)).Return(models.Message{ID: 6, SenderID: 2, ReceiverID: 3}, nil).Once()
	rec = doRequest(router, http.MethodPatch, "/messages/6", `{"content":"x"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	reader.On("GetMessage", mock.Anything, int64(7)).Return(models.Message{ID: 7, SenderID: callerID, ReceiverID: 2}, nil).Once()
	mutator.On("UpdateMessageContent", mock.Anything, int64(7), callerID, "x").
		Return(models.Message{ID: 7, SenderID: callerID, ReceiverID: 2, Content: "x", Edited: true}, nil).Once()
	rec = doRequest(router, http.MethodPatch, "/messages/7", `{"content":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"edited":true`)

	reader.On("GetMessage", mock.Anything, int64(404)).Return(nil, repositories.ErrMessageNotFound).Once()
	rec = doRequest(router, http.MethodPatch, "/messages/404", `{"content":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodPatch, "/messages/abc", `{"content":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	reader.AssertExpectations(t)
	mutator.AssertExpectations(t)
}

func TestRevertMessage(t *testing.T) {
	mutator := new(mocks.MutatorMock)
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(mutator, reader, nil)

	reader.On("GetMessage", mock.Anything, int64(7)).Return(models.Message{ID: 7, SenderID: callerID, ReceiverID: 2}, nil).Twice()
	mutator.On("RevertTo", mock.Anything, int64(7), int64(3)).Return(models.Message{ID: 7, Content: "A"}, nil).Once()
	mutator.On("RevertTo", mock.Anything, int64(7), int64(8)).Return(nil, repositories.ErrHistoryNotFound).Once()

	rec := doRequest(router, http.MethodPost, "/messages/7/revert/3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(router, http.MethodPost, "/messages/7/revert/8", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	reader.AssertExpectations(t)
	mutator.AssertExpectations(t)
}

func TestDeleteMessage(t *testing.T) {
	mutator := new(mocks.MutatorMock)
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(mutator, reader, nil)

	reader.On("GetMessage", mock.Anything, int64(7)).Return(models.Message{ID: 7, SenderID: callerID, ReceiverID: 2}, nil).Once()
	mutator.On("DeleteMessage", mock.Anything, int64(7), callerID).Return(nil).Once()

	rec := doRequest(router, http.MethodDelete, "/messages/7", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	mutator.AssertExpectations(t)
}

func TestMarkReadAndMarkAllRead(t *testing.T) {
	mutator := new(mocks.MutatorMock)
	router := newMessageRouter(mutator, new(mocks.ReaderMock), nil)

	mutator.On("MarkRead", mock.Anything, int64(3), callerID).Return(nil).Once()
	mutator.On("MarkRead", mock.Anything, int64(4), callerID).Return(repositories.ErrNotReceiver).Once()
	mutator.On("MarkAllRead", mock.Anything, callerID, []int64(nil)).Return(int64(5), nil).Once()
	mutator.On("MarkAllRead", mock.Anything, callerID, []int64{1, 2}).Return(int64(2), nil).Once()

	assert.Equal(t, http.StatusNoContent, doRequest(router, http.MethodPost, "/messages/3/read", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(router, http.MethodPost, "/messages/4/read", "").Code)

	rec := doRequest(router, http.MethodPost, "/messages/read-all", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":5}`, rec.Body.String())

	rec = doRequest(router, http.MethodPost, "/messages/read-all", `{"message_ids":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"updated":2}`, rec.Body.String())
	mutator.AssertExpectations(t)
}

func TestListUnreadVariants(t *testing.T) {
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(new(mocks.MutatorMock), reader, nil)

	reader.On("UnreadFor", mock.Anything, callerID, false).Return([]models.Message{{ID: 1}}, nil).Once()
	reader.On("UnreadFor", mock.Anything, callerID, true).Return([]models.Message{{ID: 2}}, nil).Once()
	reader.On("UnreadFromSender", mock.Anything, callerID, int64(3)).Return([]models.Message{{ID: 3}}, nil).Once()

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/messages/unread", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/messages/unread?priority=true", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/messages/unread?sender_id=3", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(router, http.MethodGet, "/messages/unread?sender_id=x", "").Code)
	reader.AssertExpectations(t)
}

func TestUnreadCountIsCached(t *testing.T) {
	server := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache(server.Addr(), "", "test", time.Minute)
	require.NoError(t, err)
	defer redisCache.Close()

	mutator := new(mocks.MutatorMock)
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(mutator, reader, redisCache)

	reader.On("UnreadCount", mock.Anything, callerID).Return(3, nil).Once()
	for i := 0; i < 2; i++ {
		rec := doRequest(router, http.MethodGet, "/messages/unread/count", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"unread":3}`, rec.Body.String())
	}
	reader.AssertExpectations(t)

	// marking read drops the cached count
	mutator.On("MarkRead", mock.Anything, int64(8), callerID).Return(nil).Once()
	require.Equal(t, http.StatusNoContent, doRequest(router, http.MethodPost, "/messages/8/read", "").Code)
	reader.On("UnreadCount", mock.Anything, callerID).Return(2, nil).Once()
	rec := doRequest(router, http.MethodGet, "/messages/unread/count", "")
	assert.JSONEq(t, `{"unread":2}`, rec.Body.String())
	reader.AssertExpectations(t)
}

func TestThreadIsCachedForTTL(t *testing.T) {
	server := miniredis.RunT(t)
	redisCache, err := cache.NewRedisCache(server.Addr(), "", "test", 30*time.Second)
	require.NoError(t, err)
	defer redisCache.Close()

	reader := new(mocks.ReaderMock)
	router := newMessageRouter(new(mocks.MutatorMock), reader, redisCache)

	msg := models.Message{ID: 4, SenderID: callerID, ReceiverID: 2, Content: "root"}
	reader.On("GetMessage", mock.Anything, int64(4)).Return(msg, nil)
	reader.On("ThreadOf", mock.Anything, int64(4)).Return(models.Thread{Root: msg, Replies: []models.Message{}}, nil).Twice()

	for i := 0; i < 2; i++ {
		rec := doRequest(router, http.MethodGet, "/messages/4/thread", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	reader.AssertNumberOfCalls(t, "ThreadOf", 1)

	server.FastForward(31 * time.Second)
	rec := doRequest(router, http.MethodGet, "/messages/4/thread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	reader.AssertNumberOfCalls(t, "ThreadOf", 2)
}

func TestHistoryTimelineAndOriginal(t *testing.T) {
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(new(mocks.MutatorMock), reader, nil)

	created := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := models.Message{ID: 4, SenderID: 2, ReceiverID: callerID, Content: "Hello there!", Edited: true, CreatedAt: created}
	history := []models.HistoryEntry{
		{ID: 2, MessageID: 4, OldContent: "Hello there", EditedAt: created.Add(2 * time.Second)},
		{ID: 1, MessageID: 4, OldContent: "Hello", EditedAt: created.Add(time.Second)},
	}
	reader.On("GetMessage", mock.Anything, int64(4)).Return(msg, nil)
	reader.On("EditHistoryOf", mock.Anything, int64(4)).Return(history, nil).Once()
	reader.On("TimelineOf", mock.Anything, int64(4)).Return(query.NewTimeline(msg, history), nil).Once()
	reader.On("OriginalContentOf", mock.Anything, int64(4)).Return("Hello", nil).Once()

	rec := doRequest(router, http.MethodGet, "/messages/4/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var historyResp struct {
		History []models.HistoryEntry `json:"history"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&historyResp))
	assert.Len(t, historyResp.History, 2)

	rec = doRequest(router, http.MethodGet, "/messages/4/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var timelineResp struct {
		Timeline []models.TimelineEntry `json:"timeline"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&timelineResp))
	require.Len(t, timelineResp.Timeline, 3)
	assert.True(t, timelineResp.Timeline[0].Current)
	assert.Equal(t, "Hello", timelineResp.Timeline[2].Content)

	rec = doRequest(router, http.MethodGet, "/messages/4/original", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"content":"Hello"}`, rec.Body.String())
	reader.AssertExpectations(t)
}

func TestConversationAndEdits(t *testing.T) {
	reader := new(mocks.ReaderMock)
	router := newMessageRouter(new(mocks.MutatorMock), reader, nil)

	reader.On("ConversationBetween", mock.Anything, callerID, int64(2)).Return([]models.Message{{ID: 1}, {ID: 2}}, nil).Once()
	reader.On("EditsBy", mock.Anything, callerID).Return([]models.HistoryEntry{}, nil).Once()
	reader.On("UnreadSummaryBySender", mock.Anything, callerID).Return([]models.SenderSummary{{SenderID: 2, UnreadCount: 1}}, nil).Once()

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/conversations/2", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/users/me/edits", "").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/messages/unread/summary", "").Code)
	reader.AssertExpectations(t)
}
