package notify

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/mocks"
	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

type writerFunc func(ctx context.Context, n *models.Notification) error

func (f writerFunc) InsertNotification(ctx context.Context, n *models.Notification) error {
	return f(ctx, n)
}

func TestSummary(t *testing.T) {
	alice := models.User{ID: 1, Username: "alice"}
	bob := models.User{ID: 2, Username: "bob"}
	carol := models.User{ID: 3, Username: "carol"}

	cases := []struct {
		name string
		ev   Event
		want string
	}{
		{
			name: "new message",
			ev:   Event{Kind: models.KindNewMessage, Actor: alice, Message: models.Message{ReceiverID: bob.ID, Content: "hi"}},
			want: "alice sent you a message: hi",
		},
		{
			name: "reply to receiver",
			ev:   Event{Kind: models.KindReply, Actor: bob, ParentSender: &alice, Message: models.Message{ReceiverID: alice.ID, Content: "yo"}},
			want: "bob replied to your message: yo",
		},
		{
			name: "reply to someone else",
			ev:   Event{Kind: models.KindReply, Actor: bob, ParentSender: &alice, Message: models.Message{ReceiverID: carol.ID, Content: "yo"}},
			want: "bob replied to alice's message: yo",
		},
		{
			name: "edit",
			ev:   Event{Kind: models.KindEdit, Actor: alice, Message: models.Message{ReceiverID: bob.ID, Content: "x"}},
			want: "alice edited their message",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Summary(tc.ev))
		})
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	assert.Equal(t, "short", Preview("short"))
	long := strings.Repeat("é", 60)
	got := Preview(long)
	assert.Equal(t, strings.Repeat("é", 50)+"...", got)
	assert.Equal(t, strings.Repeat("a", 50), Preview(strings.Repeat("a", 50)))
}

func TestEnqueueWritesReceiverNotification(t *testing.T) {
	d := NewDispatcher(nil, nil)
	var stored models.Notification
	n, err := d.Enqueue(context.Background(), writerFunc(func(ctx context.Context, n *models.Notification) error {
		n.ID = 11
		stored = *n
		return nil
	}), Event{
		Kind:    models.KindNewMessage,
		Actor:   models.User{ID: 1, Username: "alice"},
		Message: models.Message{ID: 5, SenderID: 1, ReceiverID: 2, Content: "hi"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), n.ID)
	assert.Equal(t, int64(2), stored.UserID)
	assert.Equal(t, int64(5), stored.MessageID)
	assert.Equal(t, models.KindNewMessage, stored.Kind)

	_, err = d.Enqueue(context.Background(), writerFunc(func(context.Context, *models.Notification) error {
		return assert.AnError
	}), Event{Kind: models.KindEdit})
	require.ErrorIs(t, err, assert.AnError)
}

func TestAnnouncePushesAndPublishes(t *testing.T) {
	publisher := new(mocks.PublisherMock)
	pusher := new(mocks.PusherMock)
	d := NewDispatcher(publisher, pusher)

	note := models.Notification{ID: 1, UserID: 2, Kind: models.KindEdit}
	pusher.On("PushNotification", int64(2), note).Once()
	publisher.On("Publish", mock.Anything, "notifications.edit", mock.MatchedBy(func(env observability.EventEnvelope) bool {
		return env.EventType == "notifications" && env.EventName == "edit" && env.EventID != ""
	})).Return(assert.AnError).Once()

	d.Announce(context.Background(), []models.Notification{note})
	pusher.AssertExpectations(t)
	publisher.AssertExpectations(t)
}
