package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messaging-service/internal/dbtest"
	"messaging-service/internal/models"
	"messaging-service/internal/notify"
	"messaging-service/internal/repositories"
)

type recordingPusher struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (p *recordingPusher) PushNotification(userID int64, n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notes = append(p.notes, n)
}

type recordingAuditor struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAuditor) Emit(ctx context.Context, level, action, text string, userID *int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action)
}

// flakyStore makes the next UpdateContent or InsertNotification calls fail.
type flakyStore struct {
	*repositories.Store
	mu             sync.Mutex
	staleUpdates   int
	failNotifyWith error
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(repositories.Unit) error) error {
	return f.Store.WithTx(ctx, func(u repositories.Unit) error {
		return fn(&flakyUnit{Unit: u, store: f})
	})
}

type flakyUnit struct {
	repositories.Unit
	store *flakyStore
}

func (u *flakyUnit) UpdateContent(ctx context.Context, messageID, version int64, content string) error {
	u.store.mu.Lock()
	if u.store.staleUpdates > 0 {
		u.store.staleUpdates--
		u.store.mu.Unlock()
		return repositories.ErrStaleVersion
	}
	u.store.mu.Unlock()
	return u.Unit.UpdateContent(ctx, messageID, version, content)
}

func (u *flakyUnit) InsertNotification(ctx context.Context, n *models.Notification) error {
	if u.store.failNotifyWith != nil {
		return u.store.failNotifyWith
	}
	return u.Unit.InsertNotification(ctx, n)
}

type fixture struct {
	store   *flakyStore
	svc     *Service
	pusher  *recordingPusher
	auditor *recordingAuditor
	alice   models.User
	bob     models.User
	carol   models.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := dbtest.NewClock()
	store := &flakyStore{Store: repositories.NewStore(dbtest.Open(t), repositories.WithClock(clock.Now))}
	pusher := &recordingPusher{}
	auditor := &recordingAuditor{}
	svc := NewService(store, notify.NewDispatcher(nil, pusher), append([]Option{WithAuditor(auditor)}, opts...)...)

	f := &fixture{store: store, svc: svc, pusher: pusher, auditor: auditor}
	f.alice = f.user(t, "alice")
	f.bob = f.user(t, "bob")
	f.carol = f.user(t, "carol")
	return f
}

func (f *fixture) user(t *testing.T, name string) models.User {
	t.Helper()
	u, err := f.svc.CreateUser(context.Background(), name)
	require.NoError(t, err)
	return u
}

func (f *fixture) notifications(t *testing.T, userID int64) []models.Notification {
	t.Helper()
	notes, err := f.store.ListNotifications(context.Background(), userID, repositories.NotificationFilter{})
	require.NoError(t, err)
	return notes
}

func TestEditScenarioRecordsHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "Hello", nil)
	require.NoError(t, err)
	assert.False(t, msg.Edited)

	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "Hello there")
	require.NoError(t, err)
	updated, err := f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "Hello there!")
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", updated.Content)
	assert.True(t, updated.Edited)

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "Hello there", history[0].OldContent)
	assert.Equal(t, "Hello", history[1].OldContent)
	assert.Equal(t, f.alice.ID, *history[0].EditorID)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello there!", stored.Content)
	assert.True(t, stored.Edited)

	notes := f.notifications(t, f.bob.ID)
	require.Len(t, notes, 3)
	assert.Equal(t, models.KindEdit, notes[0].Kind)
	assert.Equal(t, "alice edited their message", notes[0].Content)
	assert.Equal(t, "alice sent you a message: Hello", notes[2].Content)
	assert.Len(t, f.pusher.notes, 3)
	assert.Equal(t, []string{"message_edited", "message_edited"}, f.auditor.actions)
	require.NoError(t, f.store.VerifyIntegrity(ctx))
}

func TestUpdateWithSameContentIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "Hello", nil)
	require.NoError(t, err)

	got, err := f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "Hello")
	require.NoError(t, err)
	assert.False(t, got.Edited)

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Len(t, f.notifications(t, f.bob.ID), 1)
	assert.Empty(t, f.auditor.actions)
}

func TestUpdateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "Hello", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "  ")
	require.ErrorIs(t, err, repositories.ErrEmptyContent)

	_, err = f.svc.UpdateMessageContent(ctx, 999, f.alice.ID, "x")
	require.ErrorIs(t, err, repositories.ErrMessageNotFound)

	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, 999, "x")
	require.ErrorIs(t, err, repositories.ErrUnknownEditor)
}

func TestEditByReceiverDoesNotNotifyReceiver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "Hello", nil)
	require.NoError(t, err)

	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.bob.ID, "fixed typo")
	require.NoError(t, err)

	notes := f.notifications(t, f.bob.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.KindNewMessage, notes[0].Kind)

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, f.bob.ID, *history[0].EditorID)
}

func TestCreateMessageValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "", nil)
	require.ErrorIs(t, err, repositories.ErrEmptyContent)
	_, err = f.svc.CreateMessage(ctx, f.alice.ID, f.alice.ID, "me", nil)
	require.ErrorIs(t, err, repositories.ErrSelfMessage)
	_, err = f.svc.CreateMessage(ctx, f.alice.ID, 999, "hi", nil)
	require.ErrorIs(t, err, repositories.ErrUnknownRecipient)
	_, err = f.svc.CreateMessage(ctx, 999, f.bob.ID, "hi", nil)
	require.ErrorIs(t, err, repositories.ErrUnknownSender)

	missing := int64(999)
	_, err = f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "hi", &missing)
	require.ErrorIs(t, err, repositories.ErrMessageNotFound)
	assert.Empty(t, f.notifications(t, f.bob.ID))
}

func TestReplyNotificationsAndThreadNormalisation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	root, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "root", nil)
	require.NoError(t, err)
	reply, err := f.svc.CreateMessage(ctx, f.bob.ID, f.alice.ID, "reply", &root.ID)
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)

	nested, err := f.svc.CreateMessage(ctx, f.bob.ID, f.carol.ID, "to carol", &reply.ID)
	require.NoError(t, err)
	assert.Equal(t, root.ID, *nested.ParentID)

	aliceNotes := f.notifications(t, f.alice.ID)
	require.Len(t, aliceNotes, 1)
	assert.Equal(t, models.KindReply, aliceNotes[0].Kind)
	assert.Equal(t, "bob replied to your message: reply", aliceNotes[0].Content)

	carolNotes := f.notifications(t, f.carol.ID)
	require.Len(t, carolNotes, 1)
	assert.Equal(t, "bob replied to alice's message: to carol", carolNotes[0].Content)
}

func TestRevertRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.NoError(t, err)

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	reverted, err := f.svc.RevertTo(ctx, msg.ID, history[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "A", reverted.Content)
	assert.True(t, reverted.Edited)

	history, err = f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "B", history[0].OldContent)
	assert.Equal(t, f.alice.ID, *history[0].EditorID)

	// reverting to content already in place changes nothing
	_, err = f.svc.RevertTo(ctx, msg.ID, history[1].ID)
	require.NoError(t, err)
	history, err = f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, []string{"message_edited", "message_reverted"}, f.auditor.actions)
}

func TestRevertRejectsForeignHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)
	second, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "X", nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateMessageContent(ctx, first.ID, f.alice.ID, "B")
	require.NoError(t, err)
	history, err := f.store.ListHistory(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.svc.RevertTo(ctx, second.ID, history[0].ID)
	require.ErrorIs(t, err, repositories.ErrHistoryNotFound)
	_, err = f.svc.RevertTo(ctx, first.ID, 999)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

// SQLite runs one transaction at a time here, so this checks that both
// edits are audited whichever commits first. The version check itself is
// raced across connections in the repositories tests.
func TestConcurrentEditsBothRecorded(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, content := range []string{"B", "C"} {
		wg.Add(1)
		go func(i int, content string) {
			defer wg.Done()
			_, errs[i] = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, content)
		}(i, content)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "A", history[1].OldContent)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, stored.Content == "B", history[0].OldContent == "C")
	assert.Equal(t, int64(3), stored.Version)
}

func TestUpdateRetriesStaleVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	f.store.staleUpdates = 2
	got, err := f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.NoError(t, err)
	assert.Equal(t, "B", got.Content)

	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	assert.Len(t, f.notifications(t, f.bob.ID), 2)
}

func TestUpdateSurfacesConflictAfterRetries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithConflictRetries(1))
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	f.store.staleUpdates = 5
	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.ErrorIs(t, err, repositories.ErrConflict)
	assert.Equal(t, 3, f.store.staleUpdates)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Content)
	assert.False(t, stored.Edited)
}

func TestFailedNotificationRollsBackEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	boom := errors.New("notification insert failed")
	f.store.failNotifyWith = boom
	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.ErrorIs(t, err, boom)

	stored, err := f.store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Content)
	history, err := f.store.ListHistory(ctx, msg.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
	require.NoError(t, f.store.VerifyIntegrity(ctx))
}

func TestCanceledContextLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(context.Background(), f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.ErrorIs(t, err, context.Canceled)

	stored, err := f.store.GetMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", stored.Content)
}

func TestDeleteUserRemovesConversations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)
	_, err = f.svc.UpdateMessageContent(ctx, msg.ID, f.alice.ID, "B")
	require.NoError(t, err)
	kept, err := f.svc.CreateMessage(ctx, f.bob.ID, f.carol.ID, "stays", nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteUser(ctx, f.alice.ID))
	_, err = f.store.GetMessage(ctx, msg.ID)
	require.ErrorIs(t, err, repositories.ErrMessageNotFound)
	assert.Empty(t, f.notifications(t, f.bob.ID))

	_, err = f.store.GetMessage(ctx, kept.ID)
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.DeleteUser(ctx, f.alice.ID), repositories.ErrUserNotFound)
	require.NoError(t, f.store.VerifyIntegrity(ctx))
	assert.Contains(t, f.auditor.actions, "user_deleted")
}

func TestDeleteAndMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	msg, err := f.svc.CreateMessage(ctx, f.alice.ID, f.bob.ID, "A", nil)
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.MarkRead(ctx, msg.ID, f.alice.ID), repositories.ErrNotReceiver)
	require.NoError(t, f.svc.MarkRead(ctx, msg.ID, f.bob.ID))
	n, err := f.svc.MarkAllRead(ctx, f.bob.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	notes := f.notifications(t, f.bob.ID)
	n, err = f.svc.MarkNotificationsRead(ctx, f.bob.ID, []int64{notes[0].ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, f.svc.DeleteMessage(ctx, msg.ID, f.alice.ID))
	require.ErrorIs(t, f.svc.DeleteMessage(ctx, msg.ID, f.alice.ID), repositories.ErrNotFound)
	assert.Equal(t, []string{"message_deleted"}, f.auditor.actions)
}
