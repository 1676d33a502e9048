package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"messaging-service/internal/models"
	"messaging-service/internal/notify"
	"messaging-service/internal/observability"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
)

const defaultConflictRetries = 3

var tracer = telemetry.Tracer("messaging-service/messaging")

// Store is the persistence surface the service needs.
type Store interface {
	repositories.Transactor
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	GetHistoryEntry(ctx context.Context, historyID int64) (models.HistoryEntry, error)
	DeleteMessage(ctx context.Context, messageID int64) error
	MarkRead(ctx context.Context, messageID, userID int64) error
	MarkAllRead(ctx context.Context, userID int64, messageIDs []int64) (int64, error)
	MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) (int64, error)
	CreateUser(ctx context.Context, username string) (models.User, error)
}

// Auditor records audit events for mutations.
type Auditor interface {
	Emit(ctx context.Context, level, action, text string, userID *int64)
}

type Option func(*Service)

// WithConflictRetries sets how many times a transaction that lost an
// optimistic version race is retried before Conflict is returned.
func WithConflictRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// Service performs every write against messages. A content change, its
// history entry and its notification commit in one transaction.
type Service struct {
	store      Store
	dispatcher *notify.Dispatcher
	auditor    Auditor
	retries    int
}

func NewService(store Store, dispatcher *notify.Dispatcher, opts ...Option) *Service {
	if dispatcher == nil {
		dispatcher = notify.NewDispatcher(nil, nil)
	}
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		retries:    defaultConflictRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateMessage stores a new message and notifies the receiver. A reply to a
// reply is attached to the thread root.
func (s *Service) CreateMessage(ctx context.Context, senderID, receiverID int64, content string, parentID *int64) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "messaging.create")
	defer span.End()
	started := time.Now()

	if strings.TrimSpace(content) == "" {
		return models.Message{}, s.finish(span, "create", started, repositories.ErrEmptyContent)
	}
	if senderID == receiverID {
		return models.Message{}, s.finish(span, "create", started, repositories.ErrSelfMessage)
	}

	var (
		msg  models.Message
		note models.Notification
	)
	err := s.inTx(ctx, "create", func(u repositories.Unit) error {
		sender, err := u.GetUser(ctx, senderID)
		if err != nil {
			return mapUserErr(err, repositories.ErrUnknownSender)
		}
		if _, err := u.GetUser(ctx, receiverID); err != nil {
			return mapUserErr(err, repositories.ErrUnknownRecipient)
		}

		msg = models.Message{SenderID: senderID, ReceiverID: receiverID, Content: content}
		ev := notify.Event{Kind: models.KindNewMessage, Actor: sender}

		if parentID != nil {
			parent, err := u.GetMessage(ctx, *parentID)
			if err != nil {
				return err
			}
			if parent.IsReply() {
				if parent, err = u.GetMessage(ctx, *parent.ParentID); err != nil {
					return err
				}
			}
			parentSender, err := u.GetUser(ctx, parent.SenderID)
			if err != nil {
				return err
			}
			msg.ParentID = &parent.ID
			ev.Kind = models.KindReply
			ev.Parent = &parent
			ev.ParentSender = &parentSender
		}

		if err := u.InsertMessage(ctx, &msg); err != nil {
			return err
		}
		ev.Message = msg
		note, err = s.dispatcher.Enqueue(ctx, u, ev)
		return err
	})
	if err != nil {
		return models.Message{}, s.finish(span, "create", started, err)
	}

	span.SetAttributes(attribute.Int64("message.id", msg.ID))
	s.dispatcher.Announce(ctx, []models.Notification{note})
	s.finish(span, "create", started, nil)
	return msg, nil
}

// UpdateMessageContent replaces the content of a message on behalf of
// editorID. Identical content is a no-op that returns the current message.
func (s *Service) UpdateMessageContent(ctx context.Context, messageID, editorID int64, content string) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "messaging.update")
	defer span.End()
	span.SetAttributes(attribute.Int64("message.id", messageID))

	msg, changed, err := s.applyContent(ctx, "update", messageID, editorID, content)
	if err == nil && changed {
		s.audit(ctx, telemetry.ActionMessageEdited, fmt.Sprintf("message %d edited", messageID), editorID)
	}
	return msg, s.finishSpan(span, err)
}

// RevertTo restores the content a message held before the given history
// entry was recorded. The revert is itself an edit by the sender, so it adds
// a history entry holding the content being replaced.
func (s *Service) RevertTo(ctx context.Context, messageID, historyID int64) (models.Message, error) {
	ctx, span := tracer.Start(ctx, "messaging.revert")
	defer span.End()
	span.SetAttributes(attribute.Int64("message.id", messageID), attribute.Int64("history.id", historyID))

	entry, err := s.store.GetHistoryEntry(ctx, historyID)
	if err != nil {
		return models.Message{}, s.finishSpan(span, err)
	}
	if entry.MessageID != messageID {
		return models.Message{}, s.finishSpan(span, repositories.ErrHistoryNotFound)
	}
	current, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return models.Message{}, s.finishSpan(span, err)
	}

	msg, changed, err := s.applyContent(ctx, "revert", messageID, current.SenderID, entry.OldContent)
	if err == nil && changed {
		s.audit(ctx, telemetry.ActionMessageReverted, fmt.Sprintf("message %d reverted to history %d", messageID, historyID), current.SenderID)
	}
	return msg, s.finishSpan(span, err)
}

func (s *Service) applyContent(ctx context.Context, op string, messageID, editorID int64, content string) (models.Message, bool, error) {
	started := time.Now()
	if strings.TrimSpace(content) == "" {
		return models.Message{}, false, s.finish(nil, op, started, repositories.ErrEmptyContent)
	}

	var (
		result  models.Message
		changed bool
		notes   []models.Notification
	)
	err := s.inTx(ctx, op, func(u repositories.Unit) error {
		changed = false
		notes = notes[:0]

		current, err := u.GetMessage(ctx, messageID)
		if err != nil {
			return err
		}
		if current.Content == content {
			result = current
			return nil
		}
		editor, err := u.GetUser(ctx, editorID)
		if err != nil {
			return mapUserErr(err, repositories.ErrUnknownEditor)
		}

		if err := u.UpdateContent(ctx, messageID, current.Version, content); err != nil {
			return err
		}
		entry := models.HistoryEntry{
			MessageID:  messageID,
			OldContent: current.Content,
			EditorID:   &editorID,
		}
		if err := u.AppendHistory(ctx, &entry); err != nil {
			return err
		}

		result = current
		result.Content = content
		result.Edited = true
		result.Version = current.Version + 1

		if editorID != current.ReceiverID {
			note, err := s.dispatcher.Enqueue(ctx, u, notify.Event{
				Kind:    models.KindEdit,
				Message: result,
				Actor:   editor,
			})
			if err != nil {
				return err
			}
			notes = append(notes, note)
		}
		changed = true
		return nil
	})
	if err != nil {
		return models.Message{}, false, s.finish(nil, op, started, err)
	}

	if changed {
		observability.IncHistoryEntry()
		s.dispatcher.Announce(ctx, notes)
	}
	s.finish(nil, op, started, nil)
	return result, changed, nil
}

// DeleteMessage removes a message with its replies, history and
// notifications.
func (s *Service) DeleteMessage(ctx context.Context, messageID, actorID int64) error {
	ctx, span := tracer.Start(ctx, "messaging.delete")
	defer span.End()
	started := time.Now()

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return s.finish(span, "delete", started, err)
	}
	s.audit(ctx, telemetry.ActionMessageDeleted, fmt.Sprintf("message %d deleted", messageID), actorID)
	return s.finish(span, "delete", started, nil)
}

// MarkRead marks one message read. Only its receiver may do so.
func (s *Service) MarkRead(ctx context.Context, messageID, userID int64) error {
	return s.store.MarkRead(ctx, messageID, userID)
}

// MarkAllRead marks the listed messages, or every unread message when ids is
// empty, read for userID.
func (s *Service) MarkAllRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	return s.store.MarkAllRead(ctx, userID, ids)
}

func (s *Service) MarkNotificationsRead(ctx context.Context, userID int64, ids []int64) (int64, error) {
	return s.store.MarkNotificationsRead(ctx, userID, ids)
}

func (s *Service) CreateUser(ctx context.Context, username string) (models.User, error) {
	return s.store.CreateUser(ctx, username)
}

// DeleteUser removes a user and, through cascades, every message they sent or
// received. The transaction fails if anything still references the user.
func (s *Service) DeleteUser(ctx context.Context, userID int64) error {
	ctx, span := tracer.Start(ctx, "messaging.delete_user")
	defer span.End()
	started := time.Now()

	err := s.store.WithTx(ctx, func(u repositories.Unit) error {
		if err := u.DeleteUser(ctx, userID); err != nil {
			return err
		}
		return u.VerifyUserRemoved(ctx, userID)
	})
	if err != nil {
		return s.finish(span, "delete_user", started, err)
	}
	s.audit(ctx, telemetry.ActionUserDeleted, fmt.Sprintf("user %d deleted", userID), userID)
	return s.finish(span, "delete_user", started, nil)
}

// inTx runs fn in a transaction, retrying when it loses an optimistic
// version race. fn must reset any state it captures on each call.
func (s *Service) inTx(ctx context.Context, op string, fn func(repositories.Unit) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, repositories.ErrConflict) || attempt >= s.retries {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		observability.IncConflictRetry(op)
		log.Printf("mutation conflict, retrying: op=%s attempt=%d err=%v", op, attempt+1, err)
	}
}

func (s *Service) audit(ctx context.Context, action, text string, userID int64) {
	if s.auditor == nil {
		return
	}
	s.auditor.Emit(ctx, "info", action, text, &userID)
}

func (s *Service) finish(span trace.Span, op string, started time.Time, err error) error {
	observability.ObserveMutation(op, outcome(err), started)
	return s.finishSpan(span, err)
}

func (s *Service) finishSpan(span trace.Span, err error) error {
	if span != nil && err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, repositories.ErrConflict):
		return "conflict"
	case errors.Is(err, repositories.ErrNotFound):
		return "not_found"
	case errors.Is(err, repositories.ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}

func mapUserErr(err, replacement error) error {
	if errors.Is(err, repositories.ErrUserNotFound) {
		return replacement
	}
	return err
}
