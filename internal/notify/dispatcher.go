package notify

import (
	"context"
	"fmt"
	"log"
	"unicode/utf8"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const previewRunes = 50

// Writer persists notification rows. Callers pass the transaction that also
// carries the change the notification describes.
type Writer interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
}

// Publisher sends committed notifications to a broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Pusher delivers committed notifications to connected clients.
type Pusher interface {
	PushNotification(userID int64, n models.Notification)
}

// Event describes what happened to a message.
type Event struct {
	Kind         models.NotificationKind
	Message      models.Message
	Actor        models.User
	Parent       *models.Message
	ParentSender *models.User
}

// Dispatcher creates notification records and fans them out after commit. It
// does not deduplicate: each Enqueue call yields one row.
type Dispatcher struct {
	publisher Publisher
	pusher    Pusher
}

// NewDispatcher builds a Dispatcher. Both publisher and pusher are optional.
func NewDispatcher(publisher Publisher, pusher Pusher) *Dispatcher {
	return &Dispatcher{publisher: publisher, pusher: pusher}
}

// Enqueue writes the notification for ev through w and returns it.
func (d *Dispatcher) Enqueue(ctx context.Context, w Writer, ev Event) (models.Notification, error) {
	n := models.Notification{
		UserID:    ev.Message.ReceiverID,
		MessageID: ev.Message.ID,
		Kind:      ev.Kind,
		Content:   Summary(ev),
	}
	if err := w.InsertNotification(ctx, &n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// Announce pushes and publishes notifications that are already committed.
// Delivery is best effort; the stored row stays authoritative.
func (d *Dispatcher) Announce(ctx context.Context, notes []models.Notification) {
	for _, n := range notes {
		observability.IncNotification(string(n.Kind))
		if d.pusher != nil {
			d.pusher.PushNotification(n.UserID, n)
		}
		if d.publisher == nil {
			continue
		}
		envelope := observability.NewEnvelope(ctx, "notifications", string(n.Kind), n)
		if err := d.publisher.Publish(ctx, RoutingKey(n.Kind), envelope); err != nil {
			observability.IncPublishError("notifications")
			log.Printf("notification publish failed: id=%d kind=%s err=%v", n.ID, n.Kind, err)
		}
	}
}

// RoutingKey is the broker routing key for a notification kind.
func RoutingKey(kind models.NotificationKind) string {
	return "notifications." + string(kind)
}

// Summary renders the human readable notification text.
func Summary(ev Event) string {
	switch ev.Kind {
	case models.KindReply:
		original := "your"
		if ev.ParentSender != nil && ev.ParentSender.ID != ev.Message.ReceiverID {
			original = ev.ParentSender.Username + "'s"
		}
		return fmt.Sprintf("%s replied to %s message: %s", ev.Actor.Username, original, Preview(ev.Message.Content))
	case models.KindEdit:
		return fmt.Sprintf("%s edited their message", ev.Actor.Username)
	default:
		return fmt.Sprintf("%s sent you a message: %s", ev.Actor.Username, Preview(ev.Message.Content))
	}
}

// Preview shortens content to its first 50 characters.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewRunes]) + "..."
}
