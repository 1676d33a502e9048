// Package digest periodically publishes a per-user summary of unread
// messages grouped by sender.
package digest

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const RoutingKey = "digests.unread"

type Store interface {
	UsersWithUnread(ctx context.Context) ([]int64, error)
	UnreadSummaryBySender(ctx context.Context, userID int64) ([]models.SenderSummary, error)
}

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Digest is the payload published for one user.
type Digest struct {
	UserID  int64        `json:"user_id"`
	Total   int          `json:"total_unread"`
	Senders []SenderLine `json:"senders"`
	Text    string       `json:"text"`
}

type SenderLine struct {
	SenderID int64     `json:"sender_id"`
	Username string    `json:"username"`
	Unread   int       `json:"unread"`
	LatestAt time.Time `json:"latest_at"`
	Since    string    `json:"since"`
}

type Runner struct {
	store     Store
	publisher Publisher
	schedule  string
	now       func() time.Time
}

// NewRunner validates the cron expression and returns a Runner.
func NewRunner(store Store, publisher Publisher, schedule string) (*Runner, error) {
	if !gronx.IsValid(schedule) {
		return nil, fmt.Errorf("digest: invalid cron expression %q", schedule)
	}
	return &Runner{store: store, publisher: publisher, schedule: schedule, now: time.Now}, nil
}

// Run publishes digests on every scheduled tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	log.Printf("digest scheduler started: schedule=%q", r.schedule)
	for {
		next, err := gronx.NextTickAfter(r.schedule, r.now().UTC(), false)
		if err != nil {
			return fmt.Errorf("digest: next tick: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Printf("digest scheduler stopping")
			return nil
		case <-timer.C:
		}
		sent, err := r.RunOnce(ctx)
		if err != nil {
			log.Printf("digest run failed: err=%v", err)
			continue
		}
		log.Printf("digest run finished: published=%d", sent)
	}
}

// RunOnce publishes one digest per user with unread messages and reports how
// many were published. Publish failures are counted and skipped.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	users, err := r.store.UsersWithUnread(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users with unread: %w", err)
	}
	sent := 0
	for _, userID := range users {
		summary, err := r.store.UnreadSummaryBySender(ctx, userID)
		if err != nil {
			return sent, fmt.Errorf("unread summary user=%d: %w", userID, err)
		}
		if len(summary) == 0 {
			continue
		}
		d := Build(userID, summary, r.now())
		envelope := observability.NewEnvelope(ctx, "digests", "unread", d)
		if err := r.publisher.Publish(ctx, RoutingKey, envelope); err != nil {
			observability.IncPublishError("digests")
			log.Printf("digest publish failed: user_id=%d err=%v", userID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Build renders the digest for one user as of now.
func Build(userID int64, summary []models.SenderSummary, now time.Time) Digest {
	d := Digest{UserID: userID, Senders: make([]SenderLine, 0, len(summary))}
	parts := make([]string, 0, len(summary))
	for _, s := range summary {
		line := SenderLine{
			SenderID: s.SenderID,
			Username: s.SenderUsername,
			Unread:   s.UnreadCount,
			LatestAt: s.LatestAt,
			Since:    humanize.RelTime(s.LatestAt, now, "ago", "from now"),
		}
		d.Total += s.UnreadCount
		d.Senders = append(d.Senders, line)
		parts = append(parts, fmt.Sprintf("%s (%s, latest %s)", s.SenderUsername, humanize.Comma(int64(s.UnreadCount)), line.Since))
	}
	d.Text = fmt.Sprintf("You have %s unread %s: %s", humanize.Comma(int64(d.Total)), plural(d.Total), strings.Join(parts, ", "))
	return d
}

func plural(n int) string {
	if n == 1 {
		return "message"
	}
	return "messages"
}
