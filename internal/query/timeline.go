package query

import (
	"iter"
	"time"

	"messaging-service/internal/models"
)

// Timeline is a snapshot of every version of a message's content. It can be
// ranged over any number of times.
type Timeline struct {
	message models.Message
	history []models.HistoryEntry
}

func (t Timeline) Message() models.Message {
	return t.message
}

// Len is the number of versions: one per edit plus the current content.
func (t Timeline) Len() int {
	return len(t.history) + 1
}

// All yields the current content first, then each earlier version from most
// to least recent. The last entry is the original content. At is the moment
// the version came into effect.
func (t Timeline) All() iter.Seq[models.TimelineEntry] {
	return func(yield func(models.TimelineEntry) bool) {
		if !yield(models.TimelineEntry{
			Content: t.message.Content,
			Current: true,
			At:      t.since(0),
		}) {
			return
		}
		for i, h := range t.history {
			entry := models.TimelineEntry{
				Content:   h.OldContent,
				HistoryID: h.ID,
				At:        t.since(i + 1),
			}
			if !yield(entry) {
				return
			}
		}
	}
}

// Entries collects the timeline into a slice.
func (t Timeline) Entries() []models.TimelineEntry {
	out := make([]models.TimelineEntry, 0, t.Len())
	for e := range t.All() {
		out = append(out, e)
	}
	return out
}

// since returns when version i (0 = current) took effect: the time of the
// edit that replaced version i+1, or creation for the original.
func (t Timeline) since(i int) time.Time {
	if i < len(t.history) {
		return t.history[i].EditedAt
	}
	return t.message.CreatedAt
}

// NewTimeline builds a timeline from a message and its history ordered most
// recent edit first.
func NewTimeline(msg models.Message, history []models.HistoryEntry) Timeline {
	return Timeline{message: msg, history: history}
}
