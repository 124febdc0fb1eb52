// Package notify publishes change notifications for event and aux-data
// writes. Publishing is best-effort: a failed publish is logged and the
// originating write still succeeds.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Topics carried on the pub/sub transport.
const (
	TopicNewEvent           = "newEvent"
	TopicUpdateEvent        = "updateEvent"
	TopicDeleteEvent        = "deleteEvent"
	TopicNewEventAuxData    = "newEventAuxData"
	TopicUpdateEventAuxData = "updateEventAuxData"
	TopicDeleteEventAuxData = "deleteEventAuxData"
)

// Threshold is the recency window around the current time. Events whose
// timestamp falls outside it describe past (or scheduled) activity and are
// not announced to live watchers.
const Threshold = 120 * time.Second

// Live reports whether a record with the given timestamp counts as current.
// The boundary is inclusive on both sides.
func Live(ts, now time.Time) bool {
	d := now.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d <= Threshold
}

// Publisher delivers one message on one topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Announcer wraps a Publisher with the fire-and-forget policy: marshal
// failures and transport failures are logged, never returned.
type Announcer struct {
	pub    Publisher
	logger *slog.Logger
}

func NewAnnouncer(pub Publisher, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{pub: pub, logger: logger}
}

// Announce publishes unconditionally.
func (a *Announcer) Announce(ctx context.Context, topic string, payload any) {
	if a == nil || a.pub == nil {
		return
	}
	if err := a.pub.Publish(ctx, topic, payload); err != nil {
		a.logger.Warn("publish failed", "topic", topic, "error", err)
	}
}

// AnnounceLive publishes only when ts is within the recency window of now.
func (a *Announcer) AnnounceLive(ctx context.Context, topic string, payload any, ts, now time.Time) {
	if !Live(ts, now) {
		return
	}
	a.Announce(ctx, topic, payload)
}

func marshalPayload(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return b, nil
}
