package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/packtrack/internal/broker/messages"
	"github.com/BearBump/packtrack/internal/models"
	"github.com/gen2brain/beeep"
	"github.com/pkg/errors"
)

type Notifier interface {
	Notify(ctx context.Context, n models.Notification) error
}

// WriterSink prints the full message, separated by a rule, like cron mail.
type WriterSink struct {
	mu      sync.Mutex
	w       io.Writer
	compact bool
}

func NewWriterSink(w io.Writer, compact bool) *WriterSink {
	return &WriterSink{w: w, compact: compact}
}

func (s *WriterSink) Notify(_ context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.compact {
		_, err = fmt.Fprintln(s.w, Format(n))
	} else {
		_, err = fmt.Fprintf(s.w, "%s\n%s\n%s\n", rule, FormatMessage(n), rule)
	}
	return errors.Wrap(err, "write notification")
}

const rule = "=================================================="

// DesktopSink shows a native notification.
type DesktopSink struct {
	notify func(title, message string, icon any) error
}

func NewDesktopSink() *DesktopSink {
	return &DesktopSink{notify: beeep.Notify}
}

func (s *DesktopSink) Notify(_ context.Context, n models.Notification) error {
	title := fmt.Sprintf("%s %s", Emoji(n.NewStatus), n.TrackingNumber)
	if n.Description != "" {
		title += " · " + n.Description
	}
	body := transition(n)
	if e := n.LatestEvent; e != nil && e.Description != "" {
		body += "\n" + e.Description
	}
	return errors.Wrap(s.notify(title, body, ""), "desktop notify")
}

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink publishes messages.PackageUpdated keyed by tracking number.
type KafkaSink struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func NewKafkaSink(pub Publisher, topic string) *KafkaSink {
	if topic == "" {
		topic = messages.TopicPackageUpdated
	}
	return &KafkaSink{pub: pub, topic: topic, now: time.Now}
}

func (s *KafkaSink) Notify(ctx context.Context, n models.Notification) error {
	msg := messages.NewPackageUpdated(n, FormatMessage(n), s.now())
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal package update")
	}
	return s.pub.Publish(ctx, s.topic, []byte(n.TrackingNumber), b)
}

// Multi sends to every sink; one failing sink does not stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n models.Notification) error {
	var first error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			slog.Warn("notification sink failed", "tracking_number", n.TrackingNumber, "sink", fmt.Sprintf("%T", s), "error", err.Error())
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Dispatch delivers notifications in order and returns how many reached
// every sink.
func Dispatch(ctx context.Context, to Notifier, ns []models.Notification) (int, error) {
	delivered := 0
	var first error
	for _, n := range ns {
		if err := to.Notify(ctx, n); err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		delivered++
	}
	return delivered, first
}
