package notify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// Kind groups messages for subscribers that only care about one stream.
type Kind string

const (
	KindAttendance Kind = "attendance"
	KindEnrollment Kind = "enrollment"
)

// Message is what subscribers receive after an attendance event or an enrollment.
type Message struct {
	Kind      Kind      `json:"kind"`
	Type      string    `json:"type"`
	Key       string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Attendance builds the message for an appended IN/OUT event.
func Attendance(ev domain.AttendanceEvent) Message {
	return Message{
		Kind:      KindAttendance,
		Type:      strings.ToLower(string(ev.Direction)),
		Key:       ev.Key,
		Timestamp: ev.Time,
	}
}

// Enrollment builds the message for a newly enrolled identity.
func Enrollment(identity domain.Identity) Message {
	return Message{
		Kind:      KindEnrollment,
		Type:      "enrolled",
		Key:       identity.Key,
		Name:      identity.Name,
		Timestamp: identity.CreatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Multi fans a message out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, msg Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BestEffort logs publish failures instead of returning them.
type BestEffort struct {
	next   Publisher
	logger *slog.Logger
}

func NewBestEffort(next Publisher, logger *slog.Logger) *BestEffort {
	return &BestEffort{next: next, logger: logger.With("component", "notify")}
}

func (b *BestEffort) Publish(ctx context.Context, msg Message) error {
	if err := b.next.Publish(ctx, msg); err != nil {
		b.logger.WarnContext(ctx, "failed to publish notification",
			slog.String("kind", string(msg.Kind)),
			slog.String("type", msg.Type),
			slog.String("key", msg.Key),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// Nop drops every message.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }
