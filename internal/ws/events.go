package ws

import (
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/notify"
)

type EventType string

const (
	EventCheckedIn  EventType = "attendance.in"
	EventCheckedOut EventType = "attendance.out"
	EventEnrolled   EventType = "identity.enrolled"
)

type Event struct {
	Kind      notify.Kind `json:"-"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

func eventType(msg notify.Message) EventType {
	if msg.Kind == notify.KindEnrollment {
		return EventEnrolled
	}
	return EventType(string(msg.Kind) + "." + msg.Type)
}
