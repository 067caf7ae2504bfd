package domain

import (
	"fmt"
	"time"
)

// DayLayout names one attendance log per calendar day.
const DayLayout = "2006-01-02"

// ClockLayout is the time-of-day written next to each event.
const ClockLayout = "15:04:05"

type Direction string

const (
	DirectionIn  Direction = "IN"
	DirectionOut Direction = "OUT"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionIn, DirectionOut:
		return Direction(s), nil
	}
	return "", fmt.Errorf("invalid direction %q", s)
}

type SessionStatus string

const (
	CheckedOut SessionStatus = "CHECKED_OUT"
	CheckedIn  SessionStatus = "CHECKED_IN"
)

// SessionState is the ledger view of one identity. Identities without an entry are CheckedOut.
type SessionState struct {
	Status SessionStatus `json:"status"`
	Since  time.Time     `json:"since,omitempty"`
}

func (s SessionState) IsCheckedIn() bool {
	return s.Status == CheckedIn
}

// AttendanceEvent is an immutable entry of a day's append-only log.
type AttendanceEvent struct {
	Key       string    `json:"email"`
	Time      time.Time `json:"time"`
	Direction Direction `json:"direction"`
}

// Day returns the log the event belongs to, in the event's own location.
func (e AttendanceEvent) Day() string {
	return e.Time.Format(DayLayout)
}

// Replay folds a day's events into per-identity state; the last event of each key wins.
func Replay(events []AttendanceEvent) map[string]SessionState {
	states := make(map[string]SessionState)
	for _, ev := range events {
		status := CheckedOut
		if ev.Direction == DirectionIn {
			status = CheckedIn
		}
		states[ev.Key] = SessionState{Status: status, Since: ev.Time}
	}
	return states
}
