package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// RosterHeader is the first row of user_details.csv
var RosterHeader = []string{"Name", "Email", "Phone Number", "Class", "Division", "Image Path", "Embeddings Path"}

// RosterRecord renders one identity as a roster row
func RosterRecord(id domain.Identity) []string {
	return []string{id.Name, id.Key, id.Phone, id.Class, id.Division, id.ImageRef, id.EmbeddingRef}
}

// ParseRosterRecord is the inverse of RosterRecord
func ParseRosterRecord(record []string) (domain.Identity, error) {
	if len(record) != len(RosterHeader) {
		return domain.Identity{}, fmt.Errorf("roster row has %d fields, want %d", len(record), len(RosterHeader))
	}
	return domain.Identity{
		Name:         record[0],
		Key:          domain.NormalizeKey(record[1]),
		Phone:        record[2],
		Class:        record[3],
		Division:     record[4],
		ImageRef:     record[5],
		EmbeddingRef: record[6],
	}, nil
}

// WriteRosterCSV writes the header and one row per identity
func WriteRosterCSV(w io.Writer, identities []domain.Identity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RosterHeader); err != nil {
		return fmt.Errorf("write roster header: %w", err)
	}
	for _, id := range identities {
		if err := cw.Write(RosterRecord(id)); err != nil {
			return fmt.Errorf("write roster row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// EventRecord renders an event as key,HH:MM:SS,DIRECTION
func EventRecord(ev domain.AttendanceEvent) []string {
	return []string{ev.Key, ev.Time.Format(domain.ClockLayout), string(ev.Direction)}
}

// ParseEventRecord rebuilds an event of the given day in loc
func ParseEventRecord(record []string, day string, loc *time.Location) (domain.AttendanceEvent, error) {
	if len(record) != 3 {
		return domain.AttendanceEvent{}, fmt.Errorf("event row has %d fields, want 3", len(record))
	}
	ts, err := time.ParseInLocation(domain.DayLayout+" "+domain.ClockLayout, day+" "+record[1], loc)
	if err != nil {
		return domain.AttendanceEvent{}, fmt.Errorf("parse event time: %w", err)
	}
	dir, err := domain.ParseDirection(record[2])
	if err != nil {
		return domain.AttendanceEvent{}, err
	}
	return domain.AttendanceEvent{Key: record[0], Time: ts, Direction: dir}, nil
}

// WriteEventsCSV writes a day log in the on-disk format, without header
func WriteEventsCSV(w io.Writer, events []domain.AttendanceEvent) error {
	cw := csv.NewWriter(w)
	for _, ev := range events {
		if err := cw.Write(EventRecord(ev)); err != nil {
			return fmt.Errorf("write event row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
