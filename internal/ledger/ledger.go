// Package ledger tracks who is checked in today. State lives in memory and is
// rebuilt from the day's event log whenever the calendar day changes.
package ledger

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
	"github.com/saturnino-fabrica-de-software/ponto/internal/repository"
)

// Directory answers whether a key is enrolled
type Directory interface {
	Contains(ctx context.Context, key string) (bool, error)
}

type Ledger struct {
	events    repository.AttendanceRepositoryInterface
	directory Directory
	loc       *time.Location
	now       func() time.Time
	logger    *slog.Logger

	// mu guards day, last and states; it is also held while a new day is replayed
	mu     sync.Mutex
	day    string
	last   time.Time
	states map[string]domain.SessionState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

func New(events repository.AttendanceRepositoryInterface, directory Directory, loc *time.Location, logger *slog.Logger, opts ...Option) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	l := &Ledger{
		events:    events,
		directory: directory,
		loc:       loc,
		now:       time.Now,
		logger:    logger.With("component", "ledger"),
		states:    make(map[string]domain.SessionState),
		locks:     make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) keyLock(key string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()

	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// current returns the present time in the ledger zone, replaying the day's
// log first when the day changed since the last call
func (l *Ledger) current(ctx context.Context) (time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(l.loc)
	today := now.Format(domain.DayLayout)
	if today == l.day {
		if now.After(l.last) {
			l.last = now
		}
		return now, nil
	}
	// clocks going backwards never reopen a finished day; events are pinned
	// to the latest instant seen so they stay in the loaded day
	if l.day != "" && today < l.day {
		return l.last, nil
	}

	events, err := l.events.ListDay(ctx, today)
	if err != nil {
		return time.Time{}, domain.ErrStorageFailure.WithError(err)
	}

	if l.day != "" {
		for key, state := range l.states {
			if state.IsCheckedIn() {
				l.logger.Warn("identity still checked in at day rollover, resetting",
					slog.String("key", key),
					slog.String("day", l.day),
					slog.Time("since", state.Since),
				)
			}
		}
	}

	l.day = today
	l.last = now
	l.states = domain.Replay(events)
	l.logger.Info("ledger day loaded", slog.String("day", today), slog.Int("events", len(events)))

	return now, nil
}

func (l *Ledger) lookup(key string) domain.SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if state, ok := l.states[key]; ok {
		return state
	}
	return domain.SessionState{Status: domain.CheckedOut}
}

// record stores the state unless the day rolled over during the append
func (l *Ledger) record(ev domain.AttendanceEvent, status domain.SessionStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.Day() != l.day {
		return
	}
	l.states[ev.Key] = domain.SessionState{Status: status, Since: ev.Time}
}

func (l *Ledger) ensureEnrolled(ctx context.Context, key string) error {
	ok, err := l.directory.Contains(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrUnregisteredIdentity
	}
	return nil
}

// Login appends an IN event unless key is already checked in today
func (l *Ledger) Login(ctx context.Context, key string) (*domain.AttendanceEvent, error) {
	return l.transition(ctx, key, domain.DirectionIn)
}

// Logout appends an OUT event for a checked-in key
func (l *Ledger) Logout(ctx context.Context, key string) (*domain.AttendanceEvent, error) {
	return l.transition(ctx, key, domain.DirectionOut)
}

func (l *Ledger) transition(ctx context.Context, key string, dir domain.Direction) (*domain.AttendanceEvent, error) {
	key = domain.NormalizeKey(key)
	if err := l.ensureEnrolled(ctx, key); err != nil {
		return nil, err
	}

	lock := l.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	now, err := l.current(ctx)
	if err != nil {
		return nil, err
	}

	state := l.lookup(key)
	switch {
	case dir == domain.DirectionIn && state.IsCheckedIn():
		return nil, domain.ErrAlreadyLoggedIn
	case dir == domain.DirectionOut && !state.IsCheckedIn():
		return nil, domain.ErrNotLoggedIn
	}

	ev := domain.AttendanceEvent{Key: key, Time: now, Direction: dir}
	if err := l.events.Append(ctx, ev); err != nil {
		return nil, domain.ErrStorageFailure.WithError(err)
	}

	status := domain.CheckedOut
	if dir == domain.DirectionIn {
		status = domain.CheckedIn
	}
	l.record(ev, status)

	return &ev, nil
}

// State returns the session of key for today; unknown keys are CHECKED_OUT
func (l *Ledger) State(ctx context.Context, key string) (domain.SessionState, error) {
	if _, err := l.current(ctx); err != nil {
		return domain.SessionState{}, err
	}
	return l.lookup(domain.NormalizeKey(key)), nil
}

// CheckedIn lists the keys currently checked in, for the status endpoint
func (l *Ledger) CheckedIn(ctx context.Context) ([]string, error) {
	if _, err := l.current(ctx); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.states))
	for key, state := range l.states {
		if state.IsCheckedIn() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
