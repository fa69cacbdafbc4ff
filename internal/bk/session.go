package bk

import (
	"context"
	"fmt"
	"time"
)

const (
	SessionKind  = "breakfast_session"
	SessionIndex = "breakfast_session_dates"

	// DateLayout is the format of session keys.
	DateLayout = "2006-01-02"
)

// CheckInRecord is one room's check-in. It is never modified once appended.
type CheckInRecord struct {
	RoomNumber string `json:"roomNumber"`
	// Timestamp is in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Session holds the check-ins of one calendar date.
type Session struct {
	Date     string          `json:"date"`
	CheckIns []CheckInRecord `json:"checkIns"`
}

// HasCheckedIn reports whether room already has a record in the session.
// Matching is exact and case-sensitive.
func (s Session) HasCheckedIn(room string) bool {
	for _, c := range s.CheckIns {
		if c.RoomNumber == room {
			return true
		}
	}
	return false
}

// ParseDate validates a YYYY-MM-DD calendar date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil || t.Format(DateLayout) != date {
		return time.Time{}, fmt.Errorf("%q: %w", date, ErrInvalidDate)
	}
	return t, nil
}

// SessionBook owns the per-date sessions. A session is created on first touch
// of its date and is never deleted.
type SessionBook struct {
	sessions *Collection[Session]
	clock    Clock
}

func NewSessionBook(b *Backend, clock Clock) *SessionBook {
	if clock == nil {
		clock = RealClock{}
	}
	return &SessionBook{
		sessions: NewCollection(b, SessionKind, SessionIndex,
			func() Session { return Session{CheckIns: []CheckInRecord{}} },
			func(s Session) string { return s.Date }),
		clock: clock,
	}
}

// Init creates the session-date index if it does not exist yet.
func (s *SessionBook) Init(ctx context.Context) error {
	return s.sessions.Index().Init(ctx)
}

// GetOrCreate returns the session for date, initializing it with no
// check-ins and indexing the date when it does not exist yet.
func (s *SessionBook) GetOrCreate(ctx context.Context, date string) (Session, error) {
	if _, err := ParseDate(date); err != nil {
		return Session{}, err
	}
	session, _, err := s.sessions.Ensure(ctx, Session{Date: date, CheckIns: []CheckInRecord{}})
	if err != nil {
		return Session{}, err
	}
	return normalize(session), nil
}

// Get returns an existing session or ErrNotFound. It never creates one.
func (s *SessionBook) Get(ctx context.Context, date string) (Session, error) {
	if _, err := ParseDate(date); err != nil {
		return Session{}, err
	}
	session, found, err := s.sessions.Entity(date).load(ctx)
	if err != nil {
		return Session{}, err
	}
	if !found {
		return Session{}, fmt.Errorf("session %s: %w", date, ErrNotFound)
	}
	return normalize(session), nil
}

// AddCheckIn appends a check-in for room to the session of date, creating
// the session on first touch. It fails with ErrDuplicateCheckIn when the room
// already checked in that day, in which case nothing is written.
//
// Timestamps come from the clock but never go below the latest record, so
// check-ins stay ordered by time even if the clock steps back.
func (s *SessionBook) AddCheckIn(ctx context.Context, date, room string) (CheckInRecord, error) {
	if _, err := s.GetOrCreate(ctx, date); err != nil {
		return CheckInRecord{}, err
	}

	var added CheckInRecord
	_, err := s.sessions.Entity(date).Update(ctx, func(session Session) (Session, error) {
		if session.HasCheckedIn(room) {
			return session, fmt.Errorf("room %s on %s: %w", room, date, ErrDuplicateCheckIn)
		}
		ts := s.clock.Now().UnixMilli()
		if n := len(session.CheckIns); n > 0 && session.CheckIns[n-1].Timestamp > ts {
			ts = session.CheckIns[n-1].Timestamp
		}
		added = CheckInRecord{RoomNumber: room, Timestamp: ts}
		session.CheckIns = append(session.CheckIns, added)
		return session, nil
	})
	if err != nil {
		return CheckInRecord{}, err
	}
	return added, nil
}

// ListWithCheckIns returns every indexed session that has at least one
// check-in, in the order the dates were first touched.
func (s *SessionBook) ListWithCheckIns(ctx context.Context) ([]Session, error) {
	all, err := s.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]Session, 0, len(all))
	for _, session := range all {
		if len(session.CheckIns) > 0 {
			result = append(result, session)
		}
	}
	return result, nil
}

// Drift reports disagreement between session records and the date index.
func (s *SessionBook) Drift(ctx context.Context) (DriftReport, error) {
	return s.sessions.Drift(ctx)
}

func normalize(s Session) Session {
	if s.CheckIns == nil {
		s.CheckIns = []CheckInRecord{}
	}
	return s
}
