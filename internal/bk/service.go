package bk

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// BKService is the layer the CLI and HTTP handlers call. It validates and
// trims input, coordinates the room registry with the session book, and logs
// state changes.
type BKService struct {
	backend  *Backend
	rooms    *RoomRegistry
	sessions *SessionBook
	logger   Logger
	clock    Clock
	location *time.Location
}

// NewBKService builds the service over store. A nil clock uses the real time,
// a nil location uses time.Local.
func NewBKService(store RecordStore, logger Logger, clock Clock, location *time.Location) *BKService {
	logger = loggerOrNop(logger)
	if clock == nil {
		clock = RealClock{}
	}
	if location == nil {
		location = time.Local
	}
	backend := NewBackend(store, logger)
	return &BKService{
		backend:  backend,
		rooms:    NewRoomRegistry(backend),
		sessions: NewSessionBook(backend, clock),
		logger:   logger,
		clock:    clock,
		location: location,
	}
}

func (s *BKService) Rooms() *RoomRegistry     { return s.rooms }
func (s *BKService) Sessions() *SessionBook   { return s.sessions }
func (s *BKService) Location() *time.Location { return s.location }

// Init prepares the indexes. The composition root calls it once at startup;
// calling it again is harmless.
func (s *BKService) Init(ctx context.Context) error {
	if err := s.rooms.Init(ctx); err != nil {
		return fmt.Errorf("initializing room index: %w", err)
	}
	if err := s.sessions.Init(ctx); err != nil {
		return fmt.Errorf("initializing session index: %w", err)
	}
	return nil
}

// CreateRoom registers a new room.
func (s *BKService) CreateRoom(ctx context.Context, id string) (Room, error) {
	id, err := cleanKey("room", id)
	if err != nil {
		return Room{}, err
	}
	room, err := s.rooms.Create(ctx, id)
	if err != nil {
		return Room{}, err
	}
	s.logger.Info("room created", "room", id)
	return room, nil
}

// RenameRoom moves a room to a new id.
func (s *BKService) RenameRoom(ctx context.Context, oldID, newID string) (Room, error) {
	oldID, err := cleanKey("room", oldID)
	if err != nil {
		return Room{}, err
	}
	newID, err = cleanKey("room", newID)
	if err != nil {
		return Room{}, err
	}
	room, err := s.rooms.Rename(ctx, oldID, newID)
	if err != nil {
		return Room{}, err
	}
	if oldID != newID {
		s.logger.Info("room renamed", "from", oldID, "to", newID)
	}
	return room, nil
}

// DeleteRoom removes a room and reports whether it existed.
func (s *BKService) DeleteRoom(ctx context.Context, id string) (bool, error) {
	id, err := cleanKey("room", id)
	if err != nil {
		return false, err
	}
	deleted, err := s.rooms.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.Info("room deleted", "room", id)
	}
	return deleted, nil
}

func (s *BKService) ListRooms(ctx context.Context) ([]Room, error) {
	return s.rooms.List(ctx)
}

func (s *BKService) RoomExists(ctx context.Context, id string) (bool, error) {
	id, err := cleanKey("room", id)
	if err != nil {
		return false, err
	}
	return s.rooms.Exists(ctx, id)
}

// Today returns the session for the current date in the service's location,
// creating it if needed.
func (s *BKService) Today(ctx context.Context) (Session, error) {
	return s.GetOrCreateSession(ctx, s.TodayDate())
}

// TodayDate returns the current date key.
func (s *BKService) TodayDate() string {
	return s.clock.Now().In(s.location).Format(DateLayout)
}

// GetOrCreateSession returns the session for date, initializing it on first touch.
func (s *BKService) GetOrCreateSession(ctx context.Context, date string) (Session, error) {
	date = strings.TrimSpace(date)
	session, err := s.sessions.GetOrCreate(ctx, date)
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// GetSession returns an existing session without creating one.
func (s *BKService) GetSession(ctx context.Context, date string) (Session, error) {
	return s.sessions.Get(ctx, strings.TrimSpace(date))
}

// AddCheckIn records room's check-in for date. The room must be registered
// and the session must already have been opened with GetOrCreateSession.
func (s *BKService) AddCheckIn(ctx context.Context, date, room string) (CheckInRecord, error) {
	date = strings.TrimSpace(date)
	if _, err := ParseDate(date); err != nil {
		return CheckInRecord{}, err
	}
	room, err := cleanKey("room", room)
	if err != nil {
		return CheckInRecord{}, err
	}

	ok, err := s.rooms.Exists(ctx, room)
	if err != nil {
		return CheckInRecord{}, fmt.Errorf("checking room %q: %w", room, err)
	}
	if !ok {
		return CheckInRecord{}, fmt.Errorf("room %q: %w", room, ErrNotFound)
	}
	if _, err := s.sessions.Get(ctx, date); err != nil {
		return CheckInRecord{}, err
	}

	record, err := s.sessions.AddCheckIn(ctx, date, room)
	if err != nil {
		return CheckInRecord{}, err
	}
	s.logger.Info("check-in recorded", "date", date, "room", room, "timestamp", record.Timestamp)
	return record, nil
}

// ListSessionsWithCheckIns returns every session that has at least one check-in.
func (s *BKService) ListSessionsWithCheckIns(ctx context.Context) ([]Session, error) {
	return s.sessions.ListWithCheckIns(ctx)
}

// Doctor reports index drift for rooms and sessions. It never repairs anything.
func (s *BKService) Doctor(ctx context.Context) ([]DriftReport, error) {
	rooms, err := s.rooms.Drift(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking rooms: %w", err)
	}
	sessions, err := s.sessions.Drift(ctx)
	if err != nil {
		return nil, fmt.Errorf("checking sessions: %w", err)
	}
	reports := []DriftReport{rooms, sessions}
	for _, r := range reports {
		if !r.Clean() {
			s.logger.Warn("invariant drift found", "kind", r.Kind, "index", r.Index,
				"dangling", len(r.Dangling), "unindexed", len(r.Unindexed))
		}
	}
	return reports, nil
}

func cleanKey(what, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("%s id must not be empty: %w", what, ErrInvalidKey)
	}
	return key, nil
}
