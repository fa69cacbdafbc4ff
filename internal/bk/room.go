package bk

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

const (
	RoomKind  = "room"
	RoomIndex = "rooms"
)

// Room is a valid room identifier guests may check in from.
type Room struct {
	ID string `json:"id"`
}

// RoomRegistry is the indexed collection of rooms.
type RoomRegistry struct {
	rooms *Collection[Room]
}

func NewRoomRegistry(b *Backend) *RoomRegistry {
	return &RoomRegistry{
		rooms: NewCollection(b, RoomKind, RoomIndex,
			func() Room { return Room{} },
			func(r Room) string { return r.ID }),
	}
}

// Init creates the room index if it does not exist yet.
func (r *RoomRegistry) Init(ctx context.Context) error {
	return r.rooms.Index().Init(ctx)
}

// Create registers id. It fails with ErrAlreadyExists when the room is known.
func (r *RoomRegistry) Create(ctx context.Context, id string) (Room, error) {
	return r.rooms.CreateIfAbsent(ctx, Room{ID: id})
}

// Get returns the room or ErrNotFound.
func (r *RoomRegistry) Get(ctx context.Context, id string) (Room, error) {
	entity := r.rooms.Entity(id)
	room, found, err := entity.load(ctx)
	if err != nil {
		return Room{}, err
	}
	if !found {
		return Room{}, fmt.Errorf("room %q: %w", id, ErrNotFound)
	}
	return room, nil
}

func (r *RoomRegistry) Exists(ctx context.Context, id string) (bool, error) {
	return r.rooms.Entity(id).Exists(ctx)
}

// Delete removes the room and reports whether it existed. Deleting an unknown
// room returns false and no error.
func (r *RoomRegistry) Delete(ctx context.Context, id string) (bool, error) {
	return r.rooms.Delete(ctx, id)
}

// Rename moves a room to a new id by deleting the old record and creating a
// new one. The two steps are not atomic: a crash between them loses the room.
func (r *RoomRegistry) Rename(ctx context.Context, oldID, newID string) (Room, error) {
	if oldID == newID {
		return r.Get(ctx, oldID)
	}

	ok, err := r.Exists(ctx, oldID)
	if err != nil {
		return Room{}, err
	}
	if !ok {
		return Room{}, fmt.Errorf("room %q: %w", oldID, ErrNotFound)
	}
	ok, err = r.Exists(ctx, newID)
	if err != nil {
		return Room{}, err
	}
	if ok {
		return Room{}, fmt.Errorf("room %q: %w", newID, ErrAlreadyExists)
	}

	if _, err := r.rooms.Delete(ctx, oldID); err != nil {
		return Room{}, fmt.Errorf("renaming room %q: %w", oldID, err)
	}
	room, err := r.rooms.CreateIfAbsent(ctx, Room{ID: newID})
	if err != nil {
		return Room{}, fmt.Errorf("renaming room %q to %q: %w", oldID, newID, err)
	}
	return room, nil
}

// List returns every indexed room ordered by SortRooms.
func (r *RoomRegistry) List(ctx context.Context) ([]Room, error) {
	rooms, err := r.rooms.List(ctx)
	if err != nil {
		return nil, err
	}
	SortRooms(rooms)
	return rooms, nil
}

// Drift reports disagreement between room records and the room index.
func (r *RoomRegistry) Drift(ctx context.Context) (DriftReport, error) {
	return r.rooms.Drift(ctx)
}

// SortRooms orders rooms by id, comparing digit runs numerically so that
// "2" sorts before "10".
func SortRooms(rooms []Room) {
	// Collators are not safe for concurrent use.
	c := collate.New(language.Und, collate.Numeric)
	slices.SortStableFunc(rooms, func(a, b Room) int {
		return c.CompareString(a.ID, b.ID)
	})
}
