package hubwire

import "sync"

// RoomRegistry tracks the set of joined rooms across the lifetime of the
// client, independent of connectivity. Its whole purpose is the replay: on
// every (re)connect each tracked room is re-joined before anything else
// goes out on the wire.
type RoomRegistry struct {
	mu        sync.RWMutex
	visitorID string
	rooms     map[string]struct{}
	order     []string
}

func NewRoomRegistry(visitorID string) *RoomRegistry {
	return &RoomRegistry{
		visitorID: visitorID,
		rooms:     make(map[string]struct{}),
	}
}

// Join adds a room to the set and reports whether it was newly added.
// Joining a room twice leaves a single subscription.
func (r *RoomRegistry) Join(roomID string) bool {
	if roomID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return false
	}
	r.rooms[roomID] = struct{}{}
	r.order = append(r.order, roomID)
	return true
}

// Leave removes a room from the set and reports whether it was present.
func (r *RoomRegistry) Leave(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		return false
	}
	delete(r.rooms, roomID)
	for i, id := range r.order {
		if id == roomID {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Has reports whether the room is currently joined.
func (r *RoomRegistry) Has(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Rooms returns the joined room ids in join order.
func (r *RoomRegistry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of joined rooms.
func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ReplayAll re-emits a join for every tracked room in join order. It stops
// at the first emission error; the registry itself is left untouched either
// way, so the next reconnect replays the full set again.
func (r *RoomRegistry) ReplayAll(emit func(EventName, any) error) error {
	for _, roomID := range r.Rooms() {
		if err := emit(EventJoin, &JoinPayload{RoomID: roomID, VisitorID: r.visitorID}); err != nil {
			return err
		}
	}
	return nil
}
