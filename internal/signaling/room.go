package signaling

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// Room is a single signaling session: a short code, a secret key, and the
// set of currently connected participants. The participant map is mutated
// by the owning connection handlers on join/leave and by the broadcaster
// when it prunes stale recipients, so all access goes through the room
// lock. The lock is never held across a channel send.
type Room struct {
	// ID is the unique identifier for the room.
	ID string

	// Key is the secret required to join or verify the room.
	Key string

	// CreatedAt is kept for diagnostics only.
	CreatedAt time.Time

	mu           sync.Mutex
	participants map[string]*Client
}

// NewRoom creates an empty room with the given id and key.
func NewRoom(id, key string) *Room {
	return &Room{
		ID:           id,
		Key:          key,
		CreatedAt:    time.Now(),
		participants: make(map[string]*Client),
	}
}

// Add registers a client under its participant id and returns the
// participant count after the join.
func (r *Room) Add(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants[c.ID] = c
	return len(r.participants)
}

// Remove deregisters a participant id. It returns the count after removal
// and whether the id was still registered, so that a connection's own
// cleanup and the broadcaster's lazy pruning stay idempotent when they
// race.
func (r *Room) Remove(id string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.participants[id]; !ok {
		return len(r.participants), false
	}
	delete(r.participants, id)
	return len(r.participants), true
}

// Count returns the current participant count.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.participants)
}

// ParticipantIDs returns the ids of all current participants, in no
// particular order.
func (r *Room) ParticipantIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Keys(r.participants)
}

// snapshot copies the participant set so the broadcaster can iterate
// without holding the room lock across sends.
func (r *Room) snapshot() map[string]*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]*Client, len(r.participants))
	for id, c := range r.participants {
		out[id] = c
	}
	return out
}
