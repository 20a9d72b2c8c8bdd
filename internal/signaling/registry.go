package signaling

import (
	"crypto/rand"
	"log"
	"math/big"
	"sync"
)

const (
	// Alphabet shared by room ids and room keys.
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	roomIDLength  = 6
	roomKeyLength = 8
)

// Registry is the process-wide store of live rooms. All methods are safe
// for concurrent use from any number of connection handlers; the registry
// lock is independent of each room's own lock.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// CreateRoom stores a new empty room and returns its id/key pair. The id is
// regenerated until it does not collide with a live room. Keys only need to
// match within their own room, so key collisions across rooms are fine.
func (reg *Registry) CreateRoom() (id, key string) {
	key = randomCode(roomKeyLength)

	reg.mu.Lock()
	defer reg.mu.Unlock()

	for {
		id = randomCode(roomIDLength)
		if _, ok := reg.rooms[id]; !ok {
			break
		}
	}
	reg.rooms[id] = NewRoom(id, key)
	return id, key
}

// VerifyRoom checks that a room with the given id exists and that key
// matches its key. It returns ErrRoomNotFound or ErrInvalidRoomKey
// accordingly.
func (reg *Registry) VerifyRoom(id, key string) error {
	reg.mu.RLock()
	room, ok := reg.rooms[id]
	reg.mu.RUnlock()

	if !ok {
		return ErrRoomNotFound
	}
	if room.Key != key {
		return ErrInvalidRoomKey
	}
	return nil
}

// GetRoom looks up a room by id.
func (reg *Registry) GetRoom(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	room, ok := reg.rooms[id]
	return room, ok
}

// RemoveRoom deletes the room with the given id. Removing an id that is
// already gone is a no-op.
func (reg *Registry) RemoveRoom(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	delete(reg.rooms, id)
}

// RoomCount returns the number of live rooms.
func (reg *Registry) RoomCount() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	return len(reg.rooms)
}

// randomCode returns a random string of length n drawn from codeAlphabet.
func randomCode(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[randomIndex(len(codeAlphabet))]
	}
	return string(b)
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}
