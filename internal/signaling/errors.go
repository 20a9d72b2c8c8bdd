package signaling

import "errors"

// Errors surfaced by room verification and join admission. The transport
// layer maps these to HTTP status codes or websocket close reasons.
var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInvalidRoomKey = errors.New("invalid room key")
)
