package signaling

// Message types the relay itself understands. Anything else passes through
// to the other participants untouched.
const (
	TypeLeave             = "leave"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
)

// Fields inspected or stamped on relayed payloads.
const (
	fieldType     = "type"
	fieldSenderID = "sender_id"
)

// Event is a server-synthesized room membership notification.
type Event struct {
	Type             string `json:"type"`
	ParticipantID    string `json:"participant_id"`
	ParticipantCount int    `json:"participant_count"`
}
