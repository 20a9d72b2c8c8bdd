package signaling

import (
	"encoding/json"
	"log/slog"
)

// Broadcaster fans messages out to a room's participants.
type Broadcaster struct {
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster logging through logger.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{logger: logger}
}

// Broadcast serializes message once and delivers it to every participant in
// room except excludeID. A recipient that cannot accept the frame does not
// abort delivery to the rest; failed recipients are pruned from the room
// after the pass completes. Pruning may race with that participant's own
// disconnect cleanup, which Room.Remove tolerates.
func (b *Broadcaster) Broadcast(room *Room, message any, excludeID string) {
	recipients := room.snapshot()
	if len(recipients) == 0 {
		return
	}

	frame, err := json.Marshal(message)
	if err != nil {
		b.logger.Error("dropping unencodable broadcast", "room", room.ID, "err", err)
		return
	}

	var failed []string
	for id, c := range recipients {
		if id == excludeID {
			continue
		}
		if !c.Enqueue(frame) {
			b.logger.Warn("failed to deliver to participant", "room", room.ID, "participant", id)
			failed = append(failed, id)
		}
	}

	for _, id := range failed {
		if _, removed := room.Remove(id); removed {
			b.logger.Info("pruned stale participant", "room", room.ID, "participant", id)
		}
	}
}
