package signaling

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Close reasons sent with the policy-violation close code when admission
// fails.
const (
	reasonMissingKey   = "Missing room key"
	reasonRoomNotFound = "Room not found"
	reasonInvalidKey   = "Invalid room key"
)

// Handler runs the signaling lifecycle of accepted connections against a
// shared registry.
type Handler struct {
	registry    *Registry
	broadcaster *Broadcaster
	logger      *slog.Logger
	queueSize   int
}

// NewHandler creates a Handler relaying through registry. queueSize bounds
// each participant's outbound queue.
func NewHandler(registry *Registry, logger *slog.Logger, queueSize int) *Handler {
	return &Handler{
		registry:    registry,
		broadcaster: NewBroadcaster(logger),
		logger:      logger,
		queueSize:   queueSize,
	}
}

// Relay admits conn into the room identified by roomID/roomKey and relays
// its messages until the connection ends. It owns the connection from this
// point: the connection is always closed, and deregistration plus the
// participant_left notification run exactly once no matter how the read
// loop exits. A connection that fails admission is never registered in any
// room.
func (h *Handler) Relay(conn *websocket.Conn, roomID, roomKey string) {
	if roomKey == "" {
		h.reject(conn, roomID, reasonMissingKey)
		return
	}

	room, ok := h.registry.GetRoom(roomID)
	if !ok {
		h.reject(conn, roomID, reasonRoomNotFound)
		return
	}
	if room.Key != roomKey {
		h.reject(conn, roomID, reasonInvalidKey)
		return
	}

	client := NewClient(uuid.NewString(), conn, h.queueSize)
	count := room.Add(client)
	h.logger.Info("participant joined", "room", room.ID, "participant", client.ID, "count", count)

	go client.WritePump()
	defer h.leave(room, client)

	// Survivors learn about the join before any of this connection's own
	// messages reach them.
	h.broadcaster.Broadcast(room, Event{
		Type:             TypeParticipantJoined,
		ParticipantID:    client.ID,
		ParticipantCount: count,
	}, client.ID)

	h.readLoop(room, client)
}

// readLoop relays inbound messages until the client leaves or the
// connection drops.
func (h *Handler) readLoop(room *Room, client *Client) {
	conn := client.Conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// A dropped connection is a normal exit, not an error to
			// report. Anything else closes with an internal-error code;
			// cleanup runs either way.
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
				websocket.CloseAbnormalClosure) {
				h.logger.Error("read failed", "room", room.ID, "participant", client.ID, "err", err)
				h.closeWith(conn, websocket.CloseInternalServerErr, "")
			}
			return
		}

		var message map[string]any
		if err := json.Unmarshal(data, &message); err != nil {
			h.logger.Warn("ignoring malformed message", "room", room.ID, "participant", client.ID, "err", err)
			continue
		}

		// Never trust a client-supplied sender id.
		message[fieldSenderID] = client.ID

		if t, _ := message[fieldType].(string); t == TypeLeave {
			return
		}

		h.broadcaster.Broadcast(room, message, client.ID)
	}
}

// leave runs the cleanup phase: deregister, notify survivors, and drop the
// room once it is empty. The broadcaster may already have pruned this
// participant; in that case survivors were not notified by it, but the
// empty-room check still has to run here.
func (h *Handler) leave(room *Room, client *Client) {
	client.CloseSend()
	client.Conn.Close()

	count, removed := room.Remove(client.ID)

	if count == 0 {
		h.registry.RemoveRoom(room.ID)
		h.logger.Info("room removed", "room", room.ID)
		return
	}

	if !removed {
		return
	}
	h.logger.Info("participant left", "room", room.ID, "participant", client.ID, "count", count)

	h.broadcaster.Broadcast(room, Event{
		Type:             TypeParticipantLeft,
		ParticipantID:    client.ID,
		ParticipantCount: count,
	}, "")
}

func (h *Handler) reject(conn *websocket.Conn, roomID, reason string) {
	h.logger.Warn("rejecting connection", "room", roomID, "reason", reason)
	h.closeWith(conn, websocket.ClosePolicyViolation, reason)
	conn.Close()
}

// closeWith sends a close frame. WriteControl is safe to call concurrently
// with the write pump.
func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
