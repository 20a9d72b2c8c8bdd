package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/relabs/signalroom/internal/config"
	"github.com/relabs/signalroom/internal/signaling"
)

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Registry) {
	t.Helper()

	cfg := &config.Config{
		AllowedOrigin: "*",
		SendQueueSize: 16,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := signaling.NewRegistry()

	mux := http.NewServeMux()
	New(cfg, logger, registry).RegisterRoutes(mux)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, registry
}

func createRoom(t *testing.T, ts *httptest.Server) (id, key string) {
	t.Helper()

	resp, err := http.Post(ts.URL+"/api/rooms/create", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		RoomID  string `json:"room_id"`
		RoomKey string `json:"room_key"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.RoomID)
	require.NotEmpty(t, body.RoomKey)
	return body.RoomID, body.RoomKey
}

func wsDial(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func writeJSONMsg(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestCreateAndVerifyRoom(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestServer(t)

	id, key := createRoom(t, ts)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantDetail string
	}{
		{"wrong key", "/api/rooms/verify/" + id + "?room_key=WRONGKEY", http.StatusUnauthorized, "Invalid room key"},
		{"unknown room", "/api/rooms/verify/NOPE99?room_key=" + key, http.StatusNotFound, "Room not found"},
		{"missing key", "/api/rooms/verify/" + id, http.StatusBadRequest, "Missing room key"},
		{"correct key", "/api/rooms/verify/" + id + "?room_key=" + key, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.url)
			require.NoError(t, err)
			defer resp.Body.Close()
			require.Equal(t, tt.wantStatus, resp.StatusCode)

			var body map[string]any
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			if tt.wantDetail != "" {
				require.Equal(t, tt.wantDetail, body["detail"])
			} else {
				require.Equal(t, true, body["valid"])
			}
		})
	}

	req.NotEmpty(id)
}

func TestHealth(t *testing.T) {
	req := require.New(t)
	ts, registry := newTestServer(t)
	createRoom(t, ts)
	createRoom(t, ts)

	resp, err := http.Get(ts.URL + "/api/health")
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Status      string `json:"status"`
		Timestamp   string `json:"timestamp"`
		ActiveRooms int    `json:"active_rooms"`
	}
	req.NoError(json.NewDecoder(resp.Body).Decode(&body))
	req.Equal("healthy", body.Status)
	req.NotEmpty(body.Timestamp)
	req.Equal(registry.RoomCount(), body.ActiveRooms)
	req.Equal(2, body.ActiveRooms)
}

func TestCORSHeaders(t *testing.T) {
	req := require.New(t)
	ts, _ := newTestServer(t)

	request, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/rooms/create", nil)
	req.NoError(err)
	resp, err := http.DefaultClient.Do(request)
	req.NoError(err)
	defer resp.Body.Close()

	req.Equal("*", resp.Header.Get("Access-Control-Allow-Origin"))
	req.Contains(resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}

func TestRelayLifecycle(t *testing.T) {
	req := require.New(t)
	ts, registry := newTestServer(t)
	id, key := createRoom(t, ts)

	room, ok := registry.GetRoom(id)
	req.True(ok)

	connA := wsDial(t, ts, "/ws/"+id+"?key="+key)
	req.Eventually(func() bool { return room.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	connB := wsDial(t, ts, "/ws/"+id+"?key="+key)
	req.Eventually(func() bool { return room.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// The member that was already present hears about the join, with the
	// count as of after the join.
	joined := readJSON(t, connA)
	req.Equal("participant_joined", joined["type"])
	req.EqualValues(2, joined["participant_count"])
	joinedID, _ := joined["participant_id"].(string)
	req.NotEmpty(joinedID)

	// A spoofed sender_id is overwritten before relay, and the sender never
	// hears its own message back.
	writeJSONMsg(t, connA, map[string]any{"type": "chat", "text": "hi", "sender_id": "spoofed"})

	chat := readJSON(t, connB)
	req.Equal("chat", chat["type"])
	req.Equal("hi", chat["text"])
	senderID, _ := chat["sender_id"].(string)
	req.NotEmpty(senderID)
	req.NotEqual("spoofed", senderID)
	req.NotEqual(joinedID, senderID, "sender must be the other participant")

	req.NoError(connA.SetReadDeadline(time.Now().Add(300 * time.Millisecond)))
	_, _, err := connA.ReadMessage()
	req.Error(err, "sender must not receive its own broadcast")

	// Abrupt disconnect of A: B is told, the room survives with B alone.
	connA.Close()

	left := readJSON(t, connB)
	req.Equal("participant_left", left["type"])
	req.Equal(senderID, left["participant_id"])
	req.EqualValues(1, left["participant_count"])

	_, ok = registry.GetRoom(id)
	req.True(ok)
	req.Equal(1, room.Count())

	// Graceful leave of the last participant removes the room.
	writeJSONMsg(t, connB, map[string]any{"type": "leave"})
	req.Eventually(func() bool { return registry.RoomCount() == 0 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/api/rooms/verify/" + id + "?room_key=" + key)
	req.NoError(err)
	defer resp.Body.Close()
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestMalformedMessageIsSkipped(t *testing.T) {
	req := require.New(t)
	ts, registry := newTestServer(t)
	id, key := createRoom(t, ts)
	room, _ := registry.GetRoom(id)

	connA := wsDial(t, ts, "/ws/"+id+"?key="+key)
	req.Eventually(func() bool { return room.Count() == 1 }, 2*time.Second, 10*time.Millisecond)
	connB := wsDial(t, ts, "/ws/"+id+"?key="+key)
	req.Eventually(func() bool { return room.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	// Drain the join notification on A.
	readJSON(t, connA)

	req.NoError(connA.WriteMessage(websocket.TextMessage, []byte("{not json")))
	writeJSONMsg(t, connA, map[string]any{"type": "ping"})

	// The connection survived the malformed frame and the next message
	// still went through.
	got := readJSON(t, connB)
	req.Equal("ping", got["type"])
	req.Equal(2, room.Count())
}

func TestAdmissionRejections(t *testing.T) {
	ts, registry := newTestServer(t)
	id, key := createRoom(t, ts)

	tests := []struct {
		name       string
		path       string
		wantReason string
	}{
		{"missing key", "/ws/" + id, "Missing room key"},
		{"unknown room", "/ws/NOPE99?key=" + key, "Room not found"},
		{"wrong key", "/ws/" + id + "?key=WRONGKEY", "Invalid room key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			conn := wsDial(t, ts, tt.path)

			req.NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))
			_, _, err := conn.ReadMessage()
			var closeErr *websocket.CloseError
			req.ErrorAs(err, &closeErr)
			req.Equal(websocket.ClosePolicyViolation, closeErr.Code)
			req.Equal(tt.wantReason, closeErr.Text)

			// A rejected connection never joined the room.
			room, ok := registry.GetRoom(id)
			req.True(ok)
			req.Zero(room.Count())
		})
	}
}
