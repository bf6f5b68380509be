package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Parley/internal/app/orch"
	"github.com/dkeye/Parley/internal/config"
	"github.com/dkeye/Parley/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type denyRooms map[domain.RoomID]bool

func (d denyRooms) CanJoin(_ context.Context, rid domain.RoomID, _ domain.UserID) (bool, error) {
	return !d[rid], nil
}

func newServer(t *testing.T, auth denyRooms) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	o := orch.New()
	go func() { _ = o.Run(ctx) }()

	cfg := &config.Config{
		Mode:       "test",
		Secret:     "test-secret",
		StaticPath: t.TempDir(),
		RateLimit:  config.RateLimit{Messages: 2, Interval: time.Minute},
	}
	srv := httptest.NewServer(SetupRouter(ctx, cfg, o, auth))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dial(t *testing.T, srv *httptest.Server, jar http.CookieJar) *websocket.Conn {
	t.Helper()
	d := websocket.Dialer{Jar: jar, HandshakeTimeout: 2 * time.Second}
	ws, _, err := d.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(v))
}

// readUntil reads frames until one of type typ arrives and returns it along
// with every frame seen on the way.
func readUntil(t *testing.T, ws *websocket.Conn, typ string) (map[string]any, []map[string]any) {
	t.Helper()
	var seen []map[string]any
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "waiting for %s", typ)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		seen = append(seen, m)
		if m["type"] == typ {
			return m, seen
		}
	}
}

func login(t *testing.T, ws *websocket.Conn, uid, name string) {
	t.Helper()
	send(t, ws, map[string]any{"type": "register-identity", "userId": uid, "displayName": name})
	reg, _ := readUntil(t, ws, "registered")
	require.Equal(t, uid, reg["userId"])
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestHealthzAndEmptyRooms(t *testing.T) {
	srv := newServer(t, nil)

	var health map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/healthz", &health))
	assert.Equal(t, "ok", health["status"])

	var rooms struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms", &rooms))
	assert.Empty(t, rooms.Rooms)
}

func TestGeneralRoomOverWebSocket(t *testing.T) {
	srv := newServer(t, nil)
	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	login(t, a, "A", "Alice")
	login(t, b, "B", "Bob")

	send(t, a, map[string]any{"type": "join-room", "roomId": "general", "userId": "A", "displayName": "Alice"})
	roster, _ := readUntil(t, a, "roster-changed")
	assert.EqualValues(t, 1, roster["onlineCount"])

	send(t, b, map[string]any{"type": "join-room", "roomId": "general", "userId": "B", "displayName": "Bob"})
	roster, _ = readUntil(t, a, "roster-changed")
	assert.EqualValues(t, 2, roster["onlineCount"])
	assert.Len(t, roster["members"], 2)

	var members struct {
		Members     []domain.User `json:"members"`
		OnlineCount int           `json:"onlineCount"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/rooms/general/members", &members))
	assert.Equal(t, 2, members.OnlineCount)

	require.NoError(t, b.Close())
	roster, _ = readUntil(t, a, "roster-changed")
	assert.EqualValues(t, 1, roster["onlineCount"])

	var rooms struct {
		Rooms []domain.RoomSummary `json:"rooms"`
	}
	getJSON(t, srv.URL+"/api/rooms", &rooms)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, domain.RoomSummary{RoomID: "general", OnlineCount: 1}, rooms.Rooms[0])
}

func TestSessionPreRegisters(t *testing.T) {
	srv := newServer(t, nil)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Post(srv.URL+"/api/session", "application/json",
		strings.NewReader(`{"userId":"carol","displayName":"Carol"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ws := dial(t, srv, jar)
	reg, _ := readUntil(t, ws, "registered")
	assert.Equal(t, "carol", reg["userId"])
	assert.Equal(t, "Carol", reg["displayName"])
}

func TestSessionRejectsInvalidUser(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := http.Post(srv.URL+"/api/session", "application/json", strings.NewReader(`{"userId":"  "}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMalformedFrames(t *testing.T) {
	srv := newServer(t, nil)
	ws := dial(t, srv, nil)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))
	e, _ := readUntil(t, ws, "error")
	assert.Equal(t, "bad_payload", e["error"])

	send(t, ws, map[string]any{"type": "teleport"})
	e, _ = readUntil(t, ws, "error")
	assert.Equal(t, "unknown_event", e["error"])

	send(t, ws, map[string]any{"type": "join-room", "roomId": "general", "userId": "A"})
	e, _ = readUntil(t, ws, "error")
	assert.Equal(t, "not_registered", e["error"])
}

func TestMessagesAreRateLimited(t *testing.T) {
	srv := newServer(t, nil)
	ws := dial(t, srv, nil)
	login(t, ws, "A", "")
	send(t, ws, map[string]any{"type": "join-room", "roomId": "general", "userId": "A"})
	readUntil(t, ws, "roster-changed")

	for i := 0; i < 3; i++ {
		send(t, ws, map[string]any{"type": "send-message", "roomId": "general", "content": "spam"})
	}
	e, before := readUntil(t, ws, "error")
	assert.Equal(t, "rate_limited", e["error"])

	send(t, ws, map[string]any{"type": "ping"})
	_, after := readUntil(t, ws, "pong")

	delivered := 0
	for _, m := range append(before, after...) {
		if m["type"] == "receive-message" {
			delivered++
		}
	}
	assert.Equal(t, 2, delivered)
}

func TestJoinRequiresAuthorization(t *testing.T) {
	srv := newServer(t, denyRooms{"vault": true})
	ws := dial(t, srv, nil)
	login(t, ws, "A", "")

	send(t, ws, map[string]any{"type": "join-room", "roomId": "vault", "userId": "A"})
	e, _ := readUntil(t, ws, "error")
	assert.Equal(t, "forbidden", e["error"])

	send(t, ws, map[string]any{"type": "join-room", "roomId": "lobby", "userId": "A"})
	roster, _ := readUntil(t, ws, "roster-changed")
	assert.Equal(t, "lobby", roster["roomId"])
}
