package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/dealroom/internal/auth"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/middleware"
	"github.com/jason-s-yu/dealroom/internal/room"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T, opts WSOptions) (*httptest.Server, *room.Manager) {
	t.Helper()
	require.NoError(t, auth.Init())
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mgr := room.NewManager(logger, game.DefaultRules())
	mgr.Seed = 11
	mux := NewRouter(mgr, middleware.LogMiddleware(logger), RoomWSHandler(logger, mgr, opts))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func dial(t *testing.T, srv *httptest.Server, roomName string, protocols ...string) *websocket.Conn {
	t.Helper()
	if protocols == nil {
		protocols = []string{Subprotocol}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/room/ws/" + roomName
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{Subprotocols: protocols})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func send(t *testing.T, c *websocket.Conn, typ string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, data))
}

// readUntil skips events until one of the wanted type arrives.
func readUntil(t *testing.T, c *websocket.Conn, typ string) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, data, err := c.Read(ctx)
		require.NoError(t, err, "waiting for %s", typ)
		var env envelope
		require.NoError(t, json.Unmarshal(data, &env))
		if env.Type == typ {
			return env
		}
	}
}

func joinRoom(t *testing.T, c *websocket.Conn, name, persistentID string) string {
	t.Helper()
	payload := map[string]string{"name": name}
	if persistentID != "" {
		payload["persistentId"] = persistentID
	}
	send(t, c, "join_room", payload)
	env := readUntil(t, c, room.EventSeatAssigned)
	var seat room.SeatAssignedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &seat))
	return seat.PlayerID
}

func rejection(t *testing.T, env envelope) room.RejectedPayload {
	t.Helper()
	var p room.RejectedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func TestPingHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	PingHandler(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestRoomFlowOverWebSocket(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	alice := dial(t, srv, "table")
	bob := dial(t, srv, "table")

	aliceID := joinRoom(t, alice, "alice", "")
	readUntil(t, alice, room.EventSetHost)
	bobID := joinRoom(t, bob, "bob", "")
	require.NotEqual(t, aliceID, bobID)

	send(t, alice, "start_game", nil)
	readUntil(t, alice, room.EventGameStarted)
	readUntil(t, bob, room.EventGameStarted)

	env := readUntil(t, bob, room.EventGameState)
	var state room.GameStatePayload
	require.NoError(t, json.Unmarshal(env.Payload, &state))
	assert.Equal(t, bobID, state.PlayerID)
	assert.Len(t, state.Hand, 5)
	assert.Equal(t, aliceID, state.GameState.CurrentPlayerID)
	for _, p := range state.GameState.Players {
		if p.ID == aliceID {
			assert.Nil(t, p.Hand, "opponent hand must be redacted")
			assert.Equal(t, 7, p.HandCount)
		}
	}

	// out of turn, answered only to bob
	send(t, bob, "end_turn", nil)
	rej := rejection(t, readUntil(t, bob, room.EventActionRejected))
	assert.Equal(t, game.CodeNotYourTurn, rej.Code)

	send(t, alice, "end_turn", nil)
	env = readUntil(t, bob, room.EventGameState)
	require.NoError(t, json.Unmarshal(env.Payload, &state))
	assert.Equal(t, bobID, state.GameState.CurrentPlayerID)
}

func TestCommandBeforeJoinIsRejected(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	c := dial(t, srv, "lobby")

	send(t, c, "end_turn", nil)
	rej := rejection(t, readUntil(t, c, room.EventActionRejected))
	assert.Equal(t, game.CodeInvalidCommand, rej.Code)
}

func TestUnknownTypeAndBadJSON(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	c := dial(t, srv, "lobby")
	joinRoom(t, c, "solo", "")

	send(t, c, "teleport", nil)
	rej := rejection(t, readUntil(t, c, room.EventActionRejected))
	assert.Contains(t, rej.Message, "unknown message type")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{oops")))
	rej = rejection(t, readUntil(t, c, room.EventActionRejected))
	assert.Equal(t, game.CodeInvalidCommand, rej.Code)
}

func TestPingPong(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	c := dial(t, srv, "lobby")
	send(t, c, "ping", nil)
	readUntil(t, c, room.EventPong)
}

func TestRejoinWithPersistentID(t *testing.T) {
	srv, mgr := newTestServer(t, WSOptions{})
	keeper := dial(t, srv, "table")
	joinRoom(t, keeper, "keeper", "keeper-id")

	first := dial(t, srv, "table")
	playerID := joinRoom(t, first, "alice", "alice-id")
	first.Close(websocket.StatusNormalClosure, "bye")

	second := dial(t, srv, "table")
	send(t, second, "join_room", map[string]string{"name": "alice", "persistentId": "alice-id"})
	env := readUntil(t, second, room.EventReconnectionConfirmed)
	var p room.ReconnectionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	assert.Equal(t, "alice-id", p.PersistentID)
	assert.Equal(t, playerID, p.PlayerID)

	r, ok := mgr.Get("table")
	require.True(t, ok)
	info, err := r.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, info.Players)
}

func TestRejoinClosesOlderSocket(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	stale := dial(t, srv, "tabs")
	joinRoom(t, stale, "alice", "alice-id")

	fresh := dial(t, srv, "tabs")
	send(t, fresh, "join_room", map[string]string{"persistentId": "alice-id"})
	readUntil(t, fresh, room.EventReconnectionConfirmed)

	readUntil(t, stale, room.EventSessionReplaced)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := stale.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(SessionReplacedError), websocket.CloseStatus(err))

	// the seat keeps working on the newer socket
	send(t, fresh, "request_game_state", nil)
	readUntil(t, fresh, room.EventPlayerCountUpdate)
}

func TestRejectsMissingSubprotocol(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	c := dial(t, srv, "lobby", "other")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusCode(BadSubprotocolError), websocket.CloseStatus(err))
}

func TestRateLimitRejectsFlood(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{RateLimit: 1, RateBurst: 1})
	c := dial(t, srv, "lobby")
	for i := 0; i < 3; i++ {
		send(t, c, "ping", nil)
	}
	rej := rejection(t, readUntil(t, c, room.EventActionRejected))
	assert.Contains(t, rej.Message, "rate limit")
}

func TestLeaveRoomClosesSocket(t *testing.T) {
	srv, mgr := newTestServer(t, WSOptions{})
	c := dial(t, srv, "lobby")
	joinRoom(t, c, "solo", "")

	send(t, c, "leave_room", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		_, _, err := c.Read(ctx)
		if err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
	}
	require.Eventually(t, func() bool { return mgr.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestListRooms(t *testing.T) {
	srv, _ := newTestServer(t, WSOptions{})
	c := dial(t, srv, "Blue-Table")
	joinRoom(t, c, "solo", "")

	resp, err := http.Get(srv.URL + "/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rooms []roomSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rooms))
	require.Len(t, rooms, 1)
	assert.Equal(t, "blue-table", rooms[0].Name)
	assert.Equal(t, 1, rooms[0].Players)
	assert.False(t, rooms[0].Started)
}
