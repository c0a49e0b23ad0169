// internal/room/room_test.go
package room

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn collects events instead of writing them to a socket.
type mockConn struct {
	mu     sync.Mutex
	events []Event
}

func (c *mockConn) Send(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *mockConn) all(eventType string) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, ev := range c.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (c *mockConn) last(eventType string) *Event {
	evs := c.all(eventType)
	if len(evs) == 0 {
		return nil
	}
	return &evs[len(evs)-1]
}

func (c *mockConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func newTestManager() *Manager {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewManager(logger, game.DefaultRules())
	m.Seed = 7
	return m
}

type testSeat struct {
	key  string
	conn *mockConn
}

func (s testSeat) playerID(t *testing.T) string {
	t.Helper()
	ev := s.conn.last(EventSeatAssigned)
	require.NotNil(t, ev)
	return ev.Payload.(SeatAssignedPayload).PlayerID
}

func joinN(t *testing.T, m *Manager, room string, n int) []testSeat {
	t.Helper()
	seats := make([]testSeat, n)
	for i := range seats {
		seats[i] = testSeat{key: uuid.NewString(), conn: &mockConn{}}
		_, res, err := m.Join(context.Background(), room, seats[i].key, fmt.Sprintf("player-%d", i), seats[i].conn)
		require.NoError(t, err)
		require.Equal(t, JoinAccepted, res)
	}
	return seats
}

func TestJoinAssignsHostAndRoster(t *testing.T) {
	m := newTestManager()
	seats := joinN(t, m, "Table-1", 2)

	assert.NotNil(t, seats[0].conn.last(EventSetHost))
	assert.Nil(t, seats[1].conn.last(EventSetHost))

	roster := seats[0].conn.last(EventPlayerCountUpdate).Payload.(PlayerCountPayload)
	assert.Equal(t, 2, roster.Count)
	assert.True(t, roster.Players[0].IsHost)
	assert.Equal(t, "player-1", roster.Players[1].Name)

	r, ok := m.Get("table-1")
	require.True(t, ok, "room names are case-insensitive")
	assert.Equal(t, "table-1", r.ID)
}

func TestJoinCapsAtFive(t *testing.T) {
	m := newTestManager()
	joinN(t, m, "full", 5)

	conn := &mockConn{}
	_, res, err := m.Join(context.Background(), "full", uuid.NewString(), "late", conn)
	assert.Equal(t, JoinFull, res)
	assert.ErrorIs(t, err, game.ErrRoomFull)
	assert.NotNil(t, conn.last(EventRoomFull))
}

func TestJoinRequiresIdentity(t *testing.T) {
	m := newTestManager()
	_, _, err := m.Join(context.Background(), "x", "", "anon", &mockConn{})
	assert.ErrorIs(t, err, game.ErrInvalidCommand)

	_, _, err = m.Join(context.Background(), "   ", uuid.NewString(), "anon", &mockConn{})
	assert.ErrorIs(t, err, game.ErrInvalidCommand)
}

func TestStartGameHostOnly(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "start", 1)

	assert.ErrorIs(t, m.StartGame(ctx, "start", seats[0].key), game.ErrTooFewPlayers)

	seats = append(seats, joinN(t, m, "start", 1)...)
	assert.ErrorIs(t, m.StartGame(ctx, "start", seats[1].key), game.ErrNotHost)
	require.NoError(t, m.StartGame(ctx, "start", seats[0].key))

	hostStart := seats[0].conn.last(EventGameStarted).Payload.(GameStartedPayload)
	assert.Len(t, hostStart.Hand, 7)
	assert.Len(t, hostStart.Players, 2)
	assert.Equal(t, 106-12, hostStart.DeckCount)

	otherStart := seats[1].conn.last(EventGameStarted).Payload.(GameStartedPayload)
	assert.Len(t, otherStart.Hand, 5)
	assert.NotNil(t, seats[1].conn.last(EventGameState))

	err := m.StartGame(ctx, "start", seats[0].key)
	assert.ErrorIs(t, err, game.ErrInvalidCommand)
}

func TestNoJoinAfterStart(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "closed", 2)
	require.NoError(t, m.StartGame(ctx, "closed", seats[0].key))

	conn := &mockConn{}
	_, res, err := m.Join(ctx, "closed", uuid.NewString(), "late", conn)
	assert.Equal(t, JoinFull, res)
	assert.ErrorIs(t, err, game.ErrRoomFull)
}

func TestRejoinKeepsSeat(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "rejoin", 5)
	require.NoError(t, m.StartGame(ctx, "rejoin", seats[0].key))

	before := seats[2].conn.last(EventGameState).Payload.(GameStatePayload)
	require.NoError(t, m.Disconnect(ctx, "rejoin", seats[2].key, seats[2].conn))

	roster := seats[0].conn.last(EventPlayerCountUpdate).Payload.(PlayerCountPayload)
	assert.False(t, roster.Players[2].Connected)

	conn := &mockConn{}
	_, res, err := m.Join(ctx, "rejoin", seats[2].key, "ignored", conn)
	require.NoError(t, err)
	assert.Equal(t, JoinRejoined, res)

	confirmed := conn.last(EventReconnectionConfirmed)
	require.NotNil(t, confirmed)
	assert.Equal(t, seats[2].key, confirmed.Payload.(ReconnectionPayload).PersistentID)

	after := conn.last(EventGameState).Payload.(GameStatePayload)
	assert.Equal(t, before.PlayerID, after.PlayerID)
	assert.Equal(t, before.Hand, after.Hand)
	assert.Len(t, after.GameState.Players, 5, "no sixth player was created")

	// the stale connection going away must not detach the new one
	require.NoError(t, m.Disconnect(ctx, "rejoin", seats[2].key, seats[2].conn))
	roster = seats[0].conn.last(EventPlayerCountUpdate).Payload.(PlayerCountPayload)
	assert.True(t, roster.Players[2].Connected)
}

func TestBroadcastRedactsHands(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "redact", 3)
	require.NoError(t, m.StartGame(ctx, "redact", seats[0].key))

	_, err := m.Submit(ctx, "redact", seats[0].key, game.Command{Type: game.CmdEndTurn})
	require.NoError(t, err)

	for _, s := range seats {
		state := s.conn.last(EventGameState).Payload.(GameStatePayload)
		require.NotNil(t, state.LastAction)
		assert.Equal(t, game.CmdEndTurn, state.LastAction.Type)
		for _, pv := range state.GameState.Players {
			if pv.ID == state.PlayerID {
				assert.Equal(t, state.Hand, pv.Hand)
				continue
			}
			assert.Empty(t, pv.Hand, "viewer %s sees hand of %s", state.PlayerID, pv.ID)
			assert.Positive(t, pv.HandCount)
		}
	}
}

func TestRejectionsStayWithSender(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "reject", 2)
	require.NoError(t, m.StartGame(ctx, "reject", seats[0].key))

	hostEvents := seats[0].conn.count()
	_, err := m.Submit(ctx, "reject", seats[1].key, game.Command{Type: game.CmdEndTurn})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
	assert.Equal(t, hostEvents, seats[0].conn.count())

	ev := Rejected(err)
	assert.Equal(t, EventActionRejected, ev.Type)
	assert.Equal(t, game.CodeNotYourTurn, ev.Payload.(RejectedPayload).Code)
}

func TestSubmitBeforeStart(t *testing.T) {
	m := newTestManager()
	seats := joinN(t, m, "early", 2)
	_, err := m.Submit(context.Background(), "early", seats[0].key, game.Command{Type: game.CmdEndTurn})
	assert.ErrorIs(t, err, game.ErrInvalidCommand)

	_, err = m.Submit(context.Background(), "missing", seats[0].key, game.Command{Type: game.CmdEndTurn})
	assert.ErrorIs(t, err, ErrNoSuchRoom)
}

func TestCommandPlayerIDComesFromSeat(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "spoof", 2)
	require.NoError(t, m.StartGame(ctx, "spoof", seats[0].key))

	// the non-current player claims to be the host
	_, err := m.Submit(ctx, "spoof", seats[1].key, game.Command{Type: game.CmdEndTurn, PlayerID: seats[0].playerID(t)})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)
}

func TestLeaveDuringGameForfeits(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "forfeit", 2)
	require.NoError(t, m.StartGame(ctx, "forfeit", seats[0].key))

	require.NoError(t, m.Leave(ctx, "forfeit", seats[1].key))
	over := seats[0].conn.last(EventGameOver)
	require.NotNil(t, over)
	assert.Equal(t, seats[0].playerID(t), over.Payload.(GameOverPayload).WinnerID)

	_, err := m.Submit(ctx, "forfeit", seats[0].key, game.Command{Type: game.CmdEndTurn})
	assert.ErrorIs(t, err, game.ErrGameAlreadyEnded)
}

func TestHostPassesOnLeave(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "host", 3)

	require.NoError(t, m.Leave(ctx, "host", seats[0].key))
	assert.NotNil(t, seats[1].conn.last(EventSetHost))
	assert.Nil(t, seats[2].conn.last(EventSetHost))
	assert.NoError(t, m.StartGame(ctx, "host", seats[1].key))
}

func TestSyncResendsState(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "sync", 2)
	require.NoError(t, m.StartGame(ctx, "sync", seats[0].key))

	n := len(seats[1].conn.all(EventGameState))
	require.NoError(t, m.Sync(ctx, "sync", seats[1].key))
	assert.Len(t, seats[1].conn.all(EventGameState), n+1)
}

func TestRoomClosesWhenAbandoned(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "empty", 2)
	r, ok := m.Get("empty")
	require.True(t, ok)

	require.NoError(t, m.Disconnect(ctx, "empty", seats[0].key, seats[0].conn))
	assert.Equal(t, 1, m.Count())
	require.NoError(t, m.Leave(ctx, "empty", seats[1].key))

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("room did not shut down")
	}
	assert.Equal(t, 0, m.Count())

	_, err := r.Info(ctx)
	assert.ErrorIs(t, err, ErrRoomClosed)

	// the name can be reused straight away
	fresh := joinN(t, m, "empty", 1)
	assert.NotNil(t, fresh[0].conn.last(EventSetHost))
}

func TestGameSurvivesEveryoneDisconnecting(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "blip", 2)
	require.NoError(t, m.StartGame(ctx, "blip", seats[0].key))
	before := seats[0].conn.last(EventGameState).Payload.(GameStatePayload)

	for _, s := range seats {
		require.NoError(t, m.Disconnect(ctx, "blip", s.key, s.conn))
	}
	r, ok := m.Get("blip")
	require.True(t, ok, "a game in progress is held for its players")
	info, err := r.Info(ctx)
	require.NoError(t, err)
	assert.True(t, info.Started)
	assert.Equal(t, 0, info.Connected)

	conn := &mockConn{}
	_, res, err := m.Join(ctx, "blip", seats[0].key, "", conn)
	require.NoError(t, err)
	assert.Equal(t, JoinRejoined, res)
	after := conn.last(EventGameState)
	require.NotNil(t, after)
	state := after.Payload.(GameStatePayload)
	assert.Equal(t, before.PlayerID, state.PlayerID)
	assert.Equal(t, before.GameState.GameID, state.GameState.GameID)
}

func TestIdleGameClosesAfterGrace(t *testing.T) {
	m := newTestManager()
	m.IdleTimeout = 20 * time.Millisecond
	ctx := context.Background()
	seats := joinN(t, m, "idle", 2)
	require.NoError(t, m.StartGame(ctx, "idle", seats[0].key))
	r, _ := m.Get("idle")

	for _, s := range seats {
		require.NoError(t, m.Disconnect(ctx, "idle", s.key, s.conn))
	}
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("idle room was never closed")
	}
	assert.Equal(t, 0, m.Count())
}

func TestRejoinCancelsIdleClose(t *testing.T) {
	m := newTestManager()
	m.IdleTimeout = 30 * time.Millisecond
	ctx := context.Background()
	seats := joinN(t, m, "back", 2)
	require.NoError(t, m.StartGame(ctx, "back", seats[0].key))
	r, _ := m.Get("back")

	for _, s := range seats {
		require.NoError(t, m.Disconnect(ctx, "back", s.key, s.conn))
	}
	_, res, err := m.Join(ctx, "back", seats[1].key, "", &mockConn{})
	require.NoError(t, err)
	assert.Equal(t, JoinRejoined, res)

	select {
	case <-r.Done():
		t.Fatal("room closed although a player came back")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, 1, m.Count())
}

func TestRejoinSupersedesLiveConnection(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	seats := joinN(t, m, "tabs", 2)

	fresh := &mockConn{}
	_, res, err := m.Join(ctx, "tabs", seats[1].key, "", fresh)
	require.NoError(t, err)
	assert.Equal(t, JoinRejoined, res)
	assert.NotNil(t, seats[1].conn.last(EventSessionReplaced))
	assert.Nil(t, fresh.last(EventSessionReplaced))

	// only the new connection hears about the room from now on
	n := seats[1].conn.count()
	require.NoError(t, m.StartGame(ctx, "tabs", seats[0].key))
	assert.Equal(t, n, seats[1].conn.count())
	assert.NotNil(t, fresh.last(EventGameState))
}

// moveToHand relocates a card, wherever it is, into a player's hand.
func moveToHand(g *game.Game, playerID, cardID string) bool {
	piles := []*[]models.Card{&g.Deck, &g.DiscardPile}
	for _, p := range g.Players {
		piles = append(piles, &p.Hand, &p.Bank, &p.Properties)
	}
	for _, pile := range piles {
		for i, c := range *pile {
			if c.InstanceID == cardID {
				*pile = append((*pile)[:i:i], (*pile)[i+1:]...)
				dst := g.Player(playerID)
				dst.Hand = append(dst.Hand, c)
				return true
			}
		}
	}
	return false
}

func TestResponseTimeoutAcceptsForSilentTarget(t *testing.T) {
	m := newTestManager()
	m.ResponseTimeout = 20 * time.Millisecond
	ctx := context.Background()
	seats := joinN(t, m, "slow", 2)
	require.NoError(t, m.StartGame(ctx, "slow", seats[0].key))
	r, _ := m.Get("slow")

	var current, target string
	require.NoError(t, r.do(ctx, func() error {
		current = r.game.CurrentPlayer().ID
		for _, p := range r.game.Players {
			if p.ID != current {
				target = p.ID
			}
		}
		if !moveToHand(r.game, current, "204-0") {
			return fmt.Errorf("debt collector not found")
		}
		return nil
	}))
	key := seats[0].key
	if seats[1].playerID(t) == current {
		key = seats[1].key
	}

	res, err := m.Submit(ctx, "slow", key, game.Command{Type: game.CmdPlayCard, CardID: "204-0", TargetID: target})
	require.NoError(t, err)
	require.True(t, res.Pending)

	require.Eventually(t, func() bool {
		var pending bool
		_ = r.do(ctx, func() error {
			pending = r.game.Pending != nil
			return nil
		})
		return !pending
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, r.do(ctx, func() error {
		var accepted bool
		for _, e := range r.game.History {
			if e.Type == game.ActionAccept && e.PlayerID == target {
				accepted = true
			}
		}
		assert.True(t, accepted, "the silent target accepted by timeout")
		return r.game.CheckInvariants()
	}))
}

func TestRoomsDealDifferentDecks(t *testing.T) {
	deckOf := func(m *Manager, name string) []string {
		seats := joinN(t, m, name, 2)
		require.NoError(t, m.StartGame(context.Background(), name, seats[0].key))
		r, _ := m.Get(name)
		var ids []string
		require.NoError(t, r.do(context.Background(), func() error {
			for _, c := range r.game.Deck {
				ids = append(ids, c.InstanceID)
			}
			return nil
		}))
		return ids
	}

	m := newTestManager()
	north, south := deckOf(m, "north"), deckOf(m, "south")
	assert.NotEqual(t, north, south)
	assert.Equal(t, north, deckOf(newTestManager(), "north"), "same seed and name replay the same deck")
}

func TestOnActionReceivesHistory(t *testing.T) {
	m := newTestManager()
	var mu sync.Mutex
	var entries []game.HistoryEntry
	m.OnAction = func(roomID string, gameID uuid.UUID, entry game.HistoryEntry) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, "history", roomID)
		entries = append(entries, entry)
	}
	ctx := context.Background()
	seats := joinN(t, m, "history", 2)
	require.NoError(t, m.StartGame(ctx, "history", seats[0].key))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, entries)
	assert.Equal(t, game.ActionGameStart, entries[0].Type)
}

func TestListRooms(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	joinN(t, m, "b-room", 2)
	seats := joinN(t, m, "a-room", 2)
	require.NoError(t, m.StartGame(ctx, "a-room", seats[0].key))

	infos := m.List(ctx)
	require.Len(t, infos, 2)
	assert.Equal(t, "a-room", infos[0].Name)
	assert.True(t, infos[0].Started)
	assert.Equal(t, game.PhasePlaying, infos[0].Phase)
	assert.Equal(t, "b-room", infos[1].Name)
	assert.False(t, infos[1].Started)
	assert.Equal(t, 2, infos[1].Connected)
}

func TestRoomsRunIndependently(t *testing.T) {
	m := newTestManager()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("parallel-%d", i)
			a, b := uuid.NewString(), uuid.NewString()
			_, _, err := m.Join(ctx, name, a, "a", &mockConn{})
			assert.NoError(t, err)
			_, _, err = m.Join(ctx, name, b, "b", &mockConn{})
			assert.NoError(t, err)
			assert.NoError(t, m.StartGame(ctx, name, a))
			_, err = m.Submit(ctx, name, a, game.Command{Type: game.CmdEndTurn})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, m.Count())
}
