// internal/room/room.go
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/deck"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrRoomClosed is returned for requests that reach a room after it shut down.
var ErrRoomClosed = errors.New("room closed")

const maxNameLength = 32

// JoinResult says how a join was handled.
type JoinResult string

const (
	JoinAccepted JoinResult = "accepted"
	JoinRejoined JoinResult = "rejoined"
	JoinFull     JoinResult = "full"
)

// seat binds a persistent identity to a player. The connection is nil while the
// client is away.
type seat struct {
	key      string
	playerID string
	name     string
	conn     Connection
}

// Info is the public summary used by room listings.
type Info struct {
	Name      string     `json:"name"`
	Players   int        `json:"players"`
	Connected int        `json:"connected"`
	Started   bool       `json:"started"`
	Phase     game.Phase `json:"phase,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type request struct {
	fn    func() error
	reply chan error
}

// Room owns one game and its roster. All state below inbox is touched only by the
// run goroutine; every exported method is a request to that goroutine.
type Room struct {
	ID        string
	CreatedAt time.Time

	logger   *logrus.Entry
	rules    game.Rules
	catalog  []models.CardTemplate
	rng      *rand.Rand
	onAction func(roomID string, gameID uuid.UUID, entry game.HistoryEntry)
	onClose  func(r *Room)

	responseTimeout time.Duration
	idleTimeout     time.Duration
	responseSeq     int // bumped whenever the pending action changes
	idleSeq         int // bumped whenever an idle close is scheduled

	hostKey string
	seats   map[string]*seat
	order   []string // seat keys in join order; also the turn order of the next game
	game    *game.Game
	closed  bool

	inbox chan request
	done  chan struct{}
}

func newRoom(id string, m *Manager) *Room {
	r := &Room{
		ID:        id,
		CreatedAt: time.Now(),
		logger:    m.logger.WithField("room", id),
		rules:     m.Rules,
		catalog:   m.Catalog,
		rng:       m.newRNG(id),
		onAction:  m.OnAction,
		onClose:   m.remove,

		responseTimeout: m.ResponseTimeout,
		idleTimeout:     m.IdleTimeout,
		seats:     make(map[string]*seat),
		inbox:     make(chan request),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Room) run() {
	defer close(r.done)
	for {
		req := <-r.inbox
		req.reply <- req.fn()
		if r.closed {
			r.logger.Info("room closed")
			if r.onClose != nil {
				r.onClose(r)
			}
			return
		}
	}
}

// do runs fn on the room goroutine and waits for it to finish.
func (r *Room) do(ctx context.Context, fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case r.inbox <- req:
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// after runs fn on the room goroutine once d has passed, unless the room has
// shut down by then.
func (r *Room) after(d time.Duration, fn func() error) {
	time.AfterFunc(d, func() {
		if err := r.do(context.Background(), fn); err != nil && !errors.Is(err, ErrRoomClosed) {
			r.logger.WithError(err).Warn("scheduled room task failed")
		}
	})
}

// Done is closed once the room has shut down.
func (r *Room) Done() <-chan struct{} {
	return r.done
}

// Join seats a new player or, for a known persistent identity, reattaches conn
// to the existing seat and resynchronizes it.
func (r *Room) Join(ctx context.Context, key, name string, conn Connection) (JoinResult, error) {
	var result JoinResult
	err := r.do(ctx, func() error {
		var err error
		result, err = r.join(key, name, conn)
		return err
	})
	return result, err
}

// Leave gives up a seat for good.
func (r *Room) Leave(ctx context.Context, key string) error {
	return r.do(ctx, func() error { return r.leave(key) })
}

// Disconnect detaches conn from its seat but keeps the seat for a later rejoin. A
// stale conn that has already been replaced is ignored.
func (r *Room) Disconnect(ctx context.Context, key string, conn Connection) error {
	return r.do(ctx, func() error {
		s, ok := r.seats[key]
		if !ok || s.conn != conn {
			return nil
		}
		s.conn = nil
		r.logger.WithField("player", s.playerID).Info("player disconnected")
		r.broadcastRoster()
		r.closeIfAbandoned()
		return nil
	})
}

// StartGame deals a new game. Only the host may start it.
func (r *Room) StartGame(ctx context.Context, key string) error {
	return r.do(ctx, func() error { return r.start(key) })
}

// Submit applies one command on behalf of the seat identified by key.
func (r *Room) Submit(ctx context.Context, key string, cmd game.Command) (*game.Result, error) {
	var res *game.Result
	err := r.do(ctx, func() error {
		var err error
		res, err = r.submit(key, cmd)
		return err
	})
	return res, err
}

// Sync resends the full state to one seat.
func (r *Room) Sync(ctx context.Context, key string) error {
	return r.do(ctx, func() error {
		s, ok := r.seats[key]
		if !ok {
			return game.ErrTargetNotFound
		}
		r.sendRoster(s)
		if r.game != nil {
			r.sendState(s, nil)
		}
		return nil
	})
}

// Info summarizes the room.
func (r *Room) Info(ctx context.Context) (Info, error) {
	var info Info
	err := r.do(ctx, func() error {
		info = Info{
			Name:      r.ID,
			Players:   len(r.seats),
			Connected: r.connectedCount(),
			Started:   r.started(),
			CreatedAt: r.CreatedAt,
		}
		if r.game != nil {
			info.Phase = r.game.Phase
		}
		return nil
	})
	return info, err
}

func (r *Room) started() bool {
	return r.game != nil && r.game.Phase == game.PhasePlaying
}

func (r *Room) join(key, name string, conn Connection) (JoinResult, error) {
	if key == "" {
		return "", &game.ActionError{Code: game.CodeInvalidCommand, Message: "persistentId is required"}
	}

	if s, ok := r.seats[key]; ok {
		if s.conn != nil && s.conn != conn {
			s.conn.Send(Event{Type: EventSessionReplaced})
		}
		s.conn = conn
		r.logger.WithField("player", s.playerID).Info("player rejoined")
		conn.Send(Event{Type: EventReconnectionConfirmed, Payload: ReconnectionPayload{PersistentID: key, PlayerID: s.playerID}})
		if key == r.hostKey {
			conn.Send(Event{Type: EventSetHost})
		}
		r.broadcastRoster()
		if r.game != nil {
			r.sendState(s, nil)
		}
		return JoinRejoined, nil
	}

	if r.started() || len(r.seats) >= r.rules.MaxPlayers {
		conn.Send(Event{Type: EventRoomFull})
		return JoinFull, game.ErrRoomFull
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Player %d", len(r.order)+1)
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}

	s := &seat{key: key, playerID: uuid.NewString(), name: name, conn: conn}
	r.seats[key] = s
	r.order = append(r.order, key)
	r.logger.WithFields(logrus.Fields{"player": s.playerID, "name": name}).Info("player joined")

	conn.Send(Event{Type: EventSeatAssigned, Payload: SeatAssignedPayload{RoomID: r.ID, PlayerID: s.playerID}})
	if r.hostKey == "" {
		r.hostKey = key
		conn.Send(Event{Type: EventSetHost})
	}
	r.broadcastRoster()
	return JoinAccepted, nil
}

func (r *Room) leave(key string) error {
	s, ok := r.seats[key]
	if !ok {
		return game.ErrTargetNotFound
	}

	if r.started() {
		res, err := r.game.RemovePlayer(s.playerID)
		if err != nil {
			return err
		}
		if err := r.afterTransition(res); err != nil {
			return err
		}
	}

	delete(r.seats, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.WithField("player", s.playerID).Info("player left")

	if key == r.hostKey {
		r.hostKey = ""
		if len(r.order) > 0 {
			r.hostKey = r.order[0]
			if next := r.seats[r.hostKey]; next.conn != nil {
				next.conn.Send(Event{Type: EventSetHost})
			}
		}
	}
	r.broadcastRoster()
	r.closeIfAbandoned()
	return nil
}

func (r *Room) start(key string) error {
	if _, ok := r.seats[key]; !ok {
		return game.ErrTargetNotFound
	}
	if key != r.hostKey {
		return game.ErrNotHost
	}
	if r.started() {
		return &game.ActionError{Code: game.CodeInvalidCommand, Message: "game already started"}
	}
	if len(r.seats) < r.rules.MinPlayers {
		return &game.ActionError{
			Code:    game.CodeTooFewPlayers,
			Message: fmt.Sprintf("need at least %d players, have %d", r.rules.MinPlayers, len(r.seats)),
		}
	}

	cards, err := deck.New(r.catalog, game.KnownEffects(), r.rng)
	if err != nil {
		return fmt.Errorf("building deck: %w", err)
	}
	g := game.NewGame(cards, r.rules, r.rng)
	if r.onAction != nil {
		roomID, gameID, publish := r.ID, g.ID, r.onAction
		g.OnAction = func(entry game.HistoryEntry) { publish(roomID, gameID, entry) }
	}
	for _, k := range r.order {
		s := r.seats[k]
		if _, err := g.AddPlayer(s.playerID, s.name); err != nil {
			return err
		}
	}
	if err := g.Start(); err != nil {
		return err
	}
	r.game = g
	r.logger.WithFields(logrus.Fields{"game": g.ID, "players": len(g.Players)}).Info("game started")

	if err := g.CheckInvariants(); err != nil {
		r.abort(err)
		return nil
	}
	for _, k := range r.order {
		s := r.seats[k]
		if s.conn == nil {
			continue
		}
		s.conn.Send(Event{Type: EventGameStarted, Payload: r.startedPayload(s)})
		r.sendState(s, nil)
	}
	return nil
}

func (r *Room) submit(key string, cmd game.Command) (*game.Result, error) {
	s, ok := r.seats[key]
	if !ok {
		return nil, game.ErrTargetNotFound
	}
	if r.game == nil {
		return nil, &game.ActionError{Code: game.CodeInvalidCommand, Message: "game has not started"}
	}
	cmd.PlayerID = s.playerID

	log := r.logger.WithFields(logrus.Fields{"player": s.playerID, "cmd": cmd.Type})
	res, err := r.game.Apply(cmd)
	if err != nil {
		log.WithError(err).Debug("command rejected")
		return nil, err
	}
	log.Debug("command applied")
	if err := r.afterTransition(res); err != nil {
		return nil, err
	}
	return res, nil
}

// afterTransition verifies the committed state and fans it out. A broken
// invariant aborts the room.
func (r *Room) afterTransition(res *game.Result) error {
	if err := r.game.CheckInvariants(); err != nil {
		r.abort(err)
		return ErrRoomClosed
	}
	r.broadcastState(res)
	if r.game.Phase == game.PhaseEnded {
		r.logger.WithField("winner", r.game.WinnerID).Info("game over")
		r.broadcast(Event{Type: EventGameOver, Payload: GameOverPayload{WinnerID: r.game.WinnerID}})
	}
	r.armResponseTimer()
	return nil
}

// armResponseTimer accepts the pending action on behalf of the awaited player
// if they have not answered within responseTimeout. Every player gets the same
// window, so the timeout says nothing about what they hold.
func (r *Room) armResponseTimer() {
	r.responseSeq++
	if r.responseTimeout <= 0 || r.game == nil || r.game.Phase != game.PhasePlaying || r.game.Pending == nil {
		return
	}
	seq, awaiting := r.responseSeq, r.game.Pending.AwaitingID
	r.after(r.responseTimeout, func() error {
		if seq != r.responseSeq || r.game == nil || r.game.Pending == nil || r.game.Pending.AwaitingID != awaiting {
			return nil
		}
		r.logger.WithField("player", awaiting).Info("response timed out, accepting")
		res, err := r.game.Apply(game.Command{Type: game.CmdRespond, PlayerID: awaiting})
		if err != nil {
			return err
		}
		return r.afterTransition(res)
	})
}

func (r *Room) abort(cause error) {
	r.logger.WithError(cause).Error("invariant violated, aborting room")
	r.broadcast(Event{Type: EventRoomAborted, Payload: AbortedPayload{Reason: "internal error"}})
	r.closed = true
}

func (r *Room) connectedCount() int {
	n := 0
	for _, s := range r.seats {
		if s.conn != nil {
			n++
		}
	}
	return n
}

// closeIfAbandoned shuts the room once nobody is connected. A game in progress
// is held for idleTimeout so its players can rejoin; zero holds it until they do.
func (r *Room) closeIfAbandoned() {
	if r.connectedCount() > 0 {
		return
	}
	if len(r.seats) == 0 || !r.started() {
		r.closed = true
		return
	}
	r.idleSeq++
	if r.idleTimeout <= 0 {
		return
	}
	seq := r.idleSeq
	r.logger.WithField("grace", r.idleTimeout).Info("all players away, holding game")
	r.after(r.idleTimeout, func() error {
		if seq == r.idleSeq && r.connectedCount() == 0 {
			r.logger.Info("nobody came back, closing room")
			r.closed = true
		}
		return nil
	})
}

func (r *Room) broadcast(ev Event) {
	for _, k := range r.order {
		if s := r.seats[k]; s.conn != nil {
			s.conn.Send(ev)
		}
	}
}

func (r *Room) roster() PlayerCountPayload {
	payload := PlayerCountPayload{Count: len(r.order), Players: make([]SeatInfo, 0, len(r.order))}
	for _, k := range r.order {
		s := r.seats[k]
		payload.Players = append(payload.Players, SeatInfo{
			ID:        s.playerID,
			Name:      s.name,
			Connected: s.conn != nil,
			IsHost:    k == r.hostKey,
		})
	}
	return payload
}

func (r *Room) sendRoster(s *seat) {
	if s.conn != nil {
		s.conn.Send(Event{Type: EventPlayerCountUpdate, Payload: r.roster()})
	}
}

func (r *Room) broadcastRoster() {
	r.broadcast(Event{Type: EventPlayerCountUpdate, Payload: r.roster()})
}

func (r *Room) sendState(s *seat, res *game.Result) {
	if s.conn == nil || r.game == nil {
		return
	}
	view := r.game.SnapshotFor(s.playerID)
	connected := make(map[string]bool, len(r.seats))
	for _, other := range r.seats {
		connected[other.playerID] = other.conn != nil
	}
	for i := range view.Players {
		view.Players[i].Connected = connected[view.Players[i].ID]
	}
	hand := r.game.HandOf(s.playerID)
	if hand == nil {
		hand = []models.Card{}
	}
	s.conn.Send(Event{Type: EventGameState, Payload: GameStatePayload{
		PlayerID:   s.playerID,
		Hand:       hand,
		GameState:  view,
		LastAction: res,
	}})
}

func (r *Room) broadcastState(res *game.Result) {
	for _, k := range r.order {
		r.sendState(r.seats[k], res)
	}
}

func (r *Room) startedPayload(s *seat) GameStartedPayload {
	view := r.game.SnapshotFor(s.playerID)
	payload := GameStartedPayload{
		Hand:        r.game.HandOf(s.playerID),
		Players:     make([]StartedPlayer, 0, len(view.Players)),
		DeckCount:   view.DeckCount,
		DiscardPile: view.DiscardPile,
	}
	for _, pv := range view.Players {
		payload.Players = append(payload.Players, StartedPlayer{
			ID:         pv.ID,
			Name:       pv.Name,
			HandCount:  pv.HandCount,
			Bank:       pv.Bank,
			Properties: pv.Properties,
		})
	}
	return payload
}
