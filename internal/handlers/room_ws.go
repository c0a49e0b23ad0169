// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/jason-s-yu/dealroom/internal/auth"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/middleware"
	"github.com/jason-s-yu/dealroom/internal/room"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Subprotocol is the websocket subprotocol clients must request.
const Subprotocol = "dealroom"

// Inbound message types handled outside the game engine.
const (
	msgJoinRoom         = "join_room"
	msgStartGame        = "start_game"
	msgRequestGameState = "request_game_state"
	msgLeaveRoom        = "leave_room"
	msgPing             = "ping"
)

var gameCommands = map[string]game.CommandType{
	string(game.CmdPlayCard):     game.CmdPlayCard,
	string(game.CmdDrawCard):     game.CmdDrawCard,
	string(game.CmdChargeRent):   game.CmdChargeRent,
	string(game.CmdFlipProperty): game.CmdFlipProperty,
	string(game.CmdRespond):      game.CmdRespond,
	string(game.CmdDiscardCard):  game.CmdDiscardCard,
	string(game.CmdEndTurn):      game.CmdEndTurn,
}

// WSOptions tunes the room websocket.
type WSOptions struct {
	OriginPatterns []string
	RateLimit      rate.Limit // inbound messages per second
	RateBurst      int
	OutboxSize     int
	PingInterval   time.Duration
	ReadLimit      int64
}

// DefaultWSOptions are used for zero fields.
func DefaultWSOptions() WSOptions {
	return WSOptions{
		OriginPatterns: []string{"*"},
		RateLimit:      10,
		RateBurst:      20,
		OutboxSize:     64,
		PingInterval:   30 * time.Second,
		ReadLimit:      16 << 10,
	}
}

func (o WSOptions) withDefaults() WSOptions {
	def := DefaultWSOptions()
	if len(o.OriginPatterns) == 0 {
		o.OriginPatterns = def.OriginPatterns
	}
	if o.RateLimit <= 0 {
		o.RateLimit = def.RateLimit
	}
	if o.RateBurst <= 0 {
		o.RateBurst = def.RateBurst
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = def.OutboxSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = def.PingInterval
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = def.ReadLimit
	}
	return o
}

// inbound is the client envelope.
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	Name         string `json:"name"`
	PersistentID string `json:"persistentId"`
}

// wsConn is the room's handle on one socket. Events queue in a bounded outbox
// drained by the write pump; a client that cannot keep up is disconnected and
// resynchronizes on rejoin.
type wsConn struct {
	out      chan room.Event
	cancel   context.CancelFunc
	logger   *logrus.Entry
	replaced atomic.Bool // the seat moved to a newer connection
}

func (c *wsConn) Send(ev room.Event) {
	if ev.Type == room.EventSessionReplaced {
		c.replaced.Store(true)
	}
	select {
	case c.out <- ev:
	default:
		c.logger.WithField("event", ev.Type).Warn("outbox full, dropping slow client")
		c.cancel()
	}
}

// RoomWSHandler serves /room/ws/{room}.
func RoomWSHandler(logger *logrus.Logger, mgr *room.Manager, opts WSOptions) http.HandlerFunc {
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		roomName := room.NormalizeName(r.PathValue("room"))
		if roomName == "" {
			http.Error(w, "invalid room name", http.StatusBadRequest)
			return
		}

		// the cookie has to be set before the upgrade response is written
		identity, err := auth.EnsureGuest(w, r)
		if err != nil {
			logger.WithError(err).Warn("failed to issue guest identity")
			identity = ""
		}

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{Subprotocol},
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			logger.Warnf("websocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "handler finished")

		if c.Subprotocol() != Subprotocol {
			c.Close(BadSubprotocolError, "client must speak the dealroom subprotocol")
			return
		}
		c.SetReadLimit(opts.ReadLimit)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		entry := logger.WithFields(logrus.Fields{"room": roomName, "remote": r.RemoteAddr})
		conn := &wsConn{out: make(chan room.Event, opts.OutboxSize), cancel: cancel, logger: entry}
		s := &session{
			mgr:      mgr,
			roomName: roomName,
			identity: identity,
			conn:     conn,
			logger:   entry,
			limiter:  rate.NewLimiter(opts.RateLimit, opts.RateBurst),
			cancel:   cancel,
		}

		middleware.LogWebSocketConnect(logger, r.RemoteAddr, r.URL.Path)
		go writePump(ctx, c, conn, opts.PingInterval)

		readErr := s.readPump(ctx, c)

		if s.key != "" {
			dctx, dcancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := mgr.Disconnect(dctx, roomName, s.key, conn); err != nil && !errors.Is(err, room.ErrNoSuchRoom) && !errors.Is(err, room.ErrRoomClosed) {
				entry.WithError(err).Warn("disconnect failed")
			}
			dcancel()
		}
		middleware.LogWebSocketDisconnect(logger, r.RemoteAddr, r.URL.Path, readErr)

		switch {
		case s.left:
			c.Close(websocket.StatusNormalClosure, "left room")
		case conn.replaced.Load():
			c.Close(SessionReplacedError, "seat taken over by another connection")
		}
	}
}

// session is the per-socket state of the read loop.
type session struct {
	mgr      *room.Manager
	roomName string
	identity string
	key      string // persistent identity once joined
	left     bool

	conn    *wsConn
	logger  *logrus.Entry
	limiter *rate.Limiter
	cancel  context.CancelFunc
}

func (s *session) readPump(ctx context.Context, c *websocket.Conn) error {
	for {
		typ, msg, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		if !s.limiter.Allow() {
			s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "rate limit exceeded"})
			continue
		}

		var in inbound
		if err := json.Unmarshal(msg, &in); err != nil {
			s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "invalid JSON"})
			continue
		}
		if done := s.handle(ctx, in); done {
			return nil
		}
	}
}

func (s *session) reject(err error) {
	s.conn.Send(room.Rejected(err))
}

// handle dispatches one message. It reports true when the socket should close.
func (s *session) handle(ctx context.Context, in inbound) bool {
	switch in.Type {
	case msgPing:
		s.conn.Send(room.Event{Type: room.EventPong})
		return false
	case msgJoinRoom:
		s.join(ctx, in.Payload)
		return false
	}

	if s.key == "" {
		s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "join_room first"})
		return false
	}
	// a stale tab must not act for a seat that has moved on
	if s.conn.replaced.Load() {
		return true
	}

	switch in.Type {
	case msgStartGame:
		if err := s.mgr.StartGame(ctx, s.roomName, s.key); err != nil {
			s.reject(err)
		}
	case msgRequestGameState:
		if err := s.mgr.Sync(ctx, s.roomName, s.key); err != nil {
			s.reject(err)
		}
	case msgLeaveRoom:
		if err := s.mgr.Leave(ctx, s.roomName, s.key); err != nil && !errors.Is(err, room.ErrRoomClosed) {
			s.reject(err)
			return false
		}
		s.key = ""
		s.left = true
		return true
	default:
		cmdType, ok := gameCommands[in.Type]
		if !ok {
			s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: fmt.Sprintf("unknown message type: %s", in.Type)})
			return false
		}
		var cmd game.Command
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &cmd); err != nil {
				s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "invalid payload"})
				return false
			}
		}
		cmd.Type = cmdType
		if _, err := s.mgr.Submit(ctx, s.roomName, s.key, cmd); err != nil {
			s.reject(err)
		}
	}
	return false
}

func (s *session) join(ctx context.Context, raw json.RawMessage) {
	if s.key != "" {
		s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "already joined"})
		return
	}
	var p joinPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			s.reject(&game.ActionError{Code: game.CodeInvalidCommand, Message: "invalid payload"})
			return
		}
	}
	if p.PersistentID == "" {
		p.PersistentID = s.identity
	}

	r, res, err := s.mgr.Join(ctx, s.roomName, p.PersistentID, p.Name, s.conn)
	if err != nil {
		// room_full has already been sent by the room
		if res != room.JoinFull {
			s.reject(err)
		}
		return
	}
	s.key = p.PersistentID
	s.logger = s.logger.WithField("persistentId", s.key)
	s.logger.WithField("result", res).Info("joined room")

	go func() {
		select {
		case <-r.Done():
			s.cancel()
		case <-ctx.Done():
		}
	}()
}

func writePump(ctx context.Context, c *websocket.Conn, conn *wsConn, pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-conn.out:
			data, err := json.Marshal(ev)
			if err != nil {
				conn.logger.WithError(err).Warn("failed to marshal outgoing event")
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				conn.logger.WithError(err).Debug("write failed")
				conn.cancel()
				return
			}
			if ev.Type == room.EventSessionReplaced {
				c.Close(SessionReplacedError, "seat taken over by another connection")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := c.Ping(pingCtx)
			cancel()
			if err != nil {
				conn.logger.WithError(err).Debug("ping failed")
				conn.cancel()
				return
			}
		}
	}
}
