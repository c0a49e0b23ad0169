// internal/room/events.go
package room

import (
	"errors"

	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/models"
)

// Outbound event types.
const (
	EventPlayerCountUpdate     = "player_count_update"
	EventSetHost               = "set_host"
	EventRoomFull              = "room_full"
	EventSeatAssigned          = "seat_assigned"
	EventGameStarted           = "game_started"
	EventGameState             = "game_state"
	EventReconnectionConfirmed = "reconnection_confirmed"
	EventActionRejected        = "action_rejected"
	EventGameOver              = "game_over"
	EventRoomAborted           = "room_aborted"
	EventPong                  = "pong"
	EventSessionReplaced       = "session_replaced"
)

// Event is the envelope for everything sent to a client.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Connection is the room's handle on one client. Send must not block; the room
// goroutine calls it while holding the room.
type Connection interface {
	Send(ev Event)
}

// SeatInfo is one roster line in a player_count_update.
type SeatInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	IsHost    bool   `json:"isHost"`
}

type PlayerCountPayload struct {
	Count   int        `json:"count"`
	Players []SeatInfo `json:"players"`
}

type SeatAssignedPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type ReconnectionPayload struct {
	PersistentID string `json:"persistentId"`
	PlayerID     string `json:"playerId"`
}

// StartedPlayer is the public summary of a player in game_started.
type StartedPlayer struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	HandCount  int           `json:"handCount"`
	Bank       []models.Card `json:"bank"`
	Properties []models.Card `json:"properties"`
}

type GameStartedPayload struct {
	Hand        []models.Card   `json:"hand"`
	Players     []StartedPlayer `json:"players"`
	DeckCount   int             `json:"deckCount"`
	DiscardPile []models.Card   `json:"discardPile"`
}

type GameStatePayload struct {
	PlayerID   string         `json:"playerId"`
	Hand       []models.Card  `json:"hand"`
	GameState  game.StateView `json:"gameState"`
	LastAction *game.Result   `json:"lastAction,omitempty"`
}

type RejectedPayload struct {
	Code    game.ErrorCode `json:"code"`
	Message string         `json:"message"`
}

type GameOverPayload struct {
	WinnerID string `json:"winnerId"`
}

type AbortedPayload struct {
	Reason string `json:"reason"`
}

// Rejected converts an error into the payload sent back to the client that caused it.
func Rejected(err error) Event {
	var ae *game.ActionError
	if errors.As(err, &ae) {
		return Event{Type: EventActionRejected, Payload: RejectedPayload{Code: ae.Code, Message: ae.Message}}
	}
	return Event{Type: EventActionRejected, Payload: RejectedPayload{Code: game.CodeInvalidCommand, Message: err.Error()}}
}
