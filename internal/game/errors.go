// internal/game/errors.go
package game

import "fmt"

// ErrorCode classifies why a command was rejected.
type ErrorCode string

const (
	CodeInvalidCommand       ErrorCode = "invalid_command"
	CodeNotYourTurn          ErrorCode = "not_your_turn"
	CodeActionBudgetExceeded ErrorCode = "action_budget_exceeded"
	CodeIllegalCardPlay      ErrorCode = "illegal_card_play"
	CodeTargetNotFound       ErrorCode = "target_not_found"
	CodeRoomFull             ErrorCode = "room_full"
	CodeNotHost              ErrorCode = "not_host"
	CodeTooFewPlayers        ErrorCode = "too_few_players"
	CodeGameAlreadyEnded     ErrorCode = "game_already_ended"
	CodeAwaitingResponse     ErrorCode = "awaiting_response"
)

// ActionError is returned for every rejected command. A rejected command never
// mutates the game.
type ActionError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on Code so errors.Is(err, ErrNotYourTurn) holds for any message.
func (e *ActionError) Is(target error) bool {
	t, ok := target.(*ActionError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCommand       = &ActionError{Code: CodeInvalidCommand, Message: "malformed command"}
	ErrNotYourTurn          = &ActionError{Code: CodeNotYourTurn, Message: "it is not your turn"}
	ErrActionBudgetExceeded = &ActionError{Code: CodeActionBudgetExceeded, Message: "no actions left this turn"}
	ErrIllegalCardPlay      = &ActionError{Code: CodeIllegalCardPlay, Message: "card cannot be played now"}
	ErrTargetNotFound       = &ActionError{Code: CodeTargetNotFound, Message: "target not found"}
	ErrRoomFull             = &ActionError{Code: CodeRoomFull, Message: "room is full"}
	ErrNotHost              = &ActionError{Code: CodeNotHost, Message: "only the host can do that"}
	ErrTooFewPlayers        = &ActionError{Code: CodeTooFewPlayers, Message: "not enough players to start"}
	ErrGameAlreadyEnded     = &ActionError{Code: CodeGameAlreadyEnded, Message: "game is over"}
	ErrAwaitingResponse     = &ActionError{Code: CodeAwaitingResponse, Message: "waiting for a response to a pending action"}
)

func reject(code ErrorCode, format string, args ...interface{}) error {
	return &ActionError{Code: code, Message: fmt.Sprintf(format, args...)}
}
