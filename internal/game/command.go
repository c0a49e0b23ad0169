package game

import "github.com/jason-s-yu/dealroom/internal/models"

// CommandType names a player intent.
type CommandType string

const (
	CmdPlayCard     CommandType = "play_card"
	CmdDrawCard     CommandType = "draw_card"
	CmdChargeRent   CommandType = "charge_rent"
	CmdFlipProperty CommandType = "flip_property"
	CmdRespond      CommandType = "respond"
	CmdDiscardCard  CommandType = "discard_card"
	CmdEndTurn      CommandType = "end_turn"
)

// Command is one player intent. PlayerID is filled in by the room from the
// sender's seat, never from client input.
type Command struct {
	Type     CommandType `json:"type"`
	PlayerID string      `json:"-"`

	CardID       string       `json:"cardInstanceId,omitempty"`
	TargetID     string       `json:"targetId,omitempty"`     // opponent player
	TargetCardID string       `json:"targetCardId,omitempty"` // opponent's property (Sly Deal, Forced Deal)
	OwnCardID    string       `json:"ownCardId,omitempty"`    // own property given up in a Forced Deal
	TargetColor  models.Color `json:"targetColor,omitempty"`  // set taken by a Deal Breaker
	ColorChoice  models.Color `json:"colorChoice,omitempty"`  // wild placement, flips, buildings
	ColorScope   models.Color `json:"colorScope,omitempty"`   // color rent is charged for
	AsMoney      bool         `json:"asMoney,omitempty"`      // bank an action card for its value
	Block        bool         `json:"block,omitempty"`        // respond with a Just Say No
}

// Payment records one settled debt.
type Payment struct {
	FromID string   `json:"fromId"`
	ToID   string   `json:"toId"`
	Owed   int      `json:"owed"`
	Paid   int      `json:"paid"`
	Cards  []string `json:"cards"`
}

// Result describes what an accepted command did.
type Result struct {
	Type     CommandType         `json:"type"`
	PlayerID string              `json:"playerId"`
	Card     *models.Card        `json:"card,omitempty"`
	Effect   models.ActionEffect `json:"effect,omitempty"`
	Drawn    int                 `json:"drawn,omitempty"`
	Amount   int                 `json:"amount,omitempty"`
	Payments []Payment           `json:"payments,omitempty"`
	Pending  bool                `json:"pending,omitempty"`
	Blocked  bool                `json:"blocked,omitempty"`
	WinnerID string              `json:"winnerId,omitempty"`
}
