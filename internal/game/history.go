// internal/game/history.go
package game

import "github.com/jason-s-yu/dealroom/internal/models"

// Action types recorded in the history.
const (
	ActionGameStart    = "game_start"
	ActionTurnStart    = "turn_start"
	ActionDraw         = "draw"
	ActionPlayMoney    = "play_money"
	ActionBankAction   = "bank_action_card"
	ActionPlayProperty = "play_property"
	ActionPlayAction   = "play_action"
	ActionChargeRent   = "charge_rent"
	ActionFlip         = "flip_property"
	ActionPayment      = "payment"
	ActionTransfer     = "property_transfer"
	ActionBlock        = "block_action"
	ActionAccept       = "accept_action"
	ActionNullified    = "action_nullified"
	ActionDiscard      = "discard"
	ActionEndTurn      = "end_turn"
	ActionForfeit      = "forfeit"
	ActionGameEnd      = "game_end"
)

// HistoryEntry is one line of the audit log.
type HistoryEntry struct {
	Index     int                    `json:"index"`
	Type      string                 `json:"type"`
	PlayerID  string                 `json:"playerId,omitempty"`
	Card      *models.Card           `json:"card,omitempty"`
	Target    string                 `json:"target,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp int64                  `json:"timestamp"` // epoch millis
}

// logAction appends to the history. Entries only leave the game through publish,
// after the transition commits.
func (g *Game) logAction(playerID, actionType string, card *models.Card, target string, payload map[string]interface{}) {
	entry := HistoryEntry{
		Index:    len(g.History) + 1,
		Type:     actionType,
		PlayerID: playerID,
		Target:   target,
		Payload:  payload,
	}
	if card != nil {
		c := *card
		entry.Card = &c
	}
	if g.now != nil {
		entry.Timestamp = g.now().UnixMilli()
	}
	g.History = append(g.History, entry)
}

// publish hands entries from index mark onwards to OnAction.
func (g *Game) publish(mark int) {
	if g.OnAction == nil {
		return
	}
	for _, entry := range g.History[mark:] {
		g.OnAction(entry)
	}
}

// HistorySince returns the entries after the given index.
func (g *Game) HistorySince(index int) []HistoryEntry {
	if index < 0 {
		index = 0
	}
	if index >= len(g.History) {
		return nil
	}
	return append([]HistoryEntry(nil), g.History[index:]...)
}
