// internal/game/turn.go
package game

import (
	"github.com/jason-s-yu/dealroom/internal/models"
)

// beginTurn resets the per-turn counters for the current player and, under
// AutoDraw, performs the start-of-turn draw.
func (g *Game) beginTurn() {
	p := g.CurrentPlayer()
	if p == nil {
		return
	}
	g.Turn++
	g.ActionsTakenThisTurn = 0
	g.RentMultiplier = 1
	g.TurnPhase = TurnDraw
	g.logAction(p.ID, ActionTurnStart, nil, "", map[string]interface{}{"turn": g.Turn})
	if g.Rules.AutoDraw {
		g.turnDraw(p)
	}
}

// turnDraw performs the start-of-turn draw and opens the action phase.
func (g *Game) turnDraw(p *models.Player) int {
	n := g.Rules.TurnDraw
	if len(p.Hand) == 0 {
		n = g.Rules.EmptyHandDraw
	}
	drawn := g.draw(p, n)
	g.TurnPhase = TurnAction
	return drawn
}

// draw moves up to n cards from the front of the deck into p's hand. A short or
// empty deck yields fewer cards, never an error.
func (g *Game) draw(p *models.Player, n int) int {
	drawn := 0
	for i := 0; i < n; i++ {
		if len(g.Deck) == 0 && g.Rules.ReshuffleDiscard && len(g.DiscardPile) > 0 {
			g.reshuffleDiscard()
		}
		if len(g.Deck) == 0 {
			break
		}
		card := g.Deck[0]
		g.Deck = g.Deck[1:]
		p.Hand = append(p.Hand, card)
		drawn++
	}
	if n > 0 {
		g.logAction(p.ID, ActionDraw, nil, "", map[string]interface{}{"requested": n, "drawn": drawn, "deck": len(g.Deck)})
	}
	return drawn
}

func (g *Game) reshuffleDiscard() {
	pile := g.DiscardPile
	g.DiscardPile = []models.Card{}
	for i := range pile {
		pile[i].CurrentColor = ""
	}
	g.rng.Shuffle(len(pile), func(i, j int) {
		pile[i], pile[j] = pile[j], pile[i]
	})
	g.Deck = append(g.Deck, pile...)
}

// discard puts a card on the discard pile, clearing any wild orientation.
func (g *Game) discard(c models.Card) {
	c.CurrentColor = ""
	g.DiscardPile = append(g.DiscardPile, c)
}

func (g *Game) drawCard(p *models.Player) (*Result, error) {
	if g.Rules.AutoDraw || g.TurnPhase != TurnDraw {
		return nil, reject(CodeIllegalCardPlay, "no draw is available")
	}
	drawn := g.turnDraw(p)
	return &Result{Type: CmdDrawCard, PlayerID: p.ID, Drawn: drawn}, nil
}

// requireBudget rejects an action-consuming play once the turn's budget is spent.
func (g *Game) requireBudget(costs bool) error {
	if costs && g.ActionsTakenThisTurn >= g.Rules.MaxTurnActions {
		return ErrActionBudgetExceeded
	}
	return nil
}

func (g *Game) spendAction(costs bool) {
	if costs {
		g.ActionsTakenThisTurn++
	}
}

func (g *Game) discardCard(p *models.Player, cmd Command) (*Result, error) {
	if cmd.CardID == "" {
		return nil, reject(CodeInvalidCommand, "cardInstanceId is required")
	}
	if len(p.Hand) <= g.Rules.HandLimit {
		return nil, reject(CodeIllegalCardPlay, "hand is within the limit of %d", g.Rules.HandLimit)
	}
	card, ok := p.TakeFromHand(cmd.CardID)
	if !ok {
		return nil, reject(CodeTargetNotFound, "card %s is not in your hand", cmd.CardID)
	}
	g.discard(card)
	g.logAction(p.ID, ActionDiscard, &card, "", nil)
	return &Result{Type: CmdDiscardCard, PlayerID: p.ID, Card: &card}, nil
}

func (g *Game) endTurn(p *models.Player) (*Result, error) {
	if len(p.Hand) > g.Rules.HandLimit {
		return nil, reject(CodeIllegalCardPlay, "discard down to %d cards before ending the turn", g.Rules.HandLimit)
	}
	g.logAction(p.ID, ActionEndTurn, nil, "", map[string]interface{}{"actions": g.ActionsTakenThisTurn})
	g.advanceTurn()
	return &Result{Type: CmdEndTurn, PlayerID: p.ID}, nil
}

func (g *Game) advanceTurn() {
	if len(g.Players) == 0 {
		return
	}
	g.CurrentPlayerIndex = (g.CurrentPlayerIndex + 1) % len(g.Players)
	g.beginTurn()
}

func (g *Game) removePlayer(playerID string) (*Result, error) {
	idx := g.playerIndex(playerID)
	if idx < 0 {
		return nil, reject(CodeTargetNotFound, "player %s is not in this game", playerID)
	}
	res := &Result{Type: "leave", PlayerID: playerID}

	switch g.Phase {
	case PhaseEnded:
		return nil, ErrGameAlreadyEnded
	case PhaseSetup:
		g.Players = append(g.Players[:idx:idx], g.Players[idx+1:]...)
		return res, nil
	}

	p := g.Players[idx]
	for _, pile := range [][]models.Card{p.Hand, p.Bank, p.Properties} {
		for _, c := range pile {
			g.discard(c)
		}
	}
	p.Hand, p.Bank, p.Properties = []models.Card{}, []models.Card{}, []models.Card{}
	g.logAction(playerID, ActionForfeit, nil, "", nil)

	wasCurrent := idx == g.CurrentPlayerIndex
	g.Players = append(g.Players[:idx:idx], g.Players[idx+1:]...)
	if idx < g.CurrentPlayerIndex {
		g.CurrentPlayerIndex--
	}

	if g.Pending != nil {
		g.dropFromPending(playerID)
		if g.Phase == PhaseEnded {
			res.WinnerID = g.WinnerID
			return res, nil
		}
	}

	if len(g.Players) == 1 {
		g.endGame(g.Players[0].ID)
		res.WinnerID = g.WinnerID
		return res, nil
	}
	if wasCurrent {
		g.CurrentPlayerIndex %= len(g.Players)
		g.beginTurn()
	}
	return res, nil
}
