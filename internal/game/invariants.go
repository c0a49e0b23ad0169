package game

import (
	"fmt"

	"github.com/jason-s-yu/dealroom/internal/models"
)

// CheckInvariants verifies the structural guarantees every committed state must
// hold. A failure is an engine bug, not a player error.
func (g *Game) CheckInvariants() error {
	seen := make(map[string]string, g.totalCards)
	count := 0
	track := func(where string, cards []models.Card) error {
		for _, c := range cards {
			if prev, dup := seen[c.InstanceID]; dup {
				return fmt.Errorf("card %s is in both %s and %s", c.InstanceID, prev, where)
			}
			seen[c.InstanceID] = where
			count++
		}
		return nil
	}

	if err := track("deck", g.Deck); err != nil {
		return err
	}
	if err := track("discard", g.DiscardPile); err != nil {
		return err
	}
	for _, p := range g.Players {
		for _, pile := range []struct {
			name  string
			cards []models.Card
		}{
			{"hand", p.Hand},
			{"bank", p.Bank},
			{"properties", p.Properties},
		} {
			if err := track(p.ID+"/"+pile.name, pile.cards); err != nil {
				return err
			}
		}
	}
	if count != g.totalCards {
		return fmt.Errorf("card count %d, expected %d", count, g.totalCards)
	}

	if g.Phase == PhasePlaying && (g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players)) {
		return fmt.Errorf("current player index %d out of range for %d players", g.CurrentPlayerIndex, len(g.Players))
	}
	if g.ActionsTakenThisTurn > g.Rules.MaxTurnActions {
		return fmt.Errorf("%d actions taken, limit %d", g.ActionsTakenThisTurn, g.Rules.MaxTurnActions)
	}
	if g.Phase == PhaseEnded && g.WinnerID == "" {
		return fmt.Errorf("game ended without a winner")
	}

	for _, p := range g.Players {
		for color, set := range p.PropertySets() {
			want := set.RequiredCount > 0 && len(set.Members) >= set.RequiredCount
			if set.IsComplete != want {
				return fmt.Errorf("player %s: %s set completeness is %v with %d/%d", p.ID, color, set.IsComplete, len(set.Members), set.RequiredCount)
			}
		}
	}
	return nil
}
