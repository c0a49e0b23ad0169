// internal/game/sync_state.go
package game

import (
	"sort"

	"github.com/jason-s-yu/dealroom/internal/models"
)

// SetView summarizes one property set for clients.
type SetView struct {
	Color         models.Color `json:"color"`
	Count         int          `json:"count"`
	RequiredCount int          `json:"requiredCount"`
	IsComplete    bool         `json:"isComplete"`
	Houses        int          `json:"houses,omitempty"`
	Hotels        int          `json:"hotels,omitempty"`
	Rent          int          `json:"rent"`
}

// PlayerView is one player as seen by a particular viewer. Hand is only filled
// for the viewer themself; everyone else is reduced to HandCount.
type PlayerView struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	HandCount     int           `json:"handCount"`
	Hand          []models.Card `json:"hand,omitempty"`
	Bank          []models.Card `json:"bank"`
	BankValue     int           `json:"bankValue"`
	Properties    []models.Card `json:"properties"`
	Sets          []SetView     `json:"sets"`
	CompleteSets  int           `json:"completeSets"`
	IsCurrentTurn bool          `json:"isCurrentTurn"`
	Connected     bool          `json:"connected"`
}

// StateView is the redacted game state delivered to one viewer.
type StateView struct {
	GameID               string         `json:"gameId"`
	Phase                Phase          `json:"phase"`
	TurnPhase            TurnPhase      `json:"turnPhase"`
	Turn                 int            `json:"turn"`
	CurrentPlayerID      string         `json:"currentPlayerId,omitempty"`
	ActionsTakenThisTurn int            `json:"actionsTakenThisTurn"`
	MaxTurnActions       int            `json:"maxTurnActions"`
	RentMultiplier       int            `json:"rentMultiplier"`
	DeckCount            int            `json:"deckCount"`
	DiscardPile          []models.Card  `json:"discardPile"`
	Players              []PlayerView   `json:"players"`
	Pending              *PendingAction `json:"pending,omitempty"`
	WinnerID             string         `json:"winnerId,omitempty"`
	Rules                Rules          `json:"rules"`
}

// SnapshotFor builds the view of the game for viewerID. Other players' hands are
// never included. The returned value shares no slices with the game.
func (g *Game) SnapshotFor(viewerID string) StateView {
	view := StateView{
		GameID:               g.ID.String(),
		Phase:                g.Phase,
		TurnPhase:            g.TurnPhase,
		Turn:                 g.Turn,
		ActionsTakenThisTurn: g.ActionsTakenThisTurn,
		MaxTurnActions:       g.Rules.MaxTurnActions,
		RentMultiplier:       g.RentMultiplier,
		DeckCount:            len(g.Deck),
		DiscardPile:          models.CloneCards(g.DiscardPile),
		Players:              make([]PlayerView, 0, len(g.Players)),
		WinnerID:             g.WinnerID,
		Rules:                g.Rules,
	}
	if g.Phase == PhasePlaying {
		if cur := g.CurrentPlayer(); cur != nil {
			view.CurrentPlayerID = cur.ID
		}
	}
	if g.Pending != nil {
		pa := g.Pending.clone()
		view.Pending = &pa
	}

	for i, p := range g.Players {
		pv := PlayerView{
			ID:            p.ID,
			Name:          p.Name,
			HandCount:     len(p.Hand),
			Bank:          models.CloneCards(p.Bank),
			BankValue:     p.BankValue(),
			Properties:    models.CloneCards(p.Properties),
			Sets:          setViews(p),
			CompleteSets:  p.CompleteSetCount(),
			IsCurrentTurn: g.Phase == PhasePlaying && i == g.CurrentPlayerIndex,
		}
		if p.ID == viewerID {
			pv.Hand = models.CloneCards(p.Hand)
		}
		view.Players = append(view.Players, pv)
	}
	return view
}

// HandOf returns a copy of a player's hand, or nil if they are not seated.
func (g *Game) HandOf(playerID string) []models.Card {
	p := g.playerByID(playerID)
	if p == nil {
		return nil
	}
	return models.CloneCards(p.Hand)
}

func setViews(p *models.Player) []SetView {
	sets := p.PropertySets()
	out := make([]SetView, 0, len(sets))
	for _, color := range models.AllColors {
		set, ok := sets[color]
		if !ok {
			continue
		}
		out = append(out, SetView{
			Color:         color,
			Count:         len(set.Members),
			RequiredCount: set.RequiredCount,
			IsComplete:    set.IsComplete,
			Houses:        set.Houses,
			Hotels:        set.Hotels,
			Rent:          RentFor(set),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IsComplete && !out[j].IsComplete })
	return out
}
