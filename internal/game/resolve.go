// internal/game/resolve.go
package game

import (
	"sort"

	"github.com/jason-s-yu/dealroom/internal/models"
)

// effectFunc resolves one action card. The card has already been taken out of the
// player's hand; the function either places it or discards it.
type effectFunc func(g *Game, p *models.Player, card models.Card, cmd Command) (*Result, error)

// effects is the closed set of action effects the engine can resolve.
var effects = map[models.ActionEffect]effectFunc{
	models.EffectStealFullSet:       (*Game).playDealBreaker,
	models.EffectBlockAction:        (*Game).playJustSayNo,
	models.EffectStealSingle:        (*Game).playSlyDeal,
	models.EffectSwapProperty:       (*Game).playForcedDeal,
	models.EffectCollect5M:          (*Game).playDebtCollector,
	models.EffectCollect2M:          (*Game).playBirthday,
	models.EffectRentAnyColor:       (*Game).playRent,
	models.EffectRentRedYellow:      (*Game).playRent,
	models.EffectRentGreenDarkBlue:  (*Game).playRent,
	models.EffectRentOrangePink:     (*Game).playRent,
	models.EffectRentBrownLightBlue: (*Game).playRent,
	models.EffectRentRailroadUtil:   (*Game).playRent,
	models.EffectDoubleRent:         (*Game).playDoubleRent,
	models.EffectDraw2:              (*Game).playPassGo,
	models.EffectAddHouse:           (*Game).playBuilding,
	models.EffectAddHotel:           (*Game).playBuilding,
	models.EffectWildProperty:       (*Game).playWild,
	models.EffectFlipProperty:       (*Game).playFlip,
}

// KnownEffects lists every effect tag the engine resolves, sorted. The deck
// validates its catalog against this list at startup.
func KnownEffects() []models.ActionEffect {
	out := make([]models.ActionEffect, 0, len(effects))
	for e := range effects {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (g *Game) playCard(p *models.Player, cmd Command) (*Result, error) {
	if cmd.CardID == "" {
		return nil, reject(CodeInvalidCommand, "cardInstanceId is required")
	}
	card, ok := p.HandCard(cmd.CardID)
	if !ok {
		return nil, reject(CodeTargetNotFound, "card %s is not in your hand", cmd.CardID)
	}

	banking := cmd.AsMoney || card.Kind == models.KindMoney
	costs := !(banking && g.Rules.FreeMoneyPlays)
	if err := g.requireBudget(costs); err != nil {
		return nil, err
	}
	p.TakeFromHand(card.InstanceID)

	var res *Result
	var err error
	switch {
	case banking:
		res, err = g.bankCard(p, card)
	case card.Kind == models.KindProperty && !card.IsWild():
		res, err = g.placeProperty(p, card, card.Color)
	default:
		fn, known := effects[card.Effect]
		if !known {
			return nil, reject(CodeIllegalCardPlay, "card %s has no playable effect", card.Name)
		}
		res, err = fn(g, p, card, cmd)
	}
	if err != nil {
		return nil, err
	}

	g.spendAction(costs)
	if banking || card.Effect != models.EffectDoubleRent {
		g.RentMultiplier = 1
	}
	res.Type = cmd.Type
	res.PlayerID = p.ID
	res.Pending = g.Pending != nil
	res.WinnerID = g.WinnerID
	return res, nil
}

func (g *Game) bankCard(p *models.Player, card models.Card) (*Result, error) {
	switch card.Kind {
	case models.KindProperty:
		return nil, reject(CodeIllegalCardPlay, "property cards cannot be banked")
	case models.KindAction:
		p.Bank = append(p.Bank, card)
		g.logAction(p.ID, ActionBankAction, &card, "", map[string]interface{}{"value": card.Value})
	default:
		p.Bank = append(p.Bank, card)
		g.logAction(p.ID, ActionPlayMoney, &card, "", map[string]interface{}{"value": card.Value})
	}
	return &Result{Card: &card, Amount: card.Value}, nil
}

// placeProperty files a property under color and checks for a win.
func (g *Game) placeProperty(p *models.Player, card models.Card, color models.Color) (*Result, error) {
	if card.IsWild() {
		card.CurrentColor = color
	}
	p.Properties = append(p.Properties, card)
	g.logAction(p.ID, ActionPlayProperty, &card, "", map[string]interface{}{"color": color})
	g.checkWin(p)
	return &Result{Card: &card, Effect: card.Effect}, nil
}

func (g *Game) playWild(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	if card.Kind != models.KindProperty {
		return nil, reject(CodeIllegalCardPlay, "%s is not a property", card.Name)
	}
	if cmd.ColorChoice == "" {
		return nil, reject(CodeInvalidCommand, "colorChoice is required for a wild property")
	}
	if !card.AllowsColor(cmd.ColorChoice) {
		return nil, reject(CodeIllegalCardPlay, "%s cannot be filed as %s", card.Name, cmd.ColorChoice)
	}
	return g.placeProperty(p, card, cmd.ColorChoice)
}

// playFlip exists so that every effect tag resolves to something; orientation
// changes of cards already in play go through the flip_property command.
func (g *Game) playFlip(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	return nil, reject(CodeIllegalCardPlay, "use flip_property to re-orient a wild in play")
}

func (g *Game) flipProperty(p *models.Player, cmd Command) (*Result, error) {
	if cmd.CardID == "" {
		return nil, reject(CodeInvalidCommand, "cardInstanceId is required")
	}
	card, ok := p.PropertyCard(cmd.CardID)
	if !ok {
		return nil, reject(CodeTargetNotFound, "card %s is not among your properties", cmd.CardID)
	}
	if !card.IsWild() {
		return nil, reject(CodeIllegalCardPlay, "%s is not a wild property", card.Name)
	}
	if err := g.requireBudget(true); err != nil {
		return nil, err
	}

	color := cmd.ColorChoice
	if color == "" {
		if len(card.Colors) != 2 {
			return nil, reject(CodeInvalidCommand, "colorChoice is required for %s", card.Name)
		}
		color = card.Colors[0]
		if card.CurrentColor == color {
			color = card.Colors[1]
		}
	}
	if !card.AllowsColor(color) {
		return nil, reject(CodeIllegalCardPlay, "%s cannot be filed as %s", card.Name, color)
	}
	if color == card.CurrentColor {
		return nil, reject(CodeIllegalCardPlay, "%s is already filed as %s", card.Name, color)
	}

	from := card.CurrentColor
	p.SetPropertyColor(card.InstanceID, color)
	card.CurrentColor = color
	g.spendAction(true)
	g.RentMultiplier = 1
	g.logAction(p.ID, ActionFlip, &card, "", map[string]interface{}{"from": from, "to": color})
	g.checkWin(p)
	return &Result{Type: CmdFlipProperty, PlayerID: p.ID, Card: &card, WinnerID: g.WinnerID}, nil
}

func (g *Game) playJustSayNo(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	return nil, reject(CodeIllegalCardPlay, "%s can only be played in response to an action", card.Name)
}

func (g *Game) playPassGo(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	g.discard(card)
	g.logAction(p.ID, ActionPlayAction, &card, "", nil)
	drawn := g.draw(p, 2)
	return &Result{Card: &card, Effect: card.Effect, Drawn: drawn}, nil
}

func (g *Game) playDoubleRent(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	g.RentMultiplier *= 2
	g.discard(card)
	g.logAction(p.ID, ActionPlayAction, &card, "", map[string]interface{}{"multiplier": g.RentMultiplier})
	return &Result{Card: &card, Effect: card.Effect}, nil
}

// playBuilding places a house or hotel on one of the player's complete sets.
func (g *Game) playBuilding(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	color := cmd.ColorChoice
	if color == "" {
		return nil, reject(CodeInvalidCommand, "colorChoice is required for %s", card.Name)
	}
	set := p.PropertySet(color)
	if set == nil || !set.IsComplete {
		return nil, reject(CodeIllegalCardPlay, "%s needs a complete %s set", card.Name, color)
	}
	if !models.Buildable(color) {
		return nil, reject(CodeIllegalCardPlay, "cannot build on %s", color)
	}
	switch card.Effect {
	case models.EffectAddHouse:
		if set.Houses > 0 {
			return nil, reject(CodeIllegalCardPlay, "%s set already has a house", color)
		}
	case models.EffectAddHotel:
		if set.Houses == 0 {
			return nil, reject(CodeIllegalCardPlay, "%s set needs a house before a hotel", color)
		}
		if set.Hotels > 0 {
			return nil, reject(CodeIllegalCardPlay, "%s set already has a hotel", color)
		}
	}
	card.CurrentColor = color
	p.Properties = append(p.Properties, card)
	g.logAction(p.ID, ActionPlayAction, &card, "", map[string]interface{}{"color": color})
	return &Result{Card: &card, Effect: card.Effect}, nil
}

// opponent resolves targetID to another seated player.
func (g *Game) opponent(p *models.Player, targetID string) (*models.Player, error) {
	if targetID == "" {
		return nil, reject(CodeInvalidCommand, "targetId is required")
	}
	if targetID == p.ID {
		return nil, reject(CodeIllegalCardPlay, "cannot target yourself")
	}
	target := g.playerByID(targetID)
	if target == nil {
		return nil, reject(CodeTargetNotFound, "player %s is not in this game", targetID)
	}
	return target, nil
}

// looseProperty finds a property on owner that may be taken on its own: not a
// building and not part of a complete set.
func looseProperty(owner *models.Player, instanceID string) (models.Card, error) {
	if instanceID == "" {
		return models.Card{}, reject(CodeInvalidCommand, "a property card id is required")
	}
	card, ok := owner.PropertyCard(instanceID)
	if !ok {
		return models.Card{}, reject(CodeTargetNotFound, "card %s is not among %s's properties", instanceID, owner.Name)
	}
	if card.IsBuilding() {
		return models.Card{}, reject(CodeIllegalCardPlay, "buildings cannot be taken on their own")
	}
	if set := owner.PropertySet(card.EffectiveColor()); set != nil && set.IsComplete {
		return models.Card{}, reject(CodeIllegalCardPlay, "%s is part of a complete set", card.Name)
	}
	return card, nil
}

func (g *Game) playSlyDeal(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	target, err := g.opponent(p, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	if _, err := looseProperty(target, cmd.TargetCardID); err != nil {
		return nil, err
	}
	return g.launch(p, card, PendingAction{
		Effect:       card.Effect,
		TargetCardID: cmd.TargetCardID,
	}, []*models.Player{target})
}

func (g *Game) playForcedDeal(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	target, err := g.opponent(p, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	if _, err := looseProperty(target, cmd.TargetCardID); err != nil {
		return nil, err
	}
	if _, err := looseProperty(p, cmd.OwnCardID); err != nil {
		return nil, err
	}
	return g.launch(p, card, PendingAction{
		Effect:       card.Effect,
		TargetCardID: cmd.TargetCardID,
		OwnCardID:    cmd.OwnCardID,
	}, []*models.Player{target})
}

func (g *Game) playDealBreaker(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	target, err := g.opponent(p, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	color := cmd.TargetColor
	if color == "" {
		color = cmd.ColorChoice
	}
	if color == "" {
		return nil, reject(CodeInvalidCommand, "targetColor is required")
	}
	set := target.PropertySet(color)
	if set == nil || !set.IsComplete {
		return nil, reject(CodeIllegalCardPlay, "%s has no complete %s set", target.Name, color)
	}
	return g.launch(p, card, PendingAction{
		Effect:      card.Effect,
		TargetColor: color,
	}, []*models.Player{target})
}

func (g *Game) playDebtCollector(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	target, err := g.opponent(p, cmd.TargetID)
	if err != nil {
		return nil, err
	}
	return g.launch(p, card, PendingAction{Effect: card.Effect, Amount: 5}, []*models.Player{target})
}

func (g *Game) playBirthday(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	return g.launch(p, card, PendingAction{Effect: card.Effect, Amount: 2}, g.opponents(p))
}

// stealProperty moves one property between players, keeping its orientation.
func stealProperty(from, to *models.Player, instanceID string) bool {
	card, ok := from.TakeProperty(instanceID)
	if !ok {
		return false
	}
	to.Properties = append(to.Properties, card)
	return true
}

// stealSet moves every card filed under color, buildings included. A set holds
// at most one house and one hotel, so a building the receiver already has in
// that color is discarded instead of moved.
func (g *Game) stealSet(from, to *models.Player, color models.Color) (moved, discarded []string) {
	have := map[models.ActionEffect]bool{}
	if set := to.PropertySet(color); set != nil {
		have[models.EffectAddHouse] = set.Houses > 0
		have[models.EffectAddHotel] = set.Hotels > 0
	}
	kept := make([]models.Card, 0, len(from.Properties))
	for _, c := range from.Properties {
		if c.EffectiveColor() != color {
			kept = append(kept, c)
			continue
		}
		if c.IsBuilding() && have[c.Effect] {
			g.discard(c)
			discarded = append(discarded, c.InstanceID)
			continue
		}
		to.Properties = append(to.Properties, c)
		moved = append(moved, c.InstanceID)
	}
	from.Properties = kept
	return moved, discarded
}
