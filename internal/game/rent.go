// internal/game/rent.go
package game

import (
	"sort"

	"github.com/jason-s-yu/dealroom/internal/models"
)

// rentTable is the rent owed for 1..n properties of a color.
var rentTable = map[models.Color][]int{
	models.ColorBrown:     {1, 2},
	models.ColorLightBlue: {1, 2, 3},
	models.ColorPink:      {1, 2, 4},
	models.ColorOrange:    {1, 3, 5},
	models.ColorRed:       {2, 3, 6},
	models.ColorYellow:    {2, 4, 6},
	models.ColorGreen:     {2, 4, 7},
	models.ColorDarkBlue:  {3, 8},
	models.ColorRailroad:  {1, 2, 3, 4},
	models.ColorUtility:   {1, 2},
}

const (
	houseRent = 3
	hotelRent = 4
)

// rentScopes maps each rent card to the colors it may charge for.
var rentScopes = map[models.ActionEffect][]models.Color{
	models.EffectRentAnyColor:       models.AllColors,
	models.EffectRentRedYellow:      {models.ColorRed, models.ColorYellow},
	models.EffectRentGreenDarkBlue:  {models.ColorGreen, models.ColorDarkBlue},
	models.EffectRentOrangePink:     {models.ColorOrange, models.ColorPink},
	models.EffectRentBrownLightBlue: {models.ColorBrown, models.ColorLightBlue},
	models.EffectRentRailroadUtil:   {models.ColorRailroad, models.ColorUtility},
}

func isRent(effect models.ActionEffect) bool {
	_, ok := rentScopes[effect]
	return ok
}

func inScope(effect models.ActionEffect, color models.Color) bool {
	for _, c := range rentScopes[effect] {
		if c == color {
			return true
		}
	}
	return false
}

// RentFor is the base rent a set currently earns, before any multiplier.
func RentFor(set *models.PropertySet) int {
	if set == nil || len(set.Members) == 0 {
		return 0
	}
	table := rentTable[set.Color]
	if len(table) == 0 {
		return 0
	}
	n := len(set.Members)
	if n > len(table) {
		n = len(table)
	}
	amount := table[n-1]
	if set.IsComplete {
		amount += houseRent*set.Houses + hotelRent*set.Hotels
	}
	return amount
}

func (g *Game) chargeRent(p *models.Player, cmd Command) (*Result, error) {
	if cmd.CardID == "" {
		return nil, reject(CodeInvalidCommand, "cardInstanceId is required")
	}
	card, ok := p.HandCard(cmd.CardID)
	if !ok {
		return nil, reject(CodeTargetNotFound, "card %s is not in your hand", cmd.CardID)
	}
	if !isRent(card.Effect) {
		return nil, reject(CodeIllegalCardPlay, "%s is not a rent card", card.Name)
	}
	cmd.AsMoney = false
	return g.playCard(p, cmd)
}

func (g *Game) playRent(p *models.Player, card models.Card, cmd Command) (*Result, error) {
	color := cmd.ColorScope
	if color == "" {
		return nil, reject(CodeInvalidCommand, "colorScope is required")
	}
	if !inScope(card.Effect, color) {
		return nil, reject(CodeIllegalCardPlay, "%s cannot charge for %s", card.Name, color)
	}
	set := p.PropertySet(color)
	if set == nil || len(set.Members) == 0 {
		return nil, reject(CodeIllegalCardPlay, "you own no %s properties", color)
	}

	var targets []*models.Player
	if card.Effect == models.EffectRentAnyColor {
		target, err := g.opponent(p, cmd.TargetID)
		if err != nil {
			return nil, err
		}
		targets = []*models.Player{target}
	} else {
		targets = g.opponents(p)
	}

	amount := RentFor(set) * g.RentMultiplier
	g.RentMultiplier = 1
	return g.launch(p, card, PendingAction{
		Effect:      card.Effect,
		Amount:      amount,
		TargetColor: color,
	}, targets)
}

// settle moves cards worth at least owed from payer to receiver, or everything
// payable if the payer falls short. Bank cards go first, least valuable first,
// then (when the rules allow it) properties. No change is given.
func (g *Game) settle(payer, receiver *models.Player, owed int) Payment {
	pay := Payment{FromID: payer.ID, ToID: receiver.ID, Owed: owed, Cards: []string{}}
	if owed <= 0 {
		return pay
	}

	for _, c := range byValue(payer.Bank) {
		if pay.Paid >= owed {
			break
		}
		card, _ := payer.TakeFromBank(c.InstanceID)
		receiver.Bank = append(receiver.Bank, card)
		pay.Paid += card.Value
		pay.Cards = append(pay.Cards, card.InstanceID)
	}

	if pay.Paid < owed && g.Rules.SettleWithProperties {
		for _, c := range byValue(payer.Properties) {
			if pay.Paid >= owed {
				break
			}
			if c.IsBuilding() || c.Value == 0 {
				continue
			}
			card, _ := payer.TakeProperty(c.InstanceID)
			receiver.Properties = append(receiver.Properties, card)
			pay.Paid += card.Value
			pay.Cards = append(pay.Cards, card.InstanceID)
		}
	}

	g.logAction(payer.ID, ActionPayment, nil, receiver.ID, map[string]interface{}{
		"owed":  owed,
		"paid":  pay.Paid,
		"cards": pay.Cards,
	})
	return pay
}

// byValue returns a copy of cards ordered by ascending value, ties kept in place.
func byValue(cards []models.Card) []models.Card {
	out := models.CloneCards(cards)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}
