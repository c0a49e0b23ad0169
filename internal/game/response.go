// internal/game/response.go
package game

import (
	"github.com/jason-s-yu/dealroom/internal/models"
)

// PendingAction is a targeting action waiting for its target (or, after a block,
// its initiator) to decide whether to play a Just Say No.
type PendingAction struct {
	Effect       models.ActionEffect `json:"effect"`
	Card         models.Card         `json:"card"`
	InitiatorID  string              `json:"initiatorId"`
	TargetID     string              `json:"targetId"`
	AwaitingID   string              `json:"awaitingId"` // the player who must respond
	Blocked      bool                `json:"blocked"`    // an odd number of Just Say Nos so far
	Amount       int                 `json:"amount,omitempty"`
	TargetCardID string              `json:"targetCardId,omitempty"`
	OwnCardID    string              `json:"ownCardId,omitempty"`
	TargetColor  models.Color        `json:"targetColor,omitempty"`
	Remaining    []string            `json:"remaining,omitempty"` // targets still to be resolved
}

func (pa PendingAction) clone() PendingAction {
	out := pa
	out.Card = models.CloneCards([]models.Card{pa.Card})[0]
	out.Remaining = append([]string(nil), pa.Remaining...)
	return out
}

// launch discards the played card and queues its effect against each target in
// order. Every target answers in turn, whatever they hold.
func (g *Game) launch(p *models.Player, card models.Card, pa PendingAction, targets []*models.Player) (*Result, error) {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}

	g.discard(card)
	actionType := ActionPlayAction
	if isRent(card.Effect) {
		actionType = ActionChargeRent
	}
	payload := map[string]interface{}{"targets": ids}
	if pa.Amount > 0 {
		payload["amount"] = pa.Amount
	}
	if pa.TargetColor != "" {
		payload["color"] = pa.TargetColor
	}
	target := ""
	if len(ids) == 1 {
		target = ids[0]
	}
	g.logAction(p.ID, actionType, &card, target, payload)

	pa.InitiatorID = p.ID
	pa.Card = card
	pa.Remaining = ids

	g.advancePending(pa)
	return &Result{Card: &card, Effect: card.Effect, Amount: pa.Amount, Pending: g.Pending != nil}, nil
}

// advancePending parks pa on the next target still in the game, or clears the
// pending action once every target has answered.
func (g *Game) advancePending(pa PendingAction) {
	for len(pa.Remaining) > 0 && g.Phase != PhaseEnded {
		targetID := pa.Remaining[0]
		pa.Remaining = pa.Remaining[1:]
		if g.playerByID(targetID) == nil {
			continue
		}
		pa.TargetID = targetID
		pa.AwaitingID = targetID
		pa.Blocked = false
		parked := pa.clone()
		g.Pending = &parked
		return
	}
	g.Pending = nil
}

// applyTargeted carries out pa against pa.TargetID.
func (g *Game) applyTargeted(pa PendingAction) []Payment {
	initiator := g.playerByID(pa.InitiatorID)
	target := g.playerByID(pa.TargetID)
	if initiator == nil || target == nil {
		return nil
	}

	var payments []Payment
	switch {
	case isRent(pa.Effect), pa.Effect == models.EffectCollect5M, pa.Effect == models.EffectCollect2M:
		payments = append(payments, g.settle(target, initiator, pa.Amount))
	case pa.Effect == models.EffectStealSingle:
		if stealProperty(target, initiator, pa.TargetCardID) {
			g.logAction(initiator.ID, ActionTransfer, nil, target.ID, map[string]interface{}{"cards": []string{pa.TargetCardID}})
		}
	case pa.Effect == models.EffectSwapProperty:
		theirs, okTheirs := target.TakeProperty(pa.TargetCardID)
		mine, okMine := initiator.TakeProperty(pa.OwnCardID)
		if okTheirs {
			initiator.Properties = append(initiator.Properties, theirs)
		}
		if okMine {
			target.Properties = append(target.Properties, mine)
		}
		g.logAction(initiator.ID, ActionTransfer, nil, target.ID, map[string]interface{}{
			"received": pa.TargetCardID,
			"given":    pa.OwnCardID,
		})
	case pa.Effect == models.EffectStealFullSet:
		moved, discarded := g.stealSet(target, initiator, pa.TargetColor)
		payload := map[string]interface{}{"cards": moved, "color": pa.TargetColor}
		if len(discarded) > 0 {
			payload["discarded"] = discarded
		}
		g.logAction(initiator.ID, ActionTransfer, nil, target.ID, payload)
	}
	g.checkWin(initiator, target)
	return payments
}

func (g *Game) respond(cmd Command) (*Result, error) {
	pa := g.Pending
	if pa == nil {
		return nil, reject(CodeIllegalCardPlay, "there is no action to respond to")
	}
	if cmd.PlayerID != pa.AwaitingID {
		return nil, ErrNotYourTurn
	}
	responder := g.playerByID(cmd.PlayerID)
	res := &Result{Type: CmdRespond, PlayerID: responder.ID, Effect: pa.Effect}

	if cmd.Block {
		if cmd.CardID == "" {
			return nil, reject(CodeInvalidCommand, "cardInstanceId is required to block")
		}
		card, ok := responder.HandCard(cmd.CardID)
		if !ok {
			return nil, reject(CodeTargetNotFound, "card %s is not in your hand", cmd.CardID)
		}
		if card.Effect != models.EffectBlockAction {
			return nil, reject(CodeIllegalCardPlay, "%s cannot block an action", card.Name)
		}
		responder.TakeFromHand(card.InstanceID)
		g.discard(card)
		pa.Blocked = !pa.Blocked

		otherID := pa.TargetID
		if pa.AwaitingID == pa.TargetID {
			otherID = pa.InitiatorID
		}
		g.logAction(responder.ID, ActionBlock, &card, otherID, map[string]interface{}{"effect": pa.Effect})
		res.Card = &card
		res.Blocked = pa.Blocked

		if g.playerByID(otherID) != nil {
			pa.AwaitingID = otherID
			res.Pending = true
			return res, nil
		}
	} else {
		g.logAction(responder.ID, ActionAccept, nil, "", map[string]interface{}{"effect": pa.Effect})
	}

	settled := pa.clone()
	g.Pending = nil
	res.Blocked = settled.Blocked
	if settled.Blocked {
		g.logAction(settled.InitiatorID, ActionNullified, &settled.Card, settled.TargetID, nil)
	} else {
		res.Payments = g.applyTargeted(settled)
	}
	g.advancePending(settled)
	res.Pending = g.Pending != nil
	res.WinnerID = g.WinnerID
	return res, nil
}

// dropFromPending forgets a departing player. If they started the action it is
// abandoned; if they were its current target, resolution moves on.
func (g *Game) dropFromPending(playerID string) {
	pa := g.Pending
	if pa.InitiatorID == playerID {
		g.Pending = nil
		return
	}
	remaining := pa.Remaining[:0:0]
	for _, id := range pa.Remaining {
		if id != playerID {
			remaining = append(remaining, id)
		}
	}
	pa.Remaining = remaining
	if pa.TargetID == playerID {
		next := pa.clone()
		g.Pending = nil
		g.advancePending(next)
	}
}
