// internal/game/game.go
package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/models"
)

// Phase is the lifecycle stage of a game.
type Phase string

const (
	PhaseSetup   Phase = "setup"
	PhasePlaying Phase = "playing"
	PhaseEnded   Phase = "ended"
)

// TurnPhase is the sub-stage of the current player's turn.
type TurnPhase string

const (
	TurnDraw   TurnPhase = "draw"
	TurnAction TurnPhase = "action"
)

// Game is the authoritative state of one room's match. It is not safe for
// concurrent use; the owning room serializes every call.
type Game struct {
	ID    uuid.UUID
	Rules Rules

	Players     []*models.Player // turn order
	Deck        []models.Card    // draw from the front
	DiscardPile []models.Card

	CurrentPlayerIndex   int
	ActionsTakenThisTurn int
	Phase                Phase
	TurnPhase            TurnPhase
	Turn                 int // increments each turn
	RentMultiplier       int // set by Double The Rent, consumed by the next rent
	WinnerID             string

	// Pending is a targeting action waiting for its target to accept or block.
	Pending *PendingAction

	History []HistoryEntry

	// OnAction receives every history entry once the transition that produced it has committed.
	OnAction func(entry HistoryEntry)

	totalCards int
	rng        *rand.Rand
	now        func() time.Time
}

// NewGame builds a game in the setup phase around an already shuffled deck.
func NewGame(deck []models.Card, rules Rules, rng *rand.Rand) *Game {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Game{
		ID:             uuid.New(),
		Rules:          rules,
		Players:        []*models.Player{},
		Deck:           models.CloneCards(deck),
		DiscardPile:    []models.Card{},
		Phase:          PhaseSetup,
		TurnPhase:      TurnDraw,
		RentMultiplier: 1,
		totalCards:     len(deck),
		rng:            rng,
		now:            time.Now,
	}
}

// SetClock overrides the time source used for history timestamps.
func (g *Game) SetClock(now func() time.Time) {
	g.now = now
}

// TotalCards is the number of card instances the game was created with.
func (g *Game) TotalCards() int {
	return g.totalCards
}

// AddPlayer seats a new player. Only legal during setup.
func (g *Game) AddPlayer(id, name string) (*models.Player, error) {
	if g.Phase != PhaseSetup {
		return nil, reject(CodeInvalidCommand, "game already started")
	}
	if g.playerByID(id) != nil {
		return nil, reject(CodeInvalidCommand, "player %s already seated", id)
	}
	if len(g.Players) >= g.Rules.MaxPlayers {
		return nil, ErrRoomFull
	}
	p := models.NewPlayer(id, name)
	g.Players = append(g.Players, p)
	return p, nil
}

// Start deals the opening hands and begins the first player's turn.
func (g *Game) Start() error {
	if g.Phase == PhaseEnded {
		return ErrGameAlreadyEnded
	}
	if g.Phase != PhaseSetup {
		return reject(CodeInvalidCommand, "game already started")
	}
	if len(g.Players) < g.Rules.MinPlayers {
		return reject(CodeTooFewPlayers, "need at least %d players, have %d", g.Rules.MinPlayers, len(g.Players))
	}
	mark := len(g.History)

	g.Phase = PhasePlaying
	g.logAction("", ActionGameStart, nil, "", map[string]interface{}{"players": len(g.Players), "deck": len(g.Deck)})
	for _, p := range g.Players {
		g.draw(p, g.Rules.InitialHand)
	}
	g.CurrentPlayerIndex = 0
	g.beginTurn()

	g.publish(mark)
	return nil
}

// Apply validates and executes one player command. On error the game is left
// exactly as it was.
func (g *Game) Apply(cmd Command) (*Result, error) {
	next := g.clone()
	mark := len(next.History)
	res, err := next.dispatch(cmd)
	if err != nil {
		return nil, err
	}
	*g = *next
	g.publish(mark)
	return res, nil
}

// RemovePlayer takes a player out of the game. During play their cards go to the
// discard pile and the last player standing wins.
func (g *Game) RemovePlayer(playerID string) (*Result, error) {
	next := g.clone()
	mark := len(next.History)
	res, err := next.removePlayer(playerID)
	if err != nil {
		return nil, err
	}
	*g = *next
	g.publish(mark)
	return res, nil
}

func (g *Game) dispatch(cmd Command) (*Result, error) {
	if g.Phase == PhaseEnded {
		return nil, ErrGameAlreadyEnded
	}
	if g.Phase != PhasePlaying {
		return nil, reject(CodeInvalidCommand, "game has not started")
	}
	if g.playerByID(cmd.PlayerID) == nil {
		return nil, reject(CodeTargetNotFound, "player %s is not in this game", cmd.PlayerID)
	}
	if cmd.Type == CmdRespond {
		return g.respond(cmd)
	}

	p := g.CurrentPlayer()
	if p.ID != cmd.PlayerID {
		return nil, ErrNotYourTurn
	}
	if g.Pending != nil {
		return nil, ErrAwaitingResponse
	}
	if g.TurnPhase == TurnDraw && cmd.Type != CmdDrawCard {
		return nil, reject(CodeIllegalCardPlay, "draw before acting")
	}

	switch cmd.Type {
	case CmdDrawCard:
		return g.drawCard(p)
	case CmdPlayCard:
		return g.playCard(p, cmd)
	case CmdChargeRent:
		return g.chargeRent(p, cmd)
	case CmdFlipProperty:
		return g.flipProperty(p, cmd)
	case CmdDiscardCard:
		return g.discardCard(p, cmd)
	case CmdEndTurn:
		return g.endTurn(p)
	default:
		return nil, reject(CodeInvalidCommand, "unknown command %q", cmd.Type)
	}
}

// CurrentPlayer is the player whose turn it is, or nil outside of play.
func (g *Game) CurrentPlayer() *models.Player {
	if g.CurrentPlayerIndex < 0 || g.CurrentPlayerIndex >= len(g.Players) {
		return nil
	}
	return g.Players[g.CurrentPlayerIndex]
}

// Player returns the seated player with the given ID.
func (g *Game) Player(id string) *models.Player {
	return g.playerByID(id)
}

func (g *Game) playerByID(id string) *models.Player {
	for _, p := range g.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (g *Game) playerIndex(id string) int {
	for i, p := range g.Players {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// opponents returns every player except p, in turn order starting after p.
func (g *Game) opponents(p *models.Player) []*models.Player {
	idx := g.playerIndex(p.ID)
	out := make([]*models.Player, 0, len(g.Players)-1)
	for i := 1; i < len(g.Players); i++ {
		out = append(out, g.Players[(idx+i)%len(g.Players)])
	}
	return out
}

// clone deep-copies all card locations. Callbacks, rng and clock are shared.
func (g *Game) clone() *Game {
	c := *g
	c.Players = make([]*models.Player, len(g.Players))
	for i, p := range g.Players {
		c.Players[i] = p.Clone()
	}
	c.Deck = models.CloneCards(g.Deck)
	c.DiscardPile = models.CloneCards(g.DiscardPile)
	if g.Pending != nil {
		pa := g.Pending.clone()
		c.Pending = &pa
	}
	// cap the shared history so appends in the clone never write into our backing array
	c.History = g.History[:len(g.History):len(g.History)]
	return &c
}

func (g *Game) endGame(winnerID string) {
	g.Phase = PhaseEnded
	g.WinnerID = winnerID
	g.Pending = nil
	g.logAction(winnerID, ActionGameEnd, nil, "", nil)
}

// checkWin ends the game in favour of the first listed player holding enough
// complete sets. The acting player is listed first.
func (g *Game) checkWin(players ...*models.Player) bool {
	if g.Phase == PhaseEnded {
		return true
	}
	for _, p := range players {
		if p != nil && p.CompleteSetCount() >= g.Rules.SetsToWin {
			g.endGame(p.ID)
			return true
		}
	}
	return false
}
