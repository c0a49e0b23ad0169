// internal/room/manager.go
package room

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/deck"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrNoSuchRoom is returned when addressing a room that does not exist.
var ErrNoSuchRoom = errors.New("no such room")

const maxRoomNameLength = 64

// Manager maps room names to running rooms. Rooms are created on first join and
// remove themselves once nobody is connected, after a grace period when a game
// is in progress.
type Manager struct {
	mu    sync.Mutex
	rooms map[string]*Room

	logger *logrus.Logger

	// Rules and Catalog apply to rooms created after they are set.
	Rules   game.Rules
	Catalog []models.CardTemplate

	// OnAction receives every committed history entry of every room. It is called
	// from the room goroutine and must not block.
	OnAction func(roomID string, gameID uuid.UUID, entry game.HistoryEntry)

	// Seed, when non-zero, makes every room's shuffles deterministic. Each room
	// mixes its name into the seed, so two rooms do not deal the same deck.
	Seed int64

	// ResponseTimeout accepts a pending action for a player who has not answered
	// in time. Zero waits forever.
	ResponseTimeout time.Duration

	// IdleTimeout is how long a game is kept once every player is disconnected.
	// Zero keeps it until somebody rejoins.
	IdleTimeout time.Duration
}

// Defaults for the room timers.
const (
	DefaultResponseTimeout = 30 * time.Second
	DefaultIdleTimeout     = 10 * time.Minute
)

// NewManager returns an empty manager using the standard catalog.
func NewManager(logger *logrus.Logger, rules game.Rules) *Manager {
	return &Manager{
		rooms:   make(map[string]*Room),
		logger:  logger,
		Rules:   rules,
		Catalog: deck.StandardCatalog(),

		ResponseTimeout: DefaultResponseTimeout,
		IdleTimeout:     DefaultIdleTimeout,
	}
}

func (m *Manager) newRNG(roomName string) *rand.Rand {
	if m.Seed != 0 {
		h := fnv.New64a()
		_, _ = h.Write([]byte(roomName))
		return rand.New(rand.NewSource(m.Seed ^ int64(h.Sum64())))
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// NormalizeName canonicalizes a room name; the empty string means invalid.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) > maxRoomNameLength {
		return ""
	}
	return name
}

func (m *Manager) getOrCreate(name string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[name]; ok {
		return r
	}
	r := newRoom(name, m)
	m.rooms[name] = r
	m.logger.WithField("room", name).Info("room created")
	return r
}

// Get returns a running room by name.
func (m *Manager) Get(name string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[NormalizeName(name)]
	return r, ok
}

// remove is the rooms' close hook. A newer room registered under the same name
// is left alone.
func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
	}
}

// Join admits persistentID into the named room, creating the room if needed.
func (m *Manager) Join(ctx context.Context, roomName, persistentID, displayName string, conn Connection) (*Room, JoinResult, error) {
	name := NormalizeName(roomName)
	if name == "" {
		return nil, "", &game.ActionError{Code: game.CodeInvalidCommand, Message: "invalid room name"}
	}
	if persistentID == "" {
		return nil, "", &game.ActionError{Code: game.CodeInvalidCommand, Message: "persistentId is required"}
	}
	// a room that closes between lookup and join is replaced once
	for attempt := 0; attempt < 2; attempt++ {
		r := m.getOrCreate(name)
		res, err := r.Join(ctx, persistentID, displayName, conn)
		if errors.Is(err, ErrRoomClosed) {
			m.remove(r)
			continue
		}
		return r, res, err
	}
	return nil, "", ErrRoomClosed
}

func (m *Manager) room(name string) (*Room, error) {
	r, ok := m.Get(name)
	if !ok {
		return nil, ErrNoSuchRoom
	}
	return r, nil
}

// Leave removes persistentID from the room.
func (m *Manager) Leave(ctx context.Context, roomName, persistentID string) error {
	r, err := m.room(roomName)
	if err != nil {
		return err
	}
	return r.Leave(ctx, persistentID)
}

// Disconnect marks the seat as away; it stays reserved for a rejoin.
func (m *Manager) Disconnect(ctx context.Context, roomName, persistentID string, conn Connection) error {
	r, err := m.room(roomName)
	if err != nil {
		return err
	}
	return r.Disconnect(ctx, persistentID, conn)
}

// StartGame starts the room's game on behalf of its host.
func (m *Manager) StartGame(ctx context.Context, roomName, persistentID string) error {
	r, err := m.room(roomName)
	if err != nil {
		return err
	}
	return r.StartGame(ctx, persistentID)
}

// Submit routes one command into the room's game.
func (m *Manager) Submit(ctx context.Context, roomName, persistentID string, cmd game.Command) (*game.Result, error) {
	r, err := m.room(roomName)
	if err != nil {
		return nil, err
	}
	return r.Submit(ctx, persistentID, cmd)
}

// Sync resends the full state to one seat.
func (m *Manager) Sync(ctx context.Context, roomName, persistentID string) error {
	r, err := m.room(roomName)
	if err != nil {
		return err
	}
	return r.Sync(ctx, persistentID)
}

// List summarizes every running room, sorted by name.
func (m *Manager) List(ctx context.Context) []Info {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(rooms))
	for _, r := range rooms {
		info, err := r.Info(ctx)
		if err != nil {
			continue
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Count is the number of running rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
