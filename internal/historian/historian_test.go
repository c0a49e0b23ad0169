// internal/historian/historian_test.go
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/cache"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// chanPopper feeds BLPop from a channel.
type chanPopper struct {
	queue chan string
}

func (c *chanPopper) BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	select {
	case payload := <-c.queue:
		cmd.SetVal([]string{keys[0], payload})
	case <-time.After(timeout):
		cmd.SetErr(redis.Nil)
	case <-ctx.Done():
		cmd.SetErr(ctx.Err())
	}
	return cmd
}

type memStore struct {
	mu        sync.Mutex
	saved     []cache.ActionRecord
	abandoned []uuid.UUID
	failNext  bool
}

func (m *memStore) SaveBatch(ctx context.Context, records []cache.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext {
		m.failNext = false
		return errors.New("db unavailable")
	}
	m.saved = append(m.saved, records...)
	return nil
}

func (m *memStore) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned = append(m.abandoned, gameID)
	return nil
}

func (m *memStore) savedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func newTestService(store Store, popper Popper, cfg Config) *Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewService(popper, store, cfg, logger)
}

func encode(t *testing.T, rec cache.ActionRecord) string {
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data)
}

func TestHandleFlushesFullBatch(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &chanPopper{}, Config{BatchSize: 3})
	gameID := uuid.New()
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: i, ActionType: game.ActionDraw})))
	}
	assert.Equal(t, 0, store.savedCount())
	assert.Equal(t, 2, svc.Pending())

	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: 3, ActionType: game.ActionDraw})))
	assert.Equal(t, 3, store.savedCount())
	assert.Equal(t, 0, svc.Pending())
}

func TestHandleRejectsGarbage(t *testing.T) {
	svc := newTestService(&memStore{}, &chanPopper{}, Config{})
	assert.Error(t, svc.Handle(context.Background(), "{not json"))
	assert.Error(t, svc.Handle(context.Background(), `{"action_type":"draw"}`))
	assert.Equal(t, 0, svc.Pending())
}

func TestFailedFlushIsRetried(t *testing.T) {
	store := &memStore{failNext: true}
	svc := newTestService(store, &chanPopper{}, Config{BatchSize: 100})
	ctx := context.Background()
	gameID := uuid.New()

	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: 1, ActionType: game.ActionGameStart})))
	svc.Flush(ctx)
	assert.Equal(t, 1, svc.Pending())

	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: 2, ActionType: game.ActionDraw})))
	svc.Flush(ctx)
	require.Equal(t, 2, store.savedCount())
	assert.Equal(t, 1, store.saved[0].ActionIndex)
	assert.Equal(t, 2, store.saved[1].ActionIndex)
}

func TestSweepInactiveAbandonsQuietGames(t *testing.T) {
	store := &memStore{}
	svc := newTestService(store, &chanPopper{}, Config{Inactivity: time.Minute})
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	quiet, finished, busy := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: quiet, ActionIndex: 1, ActionType: game.ActionGameStart})))
	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: finished, ActionIndex: 1, ActionType: game.ActionGameStart})))
	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: finished, ActionIndex: 2, ActionType: game.ActionGameEnd})))

	clock = clock.Add(2 * time.Minute)
	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: busy, ActionIndex: 1, ActionType: game.ActionGameStart})))

	stale := svc.SweepInactive(ctx)
	assert.Equal(t, []uuid.UUID{quiet}, stale)
	assert.Equal(t, []uuid.UUID{quiet}, store.abandoned)

	// already swept
	assert.Empty(t, svc.SweepInactive(ctx))
}

func TestRunDrainsQueueAndFlushesOnStop(t *testing.T) {
	store := &memStore{}
	popper := &chanPopper{queue: make(chan string, 8)}
	svc := newTestService(store, popper, Config{BatchSize: 100, FlushDelay: time.Hour, PopTimeout: 10 * time.Millisecond})
	gameID := uuid.New()
	for i := 1; i <= 4; i++ {
		popper.queue <- encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: i, ActionType: game.ActionDraw})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.Pending() == 4 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, 4, store.savedCount())
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) SaveBatch(ctx context.Context, records []cache.ActionRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *mockStore) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	args := m.Called(ctx, gameID)
	return args.Error(0)
}

func TestSweepKeepsGoingWhenStoreFails(t *testing.T) {
	store := &mockStore{}
	svc := newTestService(store, &chanPopper{}, Config{BatchSize: 100, Inactivity: time.Second})
	clock := time.Unix(1700000000, 0)
	svc.now = func() time.Time { return clock }
	ctx := context.Background()

	gameID := uuid.New()
	require.NoError(t, svc.Handle(ctx, encode(t, cache.ActionRecord{GameID: gameID, ActionIndex: 1, ActionType: game.ActionGameStart})))

	store.On("MarkAbandoned", mock.Anything, gameID).Return(errors.New("db down")).Once()
	clock = clock.Add(time.Minute)
	assert.Equal(t, []uuid.UUID{gameID}, svc.SweepInactive(ctx))
	store.AssertExpectations(t)

	store.On("SaveBatch", mock.Anything, mock.MatchedBy(func(recs []cache.ActionRecord) bool {
		return len(recs) == 1 && recs[0].GameID == gameID
	})).Return(nil).Once()
	svc.Flush(ctx)
	store.AssertExpectations(t)
	assert.Equal(t, 0, svc.Pending())
}
