package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/jason-s-yu/dealroom/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeList struct {
	mu     sync.Mutex
	pushed map[string][][]byte
	fail   bool
}

func (f *fakeList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	if f.pushed == nil {
		f.pushed = make(map[string][][]byte)
	}
	for _, v := range values {
		f.pushed[key] = append(f.pushed[key], v.([]byte))
	}
	cmd.SetVal(int64(len(f.pushed[key])))
	return cmd
}

func (f *fakeList) items(key string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.pushed[key]...)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestRecordFromEntry(t *testing.T) {
	gameID := uuid.New()
	entry := game.HistoryEntry{
		Index:     4,
		Type:      game.ActionPlayProperty,
		PlayerID:  "p1",
		Card:      &models.Card{InstanceID: "property-brown-1"},
		Payload:   map[string]interface{}{"color": "brown"},
		Timestamp: 1700000000000,
	}

	rec := RecordFromEntry("lobby", gameID, entry)
	assert.Equal(t, "lobby", rec.RoomID)
	assert.Equal(t, gameID, rec.GameID)
	assert.Equal(t, 4, rec.ActionIndex)
	assert.Equal(t, "p1", rec.ActorID)
	assert.Equal(t, game.ActionPlayProperty, rec.ActionType)
	assert.Equal(t, "property-brown-1", rec.CardID)
	assert.Equal(t, "brown", rec.ActionPayload["color"])
}

func TestPublishActionWritesJSON(t *testing.T) {
	fake := &fakeList{}
	rec := ActionRecord{RoomID: "r", GameID: uuid.New(), ActionIndex: 1, ActionType: game.ActionGameStart}

	require.NoError(t, PublishAction(context.Background(), fake, "q", rec))

	items := fake.items("q")
	require.Len(t, items, 1)
	var decoded ActionRecord
	require.NoError(t, json.Unmarshal(items[0], &decoded))
	assert.Equal(t, rec.GameID, decoded.GameID)
	assert.Equal(t, game.ActionGameStart, decoded.ActionType)
}

func TestPublishActionReportsRedisError(t *testing.T) {
	fake := &fakeList{fail: true}
	err := PublishAction(context.Background(), fake, "q", ActionRecord{})
	assert.Error(t, err)
}

func TestPublisherDrainsInOrder(t *testing.T) {
	fake := &fakeList{}
	pub := NewPublisher(fake, "", 16, quietLogger())
	gameID := uuid.New()
	for i := 1; i <= 5; i++ {
		pub.PublishEntry("room", gameID, game.HistoryEntry{Index: i, Type: game.ActionDraw})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pub.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(fake.items(DefaultQueueName)) == 5 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for i, raw := range fake.items(DefaultQueueName) {
		var rec ActionRecord
		require.NoError(t, json.Unmarshal(raw, &rec))
		assert.Equal(t, i+1, rec.ActionIndex)
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	pub := NewPublisher(&fakeList{}, "q", 1, quietLogger())
	assert.True(t, pub.Enqueue(ActionRecord{ActionIndex: 1}))
	assert.False(t, pub.Enqueue(ActionRecord{ActionIndex: 2}))
}

func TestPublisherFlushesOnShutdown(t *testing.T) {
	fake := &fakeList{}
	pub := NewPublisher(fake, "q", 4, quietLogger())
	pub.Enqueue(ActionRecord{ActionIndex: 1})
	pub.Enqueue(ActionRecord{ActionIndex: 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pub.Run(ctx)

	assert.Len(t, fake.items("q"), 2)
}
