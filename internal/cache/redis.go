// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultQueueName is the Redis list the historian drains.
const DefaultQueueName = "dealroom_actions"

// ActionRecord is one history entry on its way to the historian.
type ActionRecord struct {
	RoomID        string                 `json:"room_id"`
	GameID        uuid.UUID              `json:"game_id"`
	ActionIndex   int                    `json:"action_index"`
	ActorID       string                 `json:"actor_id,omitempty"`
	ActionType    string                 `json:"action_type"`
	Target        string                 `json:"target,omitempty"`
	CardID        string                 `json:"card_id,omitempty"`
	ActionPayload map[string]interface{} `json:"action_payload,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
}

// RecordFromEntry flattens a game history entry into a queue record.
func RecordFromEntry(roomID string, gameID uuid.UUID, entry game.HistoryEntry) ActionRecord {
	rec := ActionRecord{
		RoomID:        roomID,
		GameID:        gameID,
		ActionIndex:   entry.Index,
		ActorID:       entry.PlayerID,
		ActionType:    entry.Type,
		Target:        entry.Target,
		ActionPayload: entry.Payload,
		Timestamp:     entry.Timestamp,
	}
	if entry.Card != nil {
		rec.CardID = entry.Card.InstanceID
	}
	return rec
}

// ConnectRedis opens a client and pings it.
func ConnectRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// ListPusher is the part of the Redis client the publisher uses.
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Publisher queues action records and pushes them to Redis from its own
// goroutine, so rooms never wait on the network.
type Publisher struct {
	rdb     ListPusher
	queue   string
	records chan ActionRecord
	logger  *logrus.Logger
}

// NewPublisher returns a publisher with room for buffer unsent records.
func NewPublisher(rdb ListPusher, queue string, buffer int, logger *logrus.Logger) *Publisher {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &Publisher{
		rdb:     rdb,
		queue:   queue,
		records: make(chan ActionRecord, buffer),
		logger:  logger,
	}
}

// Enqueue hands a record to the publisher without blocking. Records are dropped
// (and logged) when the buffer is full.
func (p *Publisher) Enqueue(rec ActionRecord) bool {
	select {
	case p.records <- rec:
		return true
	default:
		p.logger.WithFields(logrus.Fields{"game": rec.GameID, "index": rec.ActionIndex}).Warn("historian queue full, dropping action")
		return false
	}
}

// PublishEntry is shaped for room.Manager.OnAction.
func (p *Publisher) PublishEntry(roomID string, gameID uuid.UUID, entry game.HistoryEntry) {
	p.Enqueue(RecordFromEntry(roomID, gameID, entry))
}

// Run pushes queued records until ctx is done, then drains what is left.
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case rec := <-p.records:
			p.push(ctx, rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-p.records:
					p.push(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) push(ctx context.Context, rec ActionRecord) {
	if err := PublishAction(ctx, p.rdb, p.queue, rec); err != nil {
		p.logger.WithError(err).Error("failed to publish action")
	}
}

// PublishAction serializes one record and appends it to the queue.
func PublishAction(ctx context.Context, rdb ListPusher, queue string, rec ActionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal ActionRecord: %w", err)
	}
	if err := rdb.RPush(ctx, queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", queue, err)
	}
	return nil
}
