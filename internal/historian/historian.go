// internal/historian/historian.go pops action records off the Redis queue and
// persists them to PostgreSQL in batches.
package historian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/dealroom/internal/cache"
	"github.com/jason-s-yu/dealroom/internal/database"
	"github.com/jason-s-yu/dealroom/internal/game"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Popper is the part of the Redis client the historian reads with.
type Popper interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Store persists batches of action records.
type Store interface {
	SaveBatch(ctx context.Context, records []cache.ActionRecord) error
	MarkAbandoned(ctx context.Context, gameID uuid.UUID) error
}

// Config tunes the service. Zero values fall back to defaults.
type Config struct {
	Queue         string
	BatchSize     int
	FlushDelay    time.Duration
	Inactivity    time.Duration // silence after which an unfinished game is abandoned
	SweepInterval time.Duration
	PopTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Queue == "" {
		c.Queue = cache.DefaultQueueName
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.FlushDelay <= 0 {
		c.FlushDelay = 500 * time.Millisecond
	}
	if c.Inactivity <= 0 {
		c.Inactivity = 10 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = 3 * time.Second
	}
	return c
}

// Service batches records from the queue into the store and abandons games that
// go quiet before finishing.
type Service struct {
	popper Popper
	store  Store
	cfg    Config
	logger *logrus.Logger

	mu           sync.Mutex
	batch        []cache.ActionRecord
	lastActivity map[uuid.UUID]time.Time

	now func() time.Time
}

// NewService wires a historian around a queue and a store.
func NewService(popper Popper, store Store, cfg Config, logger *logrus.Logger) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		popper:       popper,
		store:        store,
		cfg:          cfg,
		logger:       logger,
		batch:        make([]cache.ActionRecord, 0, cfg.BatchSize),
		lastActivity: make(map[uuid.UUID]time.Time),
		now:          time.Now,
	}
}

// Run blocks until ctx is cancelled, then flushes whatever is still buffered.
func (s *Service) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.readLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.inactivityLoop(ctx)
	}()

	s.logger.WithField("queue", s.cfg.Queue).Info("historian started")
	wg.Wait()

	// the run context is gone; give the final flush its own deadline
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Flush(flushCtx)
	s.logger.Info("historian stopped")
}

func (s *Service) readLoop(ctx context.Context) {
	lastFlush := s.now()
	for {
		if ctx.Err() != nil {
			return
		}
		if s.now().Sub(lastFlush) >= s.cfg.FlushDelay {
			s.Flush(ctx)
			lastFlush = s.now()
		}

		res, err := s.popper.BLPop(ctx, s.cfg.PopTimeout, s.cfg.Queue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			s.logger.WithError(err).Error("BLPop failed")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		// res[0] is the queue name, res[1] the payload
		if len(res) < 2 {
			continue
		}
		if err := s.Handle(ctx, res[1]); err != nil {
			s.logger.WithError(err).Warn("invalid action record")
		}
	}
}

// Handle decodes one queue payload, records activity and buffers it. A full
// batch is flushed immediately.
func (s *Service) Handle(ctx context.Context, payload string) error {
	var rec cache.ActionRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return err
	}
	if rec.GameID == uuid.Nil {
		return fmt.Errorf("record without game id")
	}

	s.mu.Lock()
	if rec.ActionType == game.ActionGameEnd {
		delete(s.lastActivity, rec.GameID)
	} else {
		s.lastActivity[rec.GameID] = s.now()
	}
	s.batch = append(s.batch, rec)
	full := len(s.batch) >= s.cfg.BatchSize
	s.mu.Unlock()

	if full {
		s.Flush(ctx)
	}
	return nil
}

// Flush writes the buffered batch. A failed batch is put back in front of
// anything buffered since, so it is retried on the next flush.
func (s *Service) Flush(ctx context.Context) {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	pending := s.batch
	s.batch = make([]cache.ActionRecord, 0, s.cfg.BatchSize)
	s.mu.Unlock()

	if err := s.store.SaveBatch(ctx, pending); err != nil {
		s.logger.WithError(err).WithField("count", len(pending)).Error("flush failed")
		s.mu.Lock()
		s.batch = append(pending, s.batch...)
		s.mu.Unlock()
		return
	}
	s.logger.WithField("count", len(pending)).Debug("flushed actions")
}

// Pending is the number of buffered, unflushed records.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batch)
}

func (s *Service) inactivityLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepInactive(ctx)
		}
	}
}

// SweepInactive abandons every tracked game that has been quiet longer than
// the inactivity window and returns their IDs.
func (s *Service) SweepInactive(ctx context.Context) []uuid.UUID {
	now := s.now()
	var stale []uuid.UUID
	s.mu.Lock()
	for id, last := range s.lastActivity {
		if now.Sub(last) > s.cfg.Inactivity {
			stale = append(stale, id)
			delete(s.lastActivity, id)
		}
	}
	s.mu.Unlock()

	for _, id := range stale {
		if err := s.store.MarkAbandoned(ctx, id); err != nil {
			s.logger.WithError(err).WithField("game", id).Error("failed to mark game abandoned")
			continue
		}
		s.logger.WithField("game", id).Info("marked game abandoned due to inactivity")
	}
	return stale
}

// PGStore is the PostgreSQL Store.
type PGStore struct {
	Pool *pgxpool.Pool
}

// SaveBatch inserts the records in one transaction.
func (p *PGStore) SaveBatch(ctx context.Context, records []cache.ActionRecord) error {
	return database.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			if err := insertActionTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("insertActionTx: %w", err)
			}
		}
		return nil
	})
}

// MarkAbandoned flips an in-progress game to abandoned.
func (p *PGStore) MarkAbandoned(ctx context.Context, gameID uuid.UUID) error {
	return database.BeginTxFunc(ctx, p.Pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE games
			SET status = 'abandoned', end_time = NOW()
			WHERE id = $1 AND status = 'in_progress'
		`, gameID)
		return err
	})
}

func insertActionTx(ctx context.Context, tx pgx.Tx, rec cache.ActionRecord) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO games (id, room_id, status, start_time)
		VALUES ($1, $2, 'in_progress', NOW())
		ON CONFLICT (id) DO NOTHING
	`, rec.GameID, rec.RoomID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(rec.ActionPayload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO game_actions (
			game_id, action_index, actor_id, action_type, card_id, target_id, action_payload, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (game_id, action_index) DO NOTHING
	`, rec.GameID, rec.ActionIndex, rec.ActorID, rec.ActionType, rec.CardID, rec.Target, payload, time.UnixMilli(rec.Timestamp))
	if err != nil {
		return err
	}

	if rec.ActionType == game.ActionGameEnd {
		_, err = tx.Exec(ctx, `
			UPDATE games
			SET status = 'completed', winner_id = $2, end_time = NOW()
			WHERE id = $1
		`, rec.GameID, rec.ActorID)
	}
	return err
}
