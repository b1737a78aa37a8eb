package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "mindgraph:"

// Store implements ports.CheckpointStore using Redis.
//
// Each thread owns a hash of checkpoints keyed by sequence number and a
// sorted set of those numbers. A global sorted set indexes the threads.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for threads. It is refreshed on every save.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Client exposes the underlying client so a Locker can share the connection pool.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) checkpointsKey(threadID string) string {
	return s.prefix + "checkpoints:" + threadID
}

func (s *Store) seqKey(threadID string) string {
	return s.prefix + "seq:" + threadID
}

func (s *Store) indexKey() string {
	return s.prefix + "threads"
}

// saveScript writes a checkpoint and its index entries atomically. A slot
// counts as taken only once its sequence is indexed, so a body without an
// index entry is an unacknowledged write and is replaced.
//
// KEYS: checkpoints hash, seq index, thread index.
// ARGV: seq, body, thread score, thread id, ttl in milliseconds.
var saveScript = backend.NewScript(`
	if redis.call("zscore", KEYS[2], ARGV[1]) then
		return 0
	end
	redis.call("hset", KEYS[1], ARGV[1], ARGV[2])
	redis.call("zadd", KEYS[2], ARGV[1], ARGV[1])
	redis.call("zadd", KEYS[3], ARGV[3], ARGV[4])
	local ttl = tonumber(ARGV[5])
	if ttl > 0 then
		redis.call("pexpire", KEYS[1], ttl)
		redis.call("pexpire", KEYS[2], ttl)
	end
	return 1
`)

// Save appends a checkpoint. The (thread, seq) slot is write-once.
func (s *Store) Save(ctx context.Context, cp *domain.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}

	field := strconv.FormatInt(cp.Seq, 10)
	keys := []string{s.checkpointsKey(cp.ThreadID), s.seqKey(cp.ThreadID), s.indexKey()}
	created, err := saveScript.Run(ctx, s.client, keys,
		field, data, score, cp.ThreadID, s.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	if created == 0 {
		return domain.ErrCheckpointExists
	}
	return nil
}

// Load retrieves the latest checkpoint of a thread.
func (s *Store) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	seqs, err := s.client.ZRevRange(ctx, s.seqKey(threadID), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(seqs) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	val, err := s.client.HGet(ctx, s.checkpointsKey(threadID), seqs[0]).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrThreadNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal([]byte(val), &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	return &cp, nil
}

// History lists the checkpoints of a thread in sequence order.
func (s *Store) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	seqs, err := s.client.ZRange(ctx, s.seqKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint index: %w", err)
	}
	if len(seqs) == 0 {
		return nil, domain.ErrThreadNotFound
	}

	vals, err := s.client.HMGet(ctx, s.checkpointsKey(threadID), seqs...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	metas := make([]domain.CheckpointMeta, 0, len(vals))
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var cp domain.Checkpoint
		if err := json.Unmarshal([]byte(raw), &cp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
		}
		metas = append(metas, cp.Meta())
	}
	return metas, nil
}

// Delete removes every checkpoint of a thread.
func (s *Store) Delete(ctx context.Context, threadID string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.checkpointsKey(threadID), s.seqKey(threadID))
	pipe.ZRem(ctx, s.indexKey(), threadID)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns the active threads, pruning expired entries from the index.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())

	err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to prune expired threads: %w", err)
	}

	threads, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	return threads, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
