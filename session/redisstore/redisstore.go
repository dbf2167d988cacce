// Package redisstore provides a session.Store backed by Redis, grounded on
// the pack's Redis session service: one sorted set per key, JSON-encoded
// members scored by a monotonically increasing sequence so ZRange preserves
// append order even when two entries share a timestamp.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/agentcore-go/agentcore/session"
)

const defaultKeyPrefix = "agentcore:session:"

// Options configures the Redis-backed Store.
type Options struct {
	Client redis.UniversalClient
	// Key identifies the session whose entries this Store records; required.
	Key string
	// KeyPrefix namespaces the Redis key (default "agentcore:session:").
	KeyPrefix string
	// EntryLimit caps the sorted set to its most recent N entries via
	// ZRemRangeByRank, mirroring the pack's sessionEventLimit trim; 0 means
	// unbounded.
	EntryLimit int64
}

// Store implements session.Store over a single Redis sorted set.
type Store struct {
	client     redis.UniversalClient
	key        string
	entryLimit int64
	seq        int64
}

// New returns a ready-to-use Store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redisstore: client is required")
	}
	if opts.Key == "" {
		return nil, errors.New("redisstore: key is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	key := prefix + opts.Key
	// Continue the sequence after any entries already stored under key.
	last, err := opts.Client.ZRevRangeWithScores(context.Background(), key, 0, 0).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redisstore: read last sequence: %w", err)
	}
	var seq int64
	if len(last) > 0 {
		seq = int64(last[0].Score)
	}
	return &Store{
		client:     opts.Client,
		key:        key,
		entryLimit: opts.EntryLimit,
		seq:        seq,
	}, nil
}

// Append implements session.Store. Each entry is stored as a sorted-set
// member scored by an ever-increasing sequence number, so Load's ZRange
// reproduces append order regardless of wall-clock resolution or skew.
func (s *Store) Append(ctx context.Context, entry session.Entry) error {
	payload, err := session.EncodeEntry(entry)
	if err != nil {
		return fmt.Errorf("redisstore: encode entry: %w", err)
	}

	score := float64(atomic.AddInt64(&s.seq, 1))
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, s.key, redis.Z{Score: score, Member: payload})
	if s.entryLimit > 0 {
		pipe.ZRemRangeByRank(ctx, s.key, 0, -(s.entryLimit + 1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: append: %w", err)
	}
	return nil
}

// Load implements session.Store, returning every retained entry in append
// order (oldest first).
func (s *Store) Load(ctx context.Context) (session.Tree, error) {
	members, err := s.client.ZRangeByScore(ctx, s.key, &redis.ZRangeBy{Min: "-inf", Max: "+inf"}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return session.Tree{}, fmt.Errorf("redisstore: zrangebyscore: %w", err)
	}
	var tree session.Tree
	for _, raw := range members {
		entry, err := session.DecodeEntry([]byte(raw))
		if err != nil {
			return session.Tree{}, fmt.Errorf("redisstore: decode entry: %w", err)
		}
		tree.Entries = append(tree.Entries, entry)
	}
	return tree, nil
}
