// Package session persists per-connection chat histories in Redis.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces history keys: "username:<sid>".
const KeyPrefix = "username:"

// maxTxRetries bounds optimistic-lock retries in Append.
const maxTxRetries = 10

// ErrConflict is returned when Append keeps losing the optimistic lock.
var ErrConflict = errors.New("session history changed concurrently")

// Turn is one question and its answer.
type Turn struct {
	UserQuery string `json:"userquery"`
	Answer    string `json:"answer"`
}

// History is the full record of one session.
type History struct {
	SessionID string `json:"sessionId"`
	Turns     []Turn `json:"history"`
}

// Store reads and writes histories.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore wraps an existing Redis client.
func NewStore(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger}
}

// Connect parses a redis:// URL, opens a client and verifies it answers PING.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis unreachable at %s: %w", opts.Addr, err)
	}
	return NewStore(client, logger), nil
}

// Key returns the Redis key holding sid's history.
func Key(sid string) string { return KeyPrefix + sid }

// Append adds turn to sid's history and returns the updated history.
// The read-modify-write runs under WATCH so concurrent appends are never lost.
func (s *Store) Append(ctx context.Context, sid string, turn Turn) ([]Turn, error) {
	key := Key(sid)
	var updated []Turn

	txf := func(tx *redis.Tx) error {
		turns, err := readTurns(ctx, tx, key)
		if err != nil {
			return err
		}
		updated = append(turns, turn)

		payload, err := json.Marshal(updated)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		s.logger.Error("Failed to append turn", "session", sid, "error", err)
		return nil, fmt.Errorf("append to %s: %w", key, err)
	}

	s.logger.Error("Failed to append turn", "session", sid, "error", ErrConflict)
	return nil, fmt.Errorf("append to %s: %w", key, ErrConflict)
}

// Get returns sid's history. A missing or undecodable value reports ok=false.
func (s *Store) Get(ctx context.Context, sid string) ([]Turn, bool, error) {
	raw, err := s.client.Get(ctx, Key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", Key(sid), err)
	}

	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		s.logger.Warn("Ignoring undecodable history", "session", sid, "error", err)
		return nil, false, nil
	}
	return turns, true, nil
}

// Delete removes sid's history. Deleting a missing history is not an error.
func (s *Store) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, Key(sid)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", Key(sid), err)
	}
	return nil
}

// ListAll returns every stored history sorted by session id.
// Entries that cannot be decoded are skipped.
func (s *Store) ListAll(ctx context.Context) ([]History, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan histories: %w", err)
	}

	histories := make([]History, 0, len(keys))
	if len(keys) == 0 {
		return histories, nil
	}
	sort.Strings(keys)

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load histories: %w", err)
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // deleted between SCAN and MGET
		}
		var turns []Turn
		if err := json.Unmarshal([]byte(raw), &turns); err != nil {
			s.logger.Warn("Skipping undecodable history", "key", keys[i], "error", err)
			continue
		}
		histories = append(histories, History{
			SessionID: strings.TrimPrefix(keys[i], KeyPrefix),
			Turns:     turns,
		})
	}

	return histories, nil
}

// Reset clears the whole Redis database, not only this store's keys.
func (s *Store) Reset(ctx context.Context) error {
	if err := s.client.FlushAll(ctx).Err(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	s.logger.Info("Session store reset")
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func readTurns(ctx context.Context, tx *redis.Tx, key string) ([]Turn, error) {
	raw, err := tx.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var turns []Turn
	if err := json.Unmarshal(raw, &turns); err != nil {
		// A corrupt history is replaced rather than blocking new turns.
		return nil, nil
	}
	return turns, nil
}
