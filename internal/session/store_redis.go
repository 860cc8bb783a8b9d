package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each session as a JSON string under <prefix>session:<id>
// and tracks ids in the set <prefix>sessions. Update uses WATCH/MULTI so a
// concurrent writer surfaces as ErrConflict.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("session: redis ping failed: %w", err)
	}
	return client, nil
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(id string) string { return r.prefix + "session:" + id }
func (r *RedisStore) index() string        { return r.prefix + "sessions" }

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	key := r.key(s.ID)
	// The record and its index entry are written in one MULTI so List never
	// misses a stored session.
	err = r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, r.index(), s.ID)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrExists), errors.Is(err, redis.TxFailedErr):
		return ErrExists
	default:
		return fmt.Errorf("session: redis create: %w", err)
	}
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: redis get: %w", err)
	}
	return decodeSession(data)
}

func (r *RedisStore) Update(ctx context.Context, s *Session, expectedVersion int64) error {
	key := r.key(s.ID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		cur, err := decodeSession(data)
		if err != nil {
			return err
		}
		if cur.Version != expectedVersion {
			return ErrConflict
		}

		next := s.Clone()
		next.Version = expectedVersion + 1
		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("session: encode: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		s.Version = expectedVersion + 1
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err
	default:
		return fmt.Errorf("session: redis update: %w", err)
	}
}

func (r *RedisStore) List(ctx context.Context) ([]*Session, error) {
	ids, err := r.client.SMembers(ctx, r.index()).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis list: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("session: redis list: %w", err)
	}

	out := make([]*Session, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		s, err := decodeSession([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sortSessions(out)
	return out, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, r.key(id)).Result()
	if err != nil {
		return fmt.Errorf("session: redis delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if err := r.client.SRem(ctx, r.index(), id).Err(); err != nil {
		return fmt.Errorf("session: redis index: %w", err)
	}
	return nil
}

func (r *RedisStore) Close() error { return r.client.Close() }

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}
