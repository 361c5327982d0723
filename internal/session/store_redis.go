package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix   = "console:session:"
	updateMaxRetries = 5
)

// RedisStore keeps each session as a single JSON value so that a write or delete of
// all slots is one Redis command.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore. A zero ttl keeps sessions until cleared.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// Get loads the session for profile.
func (s *RedisStore) Get(ctx context.Context, profile string) (Session, error) {
	payload, err := s.client.Get(ctx, s.key(profile)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("session: redis get: %w", err)
	}
	return decodeSession(payload)
}

// Set writes all slots with one SET.
func (s *RedisStore) Set(ctx context.Context, profile string, sess Session) error {
	if !sess.Complete() {
		return ErrPartialSession
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(profile), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// Clear deletes all slots with one DEL.
func (s *RedisStore) Clear(ctx context.Context, profile string) error {
	if err := s.client.Del(ctx, s.key(profile)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("session: redis del: %w", err)
	}
	return nil
}

// Update performs an optimistic WATCH/MULTI read-modify-write, retrying when another
// writer touched the key in between.
func (s *RedisStore) Update(ctx context.Context, profile string, fn func(Session) (Session, error)) error {
	key := s.key(profile)
	txf := func(tx *redis.Tx) error {
		payload, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNoSession
			}
			return err
		}
		current, err := decodeSession(payload)
		if err != nil {
			return err
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		if !next.Complete() {
			return ErrPartialSession
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < updateMaxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("session: update %s: %w", profile, redis.TxFailedErr)
}

// Profiles scans the keyspace for stored sessions.
func (s *RedisStore) Profiles(ctx context.Context) ([]string, error) {
	var profiles []string
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		profiles = append(profiles, strings.TrimPrefix(iter.Val(), redisKeyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("session: redis scan: %w", err)
	}
	sort.Strings(profiles)
	return profiles, nil
}

func (s *RedisStore) key(profile string) string {
	return redisKeyPrefix + profile
}

func decodeSession(payload []byte) (Session, error) {
	var sess Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return Session{}, fmt.Errorf("session: decode: %w", err)
	}
	if !sess.Complete() {
		return Session{}, ErrPartialSession
	}
	return sess, nil
}

var _ Store = (*RedisStore)(nil)
