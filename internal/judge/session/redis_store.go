package session

import (
	"context"
	"time"

	"reftester/internal/common/cache"
	"reftester/internal/judge/model"
	appErr "reftester/pkg/errors"

	"github.com/vmihailenco/msgpack"
)

const defaultKeyPrefix = "reftester:session:"

// RedisStore keeps judge logins in Redis as msgpack blobs that expire after ttl.
type RedisStore struct {
	cache  cache.Cache
	prefix string
	ttl    time.Duration
}

func NewRedisStore(c cache.Cache, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{cache: c, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(judge model.JudgeID) string {
	return s.prefix + string(judge)
}

func (s *RedisStore) Load(ctx context.Context, judge model.JudgeID) (Snapshot, bool, error) {
	raw, err := s.cache.Get(ctx, s.key(judge))
	if err != nil {
		return Snapshot{}, false, appErr.Wrapf(err, appErr.CacheError, "load session snapshot failed")
	}
	if raw == "" {
		return Snapshot{}, false, nil
	}
	var snap Snapshot
	if err := msgpack.Unmarshal([]byte(raw), &snap); err != nil {
		return Snapshot{}, false, appErr.Wrapf(err, appErr.CacheError, "decode session snapshot failed")
	}
	return snap, true, nil
}

func (s *RedisStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "encode session snapshot failed")
	}
	if err := s.cache.Set(ctx, s.key(snap.Judge), data, cache.JitterTTL(s.ttl)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "save session snapshot failed")
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, judge model.JudgeID) error {
	if err := s.cache.Del(ctx, s.key(judge)); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "delete session snapshot failed")
	}
	return nil
}
