package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/d60-Lab/postboard/internal/enrich"
	"github.com/d60-Lab/postboard/internal/repository"
)

// ProfileCache 用户资料读取：Redis MGET 命中直接返回，未命中批量回源并逐条回填
// cache 为 nil 时直接查库
type ProfileCache struct {
	users repository.UserRepository
	cache *redis.Client
	ttl   time.Duration

	hits      atomic.Int64
	misses    atomic.Int64
	bulkLoads atomic.Int64
}

func NewProfileCache(users repository.UserRepository, cache *redis.Client, ttl time.Duration) *ProfileCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ProfileCache{users: users, cache: cache, ttl: ttl}
}

func profileKey(id string) string { return fmt.Sprintf("user:profile:%s", id) }

// Load 按 ids 顺序返回存在的用户，重复 id 只返回一次
func (s *ProfileCache) Load(ctx context.Context, ids []string) ([]enrich.UserData, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []enrich.UserData{}, nil
	}

	found := make(map[string]enrich.UserData, len(ids))
	if s.cache != nil {
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = profileKey(id)
		}
		if vals, err := s.cache.MGet(ctx, keys...).Result(); err == nil {
			for i, v := range vals {
				str, ok := v.(string)
				if !ok {
					continue
				}
				var u enrich.UserData
				if json.Unmarshal([]byte(str), &u) == nil {
					found[ids[i]] = u
				}
			}
		}
	}

	missing := make([]string, 0, len(ids)-len(found))
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	s.hits.Add(int64(len(found)))
	s.misses.Add(int64(len(missing)))

	if len(missing) > 0 {
		s.bulkLoads.Add(1)
		rows, err := s.users.ListByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		var pipe redis.Pipeliner
		if s.cache != nil {
			pipe = s.cache.Pipeline()
		}
		for _, u := range rows {
			data := enrich.UserData{ID: u.ID, Nickname: u.Nickname, Email: u.Email, ProfileImage: u.ProfileImage}
			found[u.ID] = data
			if pipe == nil {
				continue
			}
			if payload, err := json.Marshal(data); err == nil {
				pipe.Set(ctx, profileKey(u.ID), payload, s.ttl)
			}
		}
		if pipe != nil && len(rows) > 0 {
			_, _ = pipe.Exec(ctx)
		}
	}

	out := make([]enrich.UserData, 0, len(found))
	for _, id := range ids {
		if u, ok := found[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

// Invalidate drops the cached profile of id.
func (s *ProfileCache) Invalidate(ctx context.Context, id string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, profileKey(id)).Err()
}

// ProfileCounters summarises cache effectiveness since the last reset.
type ProfileCounters struct {
	Hits      int64
	Misses    int64
	BulkLoads int64
}

func (s *ProfileCache) Counters() ProfileCounters {
	return ProfileCounters{Hits: s.hits.Load(), Misses: s.misses.Load(), BulkLoads: s.bulkLoads.Load()}
}

func (s *ProfileCache) ResetCounters() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.bulkLoads.Store(0)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
