package availability

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablebook/internal/metrics"
)

// ErrCacheMiss is returned by Store.Get when no snapshot is stored for a date.
var ErrCacheMiss = errors.New("availability: cache miss")

// Store keeps encoded snapshots keyed by "YYYY-MM-DD".
type Store interface {
	Get(ctx context.Context, date string) ([]byte, error)
	Put(ctx context.Context, date string, data []byte) error
	Delete(ctx context.Context, date string) error
	// Dates lists the stored dates in ascending order.
	Dates(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, date string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[date]
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryStore) Put(_ context.Context, date string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[date] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, date)
	return nil
}

func (s *MemoryStore) Dates(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for date := range s.data {
		out = append(out, date)
	}
	sort.Strings(out)
	return out, nil
}

// RedisStore keeps snapshots in Redis with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(date string) string {
	return s.prefix + date
}

func (s *RedisStore) Get(ctx context.Context, date string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *RedisStore) Put(ctx context.Context, date string, data []byte) error {
	return s.client.Set(ctx, s.key(date), data, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, date string) error {
	return s.client.Del(ctx, s.key(date)).Err()
}

func (s *RedisStore) Dates(ctx context.Context) ([]string, error) {
	out := []string{}
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		out = append(out, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

const recoveryInterval = time.Minute

// FailoverStore serves from primary and switches to fallback while primary is failing.
// Dates written to the fallback during an outage are dropped from primary on
// recovery so stale primary copies are never served. A listing taken during an
// outage cannot see primary, so every primary copy is dropped on recovery.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
	dirty     map[string]struct{}
	flushAll  bool
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With().Str("component", "snapshot_store").Logger(),
		dirty:    make(map[string]struct{}),
	}
}

func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastCheck) >= recoveryInterval
}

func (s *FailoverStore) markDown(err error) {
	if !s.isDown.Swap(true) {
		s.logger.Warn().Err(err).Msg("primary snapshot store failed, switching to fallback")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

// markUp clears the outage state and returns the dates dropped from primary.
func (s *FailoverStore) markUp(ctx context.Context) map[string]struct{} {
	if !s.isDown.Swap(false) {
		return nil
	}
	s.mu.Lock()
	dirty := s.dirty
	s.dirty = make(map[string]struct{})
	flushAll := s.flushAll
	s.flushAll = false
	s.mu.Unlock()

	if flushAll {
		dates, err := s.primary.Dates(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Msg("failed to list stale snapshots")
		}
		for _, date := range dates {
			dirty[date] = struct{}{}
		}
	}
	for date := range dirty {
		if err := s.primary.Delete(ctx, date); err != nil {
			s.logger.Warn().Err(err).Str("date", date).Msg("failed to drop stale snapshot")
		}
	}
	s.logger.Info().Int("stale_dropped", len(dirty)).Msg("primary snapshot store recovered")
	return dirty
}

func (s *FailoverStore) Get(ctx context.Context, date string) ([]byte, error) {
	if s.usePrimary() {
		data, err := s.primary.Get(ctx, date)
		if err == nil || errors.Is(err, ErrCacheMiss) {
			if _, stale := s.markUp(ctx)[date]; stale {
				return nil, ErrCacheMiss
			}
			return data, err
		}
		s.markDown(err)
	}
	metrics.IncStoreFailover("get")
	return s.fallback.Get(ctx, date)
}

func (s *FailoverStore) Put(ctx context.Context, date string, data []byte) error {
	if s.usePrimary() {
		err := s.primary.Put(ctx, date, data)
		if err == nil {
			s.mu.Lock()
			delete(s.dirty, date)
			s.mu.Unlock()
			s.markUp(ctx)
			return nil
		}
		s.markDown(err)
	}
	metrics.IncStoreFailover("put")
	s.mu.Lock()
	s.dirty[date] = struct{}{}
	s.mu.Unlock()
	return s.fallback.Put(ctx, date, data)
}

func (s *FailoverStore) Delete(ctx context.Context, date string) error {
	if err := s.fallback.Delete(ctx, date); err != nil {
		return err
	}
	if s.usePrimary() {
		if err := s.primary.Delete(ctx, date); err != nil {
			s.markDown(err)
		}
	}
	return nil
}

// Dates lists the union of primary and fallback dates.
func (s *FailoverStore) Dates(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	fallback, err := s.fallback.Dates(ctx)
	if err != nil {
		return nil, err
	}
	for _, date := range fallback {
		seen[date] = struct{}{}
	}

	listed := false
	if s.usePrimary() {
		primary, err := s.primary.Dates(ctx)
		if err == nil {
			listed = true
			s.markUp(ctx)
			for _, date := range primary {
				seen[date] = struct{}{}
			}
		} else {
			s.markDown(err)
		}
	}
	if !listed {
		s.mu.Lock()
		s.flushAll = true
		s.mu.Unlock()
	}

	out := make([]string, 0, len(seen))
	for date := range seen {
		out = append(out, date)
	}
	sort.Strings(out)
	return out, nil
}
