// Package review applies human verdicts to pending match decisions: merge,
// keep separate, add to household, or reject. Each decision is resolved at
// most once; the first verdict wins and later submits fail loudly.
package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	platformredis "trapper/internal/platform/redis"
)

// SuppressionStore records keep-separate verdicts so the pipeline never
// auto-merges a pair a reviewer has already split.
type SuppressionStore interface {
	Add(ctx context.Context, candidateKey string, entityID uuid.UUID) error
	IsSuppressed(ctx context.Context, candidateKey string, entityID uuid.UUID) (bool, error)
}

// InMemorySuppressions backs tests and single-node runs.
type InMemorySuppressions struct {
	mu    sync.RWMutex
	pairs map[string]struct{}
}

// NewInMemorySuppressions constructs an empty in-memory suppression store.
func NewInMemorySuppressions() *InMemorySuppressions {
	return &InMemorySuppressions{pairs: make(map[string]struct{})}
}

func pairMember(candidateKey string, entityID uuid.UUID) string {
	return candidateKey + "@" + entityID.String()
}

func (s *InMemorySuppressions) Add(_ context.Context, candidateKey string, entityID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairs[pairMember(candidateKey, entityID)] = struct{}{}
	return nil
}

func (s *InMemorySuppressions) IsSuppressed(_ context.Context, candidateKey string, entityID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pairs[pairMember(candidateKey, entityID)]
	return ok, nil
}

// suppressionSetKey is the Redis set holding all keep-separate pairs.
// Suppressions are permanent: reviewers un-split pairs by merging, not by
// expiry, so members carry no TTL.
const suppressionSetKey = "trapper:suppressions"

// RedisSuppressions shares keep-separate verdicts across pipeline nodes.
type RedisSuppressions struct {
	client *platformredis.Client
}

// NewRedisSuppressions wraps the shared Redis client. Returns nil when Redis
// is not configured so callers fall back to the in-memory store.
func NewRedisSuppressions(client *platformredis.Client) *RedisSuppressions {
	if client == nil {
		return nil
	}
	return &RedisSuppressions{client: client}
}

func (s *RedisSuppressions) Add(ctx context.Context, candidateKey string, entityID uuid.UUID) error {
	if err := s.client.SAdd(ctx, suppressionSetKey, pairMember(candidateKey, entityID)).Err(); err != nil {
		return fmt.Errorf("add suppression: %w", err)
	}
	return nil
}

func (s *RedisSuppressions) IsSuppressed(ctx context.Context, candidateKey string, entityID uuid.UUID) (bool, error) {
	ok, err := s.client.SIsMember(ctx, suppressionSetKey, pairMember(candidateKey, entityID)).Result()
	if err != nil && err != goredis.Nil {
		return false, fmt.Errorf("check suppression: %w", err)
	}
	return ok, nil
}
