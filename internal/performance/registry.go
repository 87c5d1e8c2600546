package performance

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	overviewTTL      = 5 * time.Minute
	overviewCacheKey = "tutord:performance:overview"
)

// Overview is one row of the all-agents dashboard.
type Overview struct {
	AgentID            string    `json:"agent_id"`
	OverallScore       float64   `json:"overall_score"`
	PerformanceLevel   Level     `json:"performance_level"`
	TotalConversations int       `json:"total_conversations"`
	HealthStatus       string    `json:"health_status"`
	LastUpdated        time.Time `json:"last_updated"`
}

// Registry serves the all-agents overview without scanning the store on
// every request. Rows are cached in memory on a TTL, and optionally in
// Redis so replicas share one scan. A nil Redis client disables the
// shared layer without changing behavior.
type Registry struct {
	store Store
	cache *redis.Client
	clock Clock
	ttl   time.Duration

	mu      sync.Mutex
	entries []Overview
	fetched time.Time
}

// NewRegistry creates a Registry with the default 5-minute TTL.
// cache may be nil.
func NewRegistry(store Store, cache *redis.Client) *Registry {
	return NewRegistryWithClock(store, cache, realClock{})
}

// NewRegistryWithClock creates a Registry with an injected clock.
func NewRegistryWithClock(store Store, cache *redis.Client, clock Clock) *Registry {
	return &Registry{store: store, cache: cache, clock: clock, ttl: overviewTTL}
}

// Overview returns all agents sorted by overall score, descending.
func (r *Registry) Overview(ctx context.Context) ([]Overview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	if r.entries != nil && now.Sub(r.fetched) < r.ttl {
		return copyOverview(r.entries), nil
	}

	if entries := r.fromCache(ctx); entries != nil {
		r.entries, r.fetched = entries, now
		return copyOverview(entries), nil
	}

	summaries, err := r.store.ListSummaries(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Overview, 0, len(summaries))
	for _, s := range summaries {
		rep := s.Report()
		entries = append(entries, Overview{
			AgentID:            s.AgentID,
			OverallScore:       s.Metrics.OverallScore,
			PerformanceLevel:   rep.PerformanceLevel,
			TotalConversations: s.TotalConversations,
			HealthStatus:       rep.Health.Quality.Status,
			LastUpdated:        s.LastUpdated,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OverallScore > entries[j].OverallScore
	})

	r.entries, r.fetched = entries, now
	r.toCache(ctx, entries)
	return copyOverview(entries), nil
}

// NeedingAttention returns agents whose overall score is below the
// given threshold.
func (r *Registry) NeedingAttention(ctx context.Context, threshold float64) ([]Overview, error) {
	entries, err := r.Overview(ctx)
	if err != nil {
		return nil, err
	}
	var out []Overview
	for _, e := range entries {
		if e.OverallScore < threshold {
			out = append(out, e)
		}
	}
	return out, nil
}

// Invalidate drops the cached overview so the next read rescans.
func (r *Registry) Invalidate(ctx context.Context) {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()

	if r.cache != nil {
		if err := r.cache.Del(ctx, overviewCacheKey).Err(); err != nil {
			slog.Warn("failed to invalidate overview cache", "error", err)
		}
	}
}

func (r *Registry) fromCache(ctx context.Context) []Overview {
	if r.cache == nil {
		return nil
	}
	raw, err := r.cache.Get(ctx, overviewCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("overview cache read failed", "error", err)
		}
		return nil
	}
	var entries []Overview
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		slog.Warn("overview cache entry malformed", "error", err)
		return nil
	}
	return entries
}

func (r *Registry) toCache(ctx context.Context, entries []Overview) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, overviewCacheKey, raw, r.ttl).Err(); err != nil {
		slog.Warn("overview cache write failed", "error", err)
	}
}

func copyOverview(entries []Overview) []Overview {
	out := make([]Overview, len(entries))
	copy(out, entries)
	return out
}
