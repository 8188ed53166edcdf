package probgen

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultCacheTTL is how long a cached problem set stays servable.
const DefaultCacheTTL = 7 * 24 * time.Hour

// GenerateCacheKey hashes every request field that can change model output.
// Fields that cannot (user id, room title) are deliberately excluded, so two
// requests differing only in those hit the same entry. Source text and prompt
// are whitespace-trimmed before hashing.
func GenerateCacheKey(req GenerationRequest) string {
	fields := []string{
		strings.TrimSpace(req.Tech),
		strings.TrimSpace(req.Domain),
		strings.TrimSpace(req.SourceMaterial),
		strings.TrimSpace(req.Prompt),
		strconv.Itoa(req.ProblemCount),
		req.Difficulty,
		string(req.Mode),
		strconv.FormatFloat(req.BlankRatio, 'f', -1, 64),
		req.SubjectiveStyle,
		req.GradingStrictness,
		req.ComplexityTier,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// ProblemCache serves identical generation requests without invoking the
// model. Reads past the TTL delete the entry and report a miss.
type ProblemCache struct {
	store CacheStore
	ttl   time.Duration
	now   func() time.Time
	log   *zap.SugaredLogger
}

// NewProblemCache wraps a CacheStore with TTL semantics.
func NewProblemCache(store CacheStore, ttl time.Duration, log *zap.SugaredLogger) *ProblemCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ProblemCache{store: store, ttl: ttl, now: time.Now, log: log.Named("cache")}
}

// GetCachedProblems returns the cached set for key, or (nil, false) on a
// miss. Store errors degrade to a miss so a flaky cache never fails a
// request.
func (c *ProblemCache) GetCachedProblems(ctx context.Context, key string) ([]GeneratedProblem, bool) {
	entry, err := c.store.GetEntry(ctx, key)
	if err != nil {
		c.log.Warnw("cache read failed", "error", err)
		return nil, false
	}
	if entry == nil {
		return nil, false
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		if err := c.store.DeleteEntry(ctx, key); err != nil {
			c.log.Warnw("expired cache entry delete failed", "key", key, "error", err)
		}
		return nil, false
	}
	return entry.Problems, true
}

// SetCachedProblems upserts the result set for key. Last writer wins.
func (c *ProblemCache) SetCachedProblems(ctx context.Context, key string, problems []GeneratedProblem) {
	entry := &CacheEntry{
		Key:       key,
		Problems:  problems,
		CreatedAt: c.now().UTC(),
	}
	if err := c.store.PutEntry(ctx, entry); err != nil {
		c.log.Warnw("cache write failed", "key", key, "error", err)
	}
}
