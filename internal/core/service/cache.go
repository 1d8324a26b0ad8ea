package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
)

// CacheKey identifies a memoized answer.
type CacheKey struct {
	Question     string
	Version      uint64
	ConnectionID string
}

// Hash returns the storage key: sha256 of the normalized question, the
// schema version and the connection identity.
func (k CacheKey) Hash() string {
	h := sha256.New()
	h.Write([]byte(domain.NormalizeQuestion(k.Question)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatUint(k.Version, 10)))
	h.Write([]byte{0})
	h.Write([]byte(k.ConnectionID))
	return hex.EncodeToString(h.Sum(nil))
}

type cacheEntry struct {
	result       *domain.ExecutionResult
	version      uint64
	connectionID string
	createdAt    time.Time
}

type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// ComputeFunc produces a result for a cache miss.
type ComputeFunc func(ctx context.Context) (*domain.ExecutionResult, error)

// QueryCache memoizes execution results with TTL and LRU bounds and runs
// at most one computation per key at a time.
type QueryCache struct {
	lru            *expirable.LRU[string, *cacheEntry]
	inflight       singleflight.Group
	computeTimeout time.Duration
	waitMargin     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewQueryCache(maxEntries int, ttl, computeTimeout time.Duration) *QueryCache {
	return &QueryCache{
		lru:            expirable.NewLRU[string, *cacheEntry](maxEntries, nil, ttl),
		computeTimeout: computeTimeout,
		waitMargin:     250 * time.Millisecond,
	}
}

// GetOrCompute returns the cached result for key or computes it. Concurrent
// callers with the same key share one computation. The computation runs on
// a context detached from the first caller, bounded by the compute timeout,
// so one caller going away does not fail the others.
//
// Results are returned as copies; CacheHit is true only when the answer
// came from a settled entry. Results carrying warnings are not stored.
func (c *QueryCache) GetOrCompute(ctx context.Context, key CacheKey, compute ComputeFunc) (*domain.ExecutionResult, error) {
	h := key.Hash()
	if e, ok := c.lru.Get(h); ok {
		c.hits.Add(1)
		return copyResult(e.result, true), nil
	}

	ch := c.inflight.DoChan(h, func() (any, error) {
		return c.load(ctx, h, key, compute)
	})

	wait := time.NewTimer(c.computeTimeout + c.waitMargin)
	defer wait.Stop()

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		f := r.Val.(flight)
		return copyResult(f.result, f.hit), nil
	case <-ctx.Done():
		return nil, contextError(ctx)
	case <-wait.C:
		return nil, domain.Errorf(domain.KindExecutionTimeout, "timed out waiting for an identical query in flight")
	}
}

// flight is the outcome of one shared lookup. hit is set when the entry
// settled between the caller's miss and the start of the flight.
type flight struct {
	result *domain.ExecutionResult
	hit    bool
}

func (c *QueryCache) load(ctx context.Context, h string, key CacheKey, compute ComputeFunc) (flight, error) {
	if e, ok := c.lru.Get(h); ok {
		c.hits.Add(1)
		return flight{result: e.result, hit: true}, nil
	}
	c.misses.Add(1)
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
	defer cancel()

	res, err := compute(cctx)
	if err != nil {
		return flight{}, err
	}
	if len(res.Warnings) == 0 {
		c.lru.Add(h, &cacheEntry{
			result:       res,
			version:      key.Version,
			connectionID: key.ConnectionID,
			createdAt:    time.Now(),
		})
	}
	return flight{result: res}, nil
}

// InvalidateBefore drops the entries of connectionID computed against a
// schema version older than version and returns how many were dropped.
func (c *QueryCache) InvalidateBefore(connectionID string, version uint64) int {
	var n int
	for _, k := range c.lru.Keys() {
		e, ok := c.lru.Peek(k)
		if ok && e.connectionID == connectionID && e.version < version {
			c.lru.Remove(k)
			n++
		}
	}
	return n
}

func (c *QueryCache) Purge() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}

func (c *QueryCache) Stats() CacheStats {
	return CacheStats{Entries: c.lru.Len(), Hits: c.hits.Load(), Misses: c.misses.Load()}
}

func copyResult(r *domain.ExecutionResult, hit bool) *domain.ExecutionResult {
	out := *r
	out.CacheHit = hit
	return &out
}
