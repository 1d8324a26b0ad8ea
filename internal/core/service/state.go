package service

import (
	"log/slog"
	"sync"
)

// State is the process-wide query state. The cache comes to life on the
// first successful schema discovery and is dropped by Close.
type State struct {
	newCache func() *QueryCache
	logger   *slog.Logger

	mu    sync.RWMutex
	cache *QueryCache
}

func NewState(newCache func() *QueryCache, logger *slog.Logger) *State {
	return &State{newCache: newCache, logger: logger}
}

// Cache returns the live cache, or nil before initialisation.
func (s *State) Cache() *QueryCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache
}

// SchemaPublished initialises the cache if needed and drops entries of the
// connection computed against older schema versions.
func (s *State) SchemaPublished(connectionID string, version uint64) {
	s.mu.Lock()
	if s.cache == nil {
		s.cache = s.newCache()
		s.logger.Info("query cache initialised")
	}
	cache := s.cache
	s.mu.Unlock()

	if n := cache.InvalidateBefore(connectionID, version); n > 0 {
		s.logger.Info("stale cache entries evicted",
			slog.String("connection_id", connectionID),
			slog.Uint64("schema_version", version),
			slog.Int("count", n),
		)
	}
}

// Reset empties the cache and its counters.
func (s *State) Reset() {
	if c := s.Cache(); c != nil {
		c.Purge()
	}
}

// Close purges and drops the cache. A later discovery creates a new one.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache != nil {
		s.cache.Purge()
		s.cache = nil
	}
}
