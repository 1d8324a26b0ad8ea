package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

type ConnectionConfig struct {
	PoolSize       int
	AcquireTimeout time.Duration
	IdleTTL        time.Duration
	AcquireRetries int
	RetryBackoff   time.Duration
}

type poolEntry struct {
	pool       *Pool
	lastAccess atomic.Int64 // unix nano timestamp
}

// ConnectionManager owns one Pool per connection string, opened lazily on
// first use. Pools idle longer than IdleTTL are closed by a background loop.
type ConnectionManager struct {
	factory port.DriverFactory
	cfg     ConnectionConfig
	logger  *slog.Logger

	mu        sync.RWMutex
	pools     map[string]*poolEntry
	inflight  singleflight.Group
	stopClean context.CancelFunc
}

func NewConnectionManager(factory port.DriverFactory, cfg ConnectionConfig, logger *slog.Logger) *ConnectionManager {
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 50 * time.Millisecond
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &ConnectionManager{
		factory:   factory,
		cfg:       cfg,
		logger:    logger,
		pools:     make(map[string]*poolEntry),
		stopClean: cancel,
	}
	if cfg.IdleTTL > 0 {
		go m.cleanupLoop(ctx)
	}
	return m
}

// Pool returns the pool for connString, creating it on first use. Concurrent
// first calls for the same connection share one driver.
func (m *ConnectionManager) Pool(connString string) (*Pool, error) {
	id := domain.ConnectionIdentity(connString)

	m.mu.RLock()
	if e, ok := m.pools[id]; ok {
		e.lastAccess.Store(time.Now().UnixNano())
		m.mu.RUnlock()
		return e.pool, nil
	}
	m.mu.RUnlock()

	result, err, _ := m.inflight.Do(id, func() (any, error) {
		m.mu.RLock()
		if e, ok := m.pools[id]; ok {
			m.mu.RUnlock()
			return e.pool, nil
		}
		m.mu.RUnlock()

		driver, err := m.factory(connString)
		if err != nil {
			return nil, err
		}
		e := &poolEntry{pool: NewPool(driver, m.cfg.PoolSize, m.cfg.AcquireTimeout, m.logger)}
		e.lastAccess.Store(time.Now().UnixNano())

		m.mu.Lock()
		m.pools[id] = e
		m.mu.Unlock()

		m.logger.Info("connection pool opened",
			slog.String("connection_id", id),
			slog.String("db.dialect", string(driver.Dialect().Name())),
			slog.Int("pool_size", m.cfg.PoolSize),
		)
		return e.pool, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Pool), nil
}

// Acquire lends a connection for connString. PoolExhausted is retried with
// exponential backoff up to AcquireRetries times; connection failures are
// returned immediately.
func (m *ConnectionManager) Acquire(ctx context.Context, connString string) (*Handle, error) {
	pool, err := m.Pool(connString)
	if err != nil {
		return nil, err
	}

	backoff := m.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		h, err := pool.Acquire(ctx)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, domain.ErrPoolExhausted) || attempt >= m.cfg.AcquireRetries {
			return nil, err
		}
		m.logger.Debug("pool exhausted, backing off",
			slog.String("connection_id", domain.ConnectionIdentity(connString)),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, contextError(ctx)
		}
		backoff *= 2
	}
}

// TestConnection dials connString once, outside any pool, and reports
// whether it answers a ping.
func (m *ConnectionManager) TestConnection(ctx context.Context, connString string) bool {
	driver, err := m.factory(connString)
	if err != nil {
		return false
	}
	defer func() { _ = driver.Close() }()

	conn, err := driver.Connect(ctx)
	if err != nil {
		return false
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()
	return conn.Ping(ctx) == nil
}

// Stats sums handle counts over all open pools.
func (m *ConnectionManager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total PoolStats
	for _, e := range m.pools {
		s := e.pool.Stats()
		total.Size += s.Size
		total.Active += s.Active
		total.Idle += s.Idle
	}
	return total
}

// Remove closes and forgets the pool of connString.
func (m *ConnectionManager) Remove(connString string) {
	id := domain.ConnectionIdentity(connString)

	m.mu.Lock()
	e, ok := m.pools[id]
	delete(m.pools, id)
	m.mu.Unlock()

	if ok {
		e.pool.Close()
		m.logger.Info("connection pool closed", slog.String("connection_id", id))
	}
}

func (m *ConnectionManager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.IdleTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle()
		}
	}
}

// evictIdle closes pools not accessed within IdleTTL that have nothing lent out.
func (m *ConnectionManager) evictIdle() {
	cutoff := time.Now().Add(-m.cfg.IdleTTL).UnixNano()

	m.mu.Lock()
	var evicted []*Pool
	for id, e := range m.pools {
		if e.lastAccess.Load() < cutoff && e.pool.Stats().Active == 0 {
			evicted = append(evicted, e.pool)
			delete(m.pools, id)
			m.logger.Info("idle connection pool evicted", slog.String("connection_id", id))
		}
	}
	m.mu.Unlock()

	for _, p := range evicted {
		p.Close()
	}
}

// Close stops the cleanup loop and closes every pool.
func (m *ConnectionManager) Close() {
	m.stopClean()

	m.mu.Lock()
	pools := m.pools
	m.pools = make(map[string]*poolEntry)
	m.mu.Unlock()

	for id, e := range pools {
		e.pool.Close()
		m.logger.Info("connection pool closed", slog.String("connection_id", id))
	}
}
