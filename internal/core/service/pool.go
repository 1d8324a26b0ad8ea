package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

// PoolStats counts handles currently lent out and connections parked idle.
type PoolStats struct {
	Size   int `json:"size"`
	Active int `json:"active"`
	Idle   int `json:"idle"`
}

// Pool lends at most size connections of one driver. A slot token is held
// in slots for every handle that is out.
type Pool struct {
	driver         port.Driver
	size           int
	acquireTimeout time.Duration
	logger         *slog.Logger

	slots chan struct{}

	mu     sync.Mutex
	idle   []port.Conn
	active int
	closed bool
}

func NewPool(driver port.Driver, size int, acquireTimeout time.Duration, logger *slog.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		driver:         driver,
		size:           size,
		acquireTimeout: acquireTimeout,
		logger:         logger,
		slots:          make(chan struct{}, size),
	}
}

func (p *Pool) Driver() port.Driver { return p.driver }

// Acquire waits up to the acquire timeout for a free slot, then hands out a
// validated idle connection or dials a new one.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case p.slots <- struct{}{}:
	case <-timer.C:
		return nil, domain.Errorf(domain.KindPoolExhausted, "all %d database connections are busy", p.size)
	case <-ctx.Done():
		return nil, contextError(ctx)
	}

	conn, err := p.checkout(ctx)
	if err != nil {
		<-p.slots
		return nil, err
	}
	return &Handle{pool: p, conn: conn}, nil
}

func (p *Pool) checkout(ctx context.Context) (port.Conn, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, domain.Errorf(domain.KindConnection, "connection pool is closed")
		}
		p.active++
		n := len(p.idle)
		if n == 0 {
			p.mu.Unlock()
			break
		}
		conn := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()

		if err := conn.Ping(ctx); err == nil {
			return conn, nil
		}
		p.logger.Warn("discarding dead pooled connection", slog.String("db.dialect", string(p.driver.Dialect().Name())))
		_ = conn.Close(context.WithoutCancel(ctx))
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}

	conn, err := p.driver.Connect(ctx)
	if err != nil {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		return nil, err
	}
	return conn, nil
}

func (p *Pool) put(conn port.Conn, discard bool) {
	p.mu.Lock()
	p.active--
	keep := !discard && !p.closed
	if keep {
		p.idle = append(p.idle, conn)
	}
	p.mu.Unlock()
	<-p.slots

	if !keep {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(ctx)
	}
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Size: p.size, Active: p.active, Idle: len(p.idle)}
}

// Close shuts idle connections and the driver. Handles still out are closed
// when released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, c := range idle {
		_ = c.Close(ctx)
	}
	if err := p.driver.Close(); err != nil {
		p.logger.Warn("closing database driver", slog.String("error", err.Error()))
	}
}

// Handle is a connection lent by a Pool. Release or Discard it exactly once;
// further calls are no-ops.
type Handle struct {
	pool *Pool
	conn port.Conn
	once sync.Once
}

func (h *Handle) Conn() port.Conn { return h.conn }

// Release returns the connection to the pool for reuse.
func (h *Handle) Release() {
	h.once.Do(func() { h.pool.put(h.conn, false) })
}

// Discard closes the connection instead of reusing it. Used when a query
// was interrupted and the connection state is unknown.
func (h *Handle) Discard() {
	h.once.Do(func() { h.pool.put(h.conn, true) })
}

// contextError maps a finished context to the engine taxonomy.
func contextError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.NewError(domain.KindExecutionTimeout, "request exceeded its time budget", ctx.Err())
	}
	return domain.NewError(domain.KindExecutionTimeout, "request was cancelled", ctx.Err())
}
