package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guillermoBallester/hrquery/internal/core/domain"
	"github.com/guillermoBallester/hrquery/internal/core/port"
)

func TestConnectionManager_SharesPoolPerConnection(t *testing.T) {
	var built atomic.Int32
	factory := func(string) (port.Driver, error) {
		built.Add(1)
		time.Sleep(10 * time.Millisecond)
		return freshConns(), nil
	}
	m := NewConnectionManager(factory, testConnConfig(), testLogger())
	defer m.Close()

	var wg sync.WaitGroup
	pools := make([]*Pool, 8)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.Pool(testConnString)
			assert.NoError(t, err)
			pools[i] = p
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), built.Load())
	for _, p := range pools {
		assert.Same(t, pools[0], p)
	}
}

func TestConnectionManager_RetriesExhaustedPool(t *testing.T) {
	cfg := testConnConfig()
	cfg.PoolSize = 1
	cfg.AcquireTimeout = 10 * time.Millisecond
	cfg.AcquireRetries = 3
	m := NewConnectionManager(factoryFor(freshConns()), cfg, testLogger())
	defer m.Close()

	held, err := m.Acquire(context.Background(), testConnString)
	require.NoError(t, err)
	go func() {
		time.Sleep(25 * time.Millisecond)
		held.Release()
	}()

	h, err := m.Acquire(context.Background(), testConnString)
	require.NoError(t, err, "acquire should succeed after backing off")
	h.Release()
}

func TestConnectionManager_GivesUpAfterRetries(t *testing.T) {
	cfg := testConnConfig()
	cfg.PoolSize = 1
	cfg.AcquireTimeout = 5 * time.Millisecond
	cfg.AcquireRetries = 2
	m := NewConnectionManager(factoryFor(freshConns()), cfg, testLogger())
	defer m.Close()

	held, err := m.Acquire(context.Background(), testConnString)
	require.NoError(t, err)
	defer held.Release()

	_, err = m.Acquire(context.Background(), testConnString)
	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
}

func TestConnectionManager_ConnectionErrorNotRetried(t *testing.T) {
	driver := &mockDriver{connectFn: func(context.Context) (port.Conn, error) {
		return nil, domain.Errorf(domain.KindConnection, "password authentication failed")
	}}
	cfg := testConnConfig()
	cfg.AcquireRetries = 5
	m := NewConnectionManager(factoryFor(driver), cfg, testLogger())
	defer m.Close()

	_, err := m.Acquire(context.Background(), testConnString)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, int32(1), driver.connects.Load())
}

func TestConnectionManager_TestConnection(t *testing.T) {
	ok := NewConnectionManager(factoryFor(freshConns()), testConnConfig(), testLogger())
	defer ok.Close()
	assert.True(t, ok.TestConnection(context.Background(), testConnString))

	down := NewConnectionManager(factoryFor(driverFor(&mockConn{pingErr: errors.New("timeout")})), testConnConfig(), testLogger())
	defer down.Close()
	assert.False(t, down.TestConnection(context.Background(), testConnString))

	bad := NewConnectionManager(func(string) (port.Driver, error) {
		return nil, domain.Errorf(domain.KindInvalidInput, "unsupported scheme")
	}, testConnConfig(), testLogger())
	defer bad.Close()
	assert.False(t, bad.TestConnection(context.Background(), "redis://x"))
}

func TestConnectionManager_EvictsIdlePools(t *testing.T) {
	driver := freshConns()
	cfg := testConnConfig()
	cfg.IdleTTL = 20 * time.Millisecond
	m := NewConnectionManager(factoryFor(driver), cfg, testLogger())
	defer m.Close()

	h, err := m.Acquire(context.Background(), testConnString)
	require.NoError(t, err)
	h.Release()

	assert.Eventually(t, func() bool {
		return driver.closed.Load()
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, PoolStats{}, m.Stats())
}

func TestConnectionManager_StatsAcrossPools(t *testing.T) {
	m := NewConnectionManager(func(string) (port.Driver, error) { return freshConns(), nil }, testConnConfig(), testLogger())
	defer m.Close()

	a, err := m.Acquire(context.Background(), "postgres://a")
	require.NoError(t, err)
	b, err := m.Acquire(context.Background(), "postgres://b")
	require.NoError(t, err)
	b.Release()

	assert.Equal(t, PoolStats{Size: 4, Active: 1, Idle: 1}, m.Stats())
	a.Release()
}
