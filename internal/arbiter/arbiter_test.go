package arbiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drorchestrator/backend-go/internal/domain"
)

var pool = domain.ResourceRequirements{CPUMillis: 1000, MemoryMB: 1024, DiskMB: 2048, NetworkMbps: 100}

func cpu(m int64) domain.ResourceRequirements {
	return domain.ResourceRequirements{CPUMillis: m}
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	a := New(pool)
	req := domain.ResourceRequirements{CPUMillis: 250, MemoryMB: 512, DiskMB: 100, NetworkMbps: 10}

	require.NoError(t, a.Reserve(context.Background(), "db", req, false))
	assert.True(t, a.Held("db"))
	assert.Equal(t, pool.Sub(req), a.Available())
	assert.Equal(t, 50.0, a.Utilization()["memory"])

	released, err := a.Release("db")
	require.NoError(t, err)
	assert.Equal(t, req, released)
	assert.Equal(t, pool, a.Available())
	assert.False(t, a.Held("db"))
}

func TestReserveDuplicateIsError(t *testing.T) {
	a := New(pool)
	require.NoError(t, a.Reserve(context.Background(), "db", cpu(100), false))

	err := a.Reserve(context.Background(), "db", cpu(100), false)
	assert.True(t, errors.Is(err, domain.ErrDuplicateReservation))
	assert.Equal(t, int64(900), a.Available().CPUMillis)
}

func TestReserveLargerThanPool(t *testing.T) {
	a := New(pool)

	err := a.Reserve(context.Background(), "huge", domain.ResourceRequirements{DiskMB: 4096}, true)
	assert.True(t, errors.Is(err, domain.ErrInsufficientResources))
	assert.False(t, a.CanEverFit(domain.ResourceRequirements{DiskMB: 4096}))
}

func TestReleaseUnknown(t *testing.T) {
	a := New(pool)
	_, err := a.Release("nobody")
	assert.True(t, errors.Is(err, domain.ErrReservationNotFound))
}

func TestReserveBlocksUntilRelease(t *testing.T) {
	a := New(pool)
	require.NoError(t, a.Reserve(context.Background(), "first", cpu(800), false))

	granted := make(chan error, 1)
	go func() {
		granted <- a.Reserve(context.Background(), "second", cpu(500), false)
	}()

	require.Eventually(t, func() bool { return a.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	select {
	case <-granted:
		t.Fatal("second reservation granted while pool exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := a.Release("first")
	require.NoError(t, err)

	select {
	case err := <-granted:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second reservation never granted")
	}
	assert.True(t, a.Held("second"))
}

func TestCriticalWaitersGoFirst(t *testing.T) {
	a := New(pool)
	require.NoError(t, a.Reserve(context.Background(), "holder", cpu(1000), false))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = a.Reserve(context.Background(), "low", cpu(600), false)
	}()
	require.Eventually(t, func() bool { return a.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	go func() {
		defer wg.Done()
		_ = a.Reserve(context.Background(), "crit", cpu(600), true)
	}()
	require.Eventually(t, func() bool { return a.Waiting() == 2 }, time.Second, 5*time.Millisecond)

	_, err := a.Release("holder")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return a.Held("crit") }, time.Second, 5*time.Millisecond)
	assert.False(t, a.Held("low"))

	_, err = a.Release("crit")
	require.NoError(t, err)
	wg.Wait()
	assert.True(t, a.Held("low"))
}

func TestReserveContextCancelled(t *testing.T) {
	a := New(pool)
	require.NoError(t, a.Reserve(context.Background(), "holder", cpu(1000), false))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- a.Reserve(ctx, "waiter", cpu(10), false) }()

	require.Eventually(t, func() bool { return a.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-errc:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	assert.Equal(t, 0, a.Waiting())
	assert.False(t, a.Held("waiter"))
}

func TestConcurrentReservationsNeverOvercommit(t *testing.T) {
	a := New(pool)
	var wg sync.WaitGroup

	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			req := domain.ResourceRequirements{CPUMillis: 150, MemoryMB: 100, DiskMB: 300, NetworkMbps: 20}
			if err := a.Reserve(context.Background(), id, req, i%5 == 0); err != nil {
				t.Errorf("reserve %s: %v", id, err)
				return
			}
			avail := a.Available()
			if avail.Negative() {
				t.Errorf("pool overcommitted: %s", avail)
			}
			time.Sleep(time.Millisecond)
			if _, err := a.Release(id); err != nil {
				t.Errorf("release %s: %v", id, err)
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, pool, a.Available())
	assert.Equal(t, 0, a.Waiting())
}
