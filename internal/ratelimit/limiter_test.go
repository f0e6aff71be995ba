package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireImmediateWhenQuotaFree(t *testing.T) {
	l := New(time.Minute, 5, 0)

	for i := 0; i < 5; i++ {
		p, err := l.Acquire(context.Background(), 1)
		require.NoError(t, err)
		require.NotNil(t, p)
	}
}

func TestAcquireCostAboveQuotaFails(t *testing.T) {
	l := New(time.Minute, 5, 0)

	_, err := l.Acquire(context.Background(), 6)
	assert.Error(t, err)
}

func TestWindowBoundUnderFlood(t *testing.T) {
	// A short real window so blocked waiters are actually served.
	const max = 10
	window := 150 * time.Millisecond
	l := New(window, max, 0)

	var mu sync.Mutex
	var grantTimes []time.Time

	var wg sync.WaitGroup
	for i := 0; i < 3*max; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(context.Background(), 1)
			if err != nil {
				return
			}
			mu.Lock()
			grantTimes = append(grantTimes, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, grantTimes, 3*max)

	// No rolling window may contain more than max grants. Allow a small
	// scheduling tolerance when comparing timestamps.
	for i := range grantTimes {
		count := 0
		for j := range grantTimes {
			d := grantTimes[j].Sub(grantTimes[i])
			if d >= 0 && d < window-10*time.Millisecond {
				count++
			}
		}
		assert.LessOrEqual(t, count, max, "rolling window overflow at grant %d", i)
	}
}

func TestAcquireFIFOOrder(t *testing.T) {
	l := New(200*time.Millisecond, 1, 0)

	// Consume the only unit so subsequent acquirers queue up.
	first, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, first)

	order := make(chan int, 3)
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Acquire(context.Background(), 1)
			if err == nil {
				order <- i
			}
		}()
		// Stagger starts so queue order is deterministic.
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
	close(order)

	var got []int
	for i := range order {
		got = append(got, i)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestAcquireContextCancelled(t *testing.T) {
	l := New(time.Minute, 1, 0)

	_, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, 1)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled acquire did not return")
	}
}

func TestAcquireMaxWaitExceeded(t *testing.T) {
	l := New(time.Minute, 1, 50*time.Millisecond)

	_, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	start := time.Now()
	_, err = l.Acquire(context.Background(), 1)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReleaseEarlyFreesQuota(t *testing.T) {
	l := New(time.Minute, 1, 0)

	p, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := l.Acquire(context.Background(), 1)
		assert.NoError(t, err)
	}()

	time.Sleep(20 * time.Millisecond)
	p.ReleaseEarly()
	p.ReleaseEarly() // idempotent

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not served after early release")
	}
}

func TestCancelledWaiterDoesNotConsumeQuota(t *testing.T) {
	l := New(time.Minute, 1, 0)

	p, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, 1)
		errs <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.Error(t, <-errs)

	// The abandoned slot must go to the next waiter once quota frees up.
	p.ReleaseEarly()
	got, err := l.Acquire(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, got)
}
