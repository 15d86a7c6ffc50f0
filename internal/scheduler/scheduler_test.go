package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobDoesNotFireBeforeStartupDelay(t *testing.T) {
	var fired int32
	job := Job{
		Name:         "delayed",
		Period:       5 * time.Millisecond,
		StartupDelay: 200 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&fired, 1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	s := New([]Job{job})
	s.Start(ctx)

	require.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestJobFiresAfterPeriod(t *testing.T) {
	var fired int32
	job := Job{
		Name:   "prompt",
		Period: 10 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&fired, 1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	s := New([]Job{job})
	s.Start(ctx)

	require.GreaterOrEqual(t, atomic.LoadInt32(&fired), int32(1))
}

func TestSingleFlightSkipsOverlappingTicks(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	started := make(chan struct{}, 100)

	job := Job{
		Name:   "slow",
		Period: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&concurrent, 1)
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
					break
				}
			}
			started <- struct{}{}
			time.Sleep(80 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	s := New([]Job{job})
	s.Start(ctx)

	require.Equal(t, int32(1), atomic.LoadInt32(&maxConcurrent))
}
