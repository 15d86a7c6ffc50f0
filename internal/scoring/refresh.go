package scoring

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"
)

// refreshCoordinator de-duplicates background refreshes per wallet (no more
// than one in flight at a time for a given wallet) and caps the number of
// concurrently in-flight refreshes globally, per spec §4.5 step 2.
type refreshCoordinator struct {
	sf    singleflight.Group
	sem   chan struct{}
	mu    sync.Mutex
	inFlight map[string]bool
}

func newRefreshCoordinator(maxConcurrent int) *refreshCoordinator {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &refreshCoordinator{
		sem:      make(chan struct{}, maxConcurrent),
		inFlight: make(map[string]bool),
	}
}

// Trigger launches a background refresh for wallet unless one is already
// in flight for it or the global concurrency cap is exhausted — in either
// case the caller's stale read is simply served as-is (spec §4.5 step 2:
// "excess requests simply return stale").
func (r *refreshCoordinator) Trigger(wallet string, fn func(ctx context.Context)) {
	r.mu.Lock()
	if r.inFlight[wallet] {
		r.mu.Unlock()
		return
	}
	select {
	case r.sem <- struct{}{}:
	default:
		r.mu.Unlock()
		return
	}
	r.inFlight[wallet] = true
	r.mu.Unlock()

	go func() {
		defer func() {
			<-r.sem
			r.mu.Lock()
			delete(r.inFlight, wallet)
			r.mu.Unlock()
		}()
		_, err, _ := r.sf.Do(wallet, func() (interface{}, error) {
			fn(context.Background())
			return nil, nil
		})
		if err != nil {
			log.Printf("background refresh %s: %v", wallet, err)
		}
	}()
}
