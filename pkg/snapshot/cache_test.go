package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// stubFetcher is a scriptable upstream context store.
type stubFetcher struct {
	calls   int32
	entered chan struct{} // closed when the first fetch starts
	gate    chan struct{} // when set, fetches block until closed
	snap    *Snapshot
	err     error

	enterOnce sync.Once
}

func (f *stubFetcher) Fetch(ctx context.Context, tenant, entityID string) (*Snapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.entered != nil {
		f.enterOnce.Do(func() { close(f.entered) })
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.snap, nil
}

type stubNotifier struct {
	signals chan string
}

func (n *stubNotifier) Rehydrate(tenant, entityID string) {
	n.signals <- tenant + "/" + entityID
}

func TestCacheHotHit(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("must not be called")}
	cache := NewCache(nil, fetcher, nil)

	snap := New("acme", "user-1", map[string]any{"tier": "gold"}, nil)
	cache.Put(snap)

	got, source, err := cache.Get(context.Background(), "acme", "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if source != SourceHot {
		t.Errorf("source = %s, want %s", source, SourceHot)
	}
	if got.SnapshotID != snap.SnapshotID {
		t.Errorf("got snapshot %s, want %s", got.SnapshotID, snap.SnapshotID)
	}
	if n := atomic.LoadInt32(&fetcher.calls); n != 0 {
		t.Errorf("fetcher called %d times on a hot hit", n)
	}
}

func TestCacheCoalescesConcurrentFetches(t *testing.T) {
	snap := New("acme", "user-1", map[string]any{"tier": "gold"}, nil)
	fetcher := &stubFetcher{
		snap:    snap,
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
	cache := NewCache(nil, fetcher, nil)

	const readers = 8
	var wg sync.WaitGroup
	results := make([]*Snapshot, readers)
	errs := make([]error, readers)

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = cache.Get(context.Background(), "acme", "user-1")
		}(i)
	}

	// Release the in-flight fetch once the first reader reached it and
	// the rest had time to join the flight.
	<-fetcher.entered
	time.Sleep(50 * time.Millisecond)
	close(fetcher.gate)
	wg.Wait()

	if n := atomic.LoadInt32(&fetcher.calls); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
	for i := 0; i < readers; i++ {
		if errs[i] != nil {
			t.Fatalf("reader %d: %v", i, errs[i])
		}
		if results[i].SnapshotID != snap.SnapshotID {
			t.Errorf("reader %d got snapshot %s, want %s", i, results[i].SnapshotID, snap.SnapshotID)
		}
	}
}

func TestCacheOutageServesLastKnownGood(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("upstream down")}
	// Negative TTL expires entries on write, forcing the upstream path.
	cache := NewCache(&CacheConfig{TTL: -time.Second}, fetcher, nil)

	snap := New("acme", "user-1", map[string]any{"tier": "gold"}, nil)
	cache.Put(snap)

	got, source, err := cache.Get(context.Background(), "acme", "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if source != SourceFallback {
		t.Errorf("source = %s, want %s", source, SourceFallback)
	}
	if got.SnapshotID != snap.SnapshotID {
		t.Errorf("got snapshot %s, want last known good %s", got.SnapshotID, snap.SnapshotID)
	}
}

func TestCacheOutageWithEmptyFallbackFailsClosed(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("upstream down")}
	cache := NewCache(nil, fetcher, nil)

	_, _, err := cache.Get(context.Background(), "acme", "user-1")
	if err == nil {
		t.Fatal("expected an error when upstream is down and no fallback exists")
	}
}

func TestCacheMissServesDefaultAndSignalsRehydration(t *testing.T) {
	fetcher := &stubFetcher{err: ErrNotFound}
	notifier := &stubNotifier{signals: make(chan string, 1)}
	cache := NewCache(nil, fetcher, notifier)

	got, source, err := cache.Get(context.Background(), "acme", "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if source != SourceDefault {
		t.Errorf("source = %s, want %s", source, SourceDefault)
	}
	if !got.IsDefault() {
		t.Error("expected the anonymous default context")
	}

	select {
	case sig := <-notifier.signals:
		if sig != "acme/user-1" {
			t.Errorf("rehydration signal = %q", sig)
		}
	case <-time.After(time.Second):
		t.Error("no rehydration signal within 1s")
	}
}

func TestCacheIngestOnlyServesExpiredEntry(t *testing.T) {
	cache := NewCache(&CacheConfig{TTL: -time.Second}, nil, nil)

	snap := New("acme", "user-1", map[string]any{"tier": "gold"}, nil)
	cache.Put(snap)

	got, source, err := cache.Get(context.Background(), "acme", "user-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if source != SourceHot {
		t.Errorf("source = %s, want %s", source, SourceHot)
	}
	if got.SnapshotID != snap.SnapshotID {
		t.Errorf("got snapshot %s, want the ingested one", got.SnapshotID)
	}

	_, source, err = cache.Get(context.Background(), "acme", "user-2")
	if err != nil {
		t.Fatalf("Get unknown entity: %v", err)
	}
	if source != SourceDefault {
		t.Errorf("unknown entity source = %s, want %s", source, SourceDefault)
	}
}
