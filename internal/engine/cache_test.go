package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeNow struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeNow) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func counting(calls *atomic.Int32) func() (*RaceStats, error) {
	return func() (*RaceStats, error) {
		n := calls.Add(1)
		return &RaceStats{TotalLaps: int(n)}, nil
	}
}

func TestStatsCacheHitAndExpiry(t *testing.T) {
	clk := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	c := NewStatsCache(5*time.Second, clk.Now)
	var calls atomic.Int32

	for range 3 {
		s, err := c.Get("r1", counting(&calls))
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if s.TotalLaps != 1 {
			t.Errorf("stats = %d, want cached 1", s.TotalLaps)
		}
	}

	clk.Advance(5 * time.Second)
	s, _ := c.Get("r1", counting(&calls))
	if s.TotalLaps != 2 {
		t.Errorf("stats after ttl = %d, want recomputed 2", s.TotalLaps)
	}
	if calls.Load() != 2 {
		t.Errorf("compute calls = %d, want 2", calls.Load())
	}
}

func TestStatsCacheInvalidate(t *testing.T) {
	c := NewStatsCache(time.Hour, nil)
	var calls atomic.Int32

	c.Get("r1", counting(&calls))
	c.Get("r2", counting(&calls))
	c.Invalidate("r1")

	s, _ := c.Get("r1", counting(&calls))
	if s.TotalLaps != 3 {
		t.Errorf("stats after invalidate = %d, want 3", s.TotalLaps)
	}
	s, _ = c.Get("r2", counting(&calls))
	if s.TotalLaps != 2 {
		t.Errorf("other race = %d, want untouched 2", s.TotalLaps)
	}
}

func TestStatsCacheStaleComputeNotStored(t *testing.T) {
	c := NewStatsCache(time.Hour, nil)

	s, err := c.Get("r1", func() (*RaceStats, error) {
		// A write lands while the stats are being computed.
		c.Invalidate("r1")
		return &RaceStats{TotalLaps: 1}, nil
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if s.TotalLaps != 1 {
		t.Errorf("stats = %d, want 1", s.TotalLaps)
	}
	if c.Len() != 0 {
		t.Errorf("cache entries = %d, want 0", c.Len())
	}
}

func TestStatsCacheError(t *testing.T) {
	c := NewStatsCache(time.Hour, nil)
	boom := errors.New("boom")

	if _, err := c.Get("r1", func() (*RaceStats, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if c.Len() != 0 {
		t.Errorf("cache entries = %d, want 0 after failed compute", c.Len())
	}
}

func TestStatsCacheCollapsesConcurrentMisses(t *testing.T) {
	c := NewStatsCache(time.Hour, nil)
	var calls atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			s, err := c.Get("r1", func() (*RaceStats, error) {
				calls.Add(1)
				<-release
				return &RaceStats{TotalLaps: 7}, nil
			})
			if err != nil || s.TotalLaps != 7 {
				t.Errorf("Get = %v, %v", s, err)
			}
		})
	}
	// Give every goroutine time to join the in-flight computation.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := calls.Load(); n != 1 {
		t.Errorf("compute calls = %d, want 1", n)
	}
}
