package metrics

import (
	"sync"
	"testing"
)

func TestCollectorCounters(t *testing.T) {
	c := NewCollector()

	c.Inc("orders_submitted")
	c.Inc("orders_submitted")
	c.Add("candles_persisted", 5)

	if got := c.Get("orders_submitted"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := c.Get("candles_persisted"); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := c.Get("never_touched"); got != 0 {
		t.Fatalf("absent counter must read zero, got %d", got)
	}

	snap := c.Snapshot()
	if len(snap) != 2 || snap["orders_submitted"] != 2 {
		t.Fatalf("unexpected snapshot: %v", snap)
	}

	// Snapshot is a copy, not a view.
	snap["orders_submitted"] = 99
	if got := c.Get("orders_submitted"); got != 2 {
		t.Fatalf("snapshot mutation leaked into collector: %d", got)
	}

	c.Reset()
	if got := c.Get("orders_submitted"); got != 0 {
		t.Fatalf("expected zero after reset, got %d", got)
	}
}

func TestCollectorConcurrentAdds(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc("hits")
			}
		}()
	}
	wg.Wait()

	if got := c.Get("hits"); got != 5000 {
		t.Fatalf("expected 5000 hits, got %d", got)
	}
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *Collector

	c.Inc("anything")
	if got := c.Get("anything"); got != 0 {
		t.Fatalf("nil collector must read zero, got %d", got)
	}
	if snap := c.Snapshot(); len(snap) != 0 {
		t.Fatalf("nil collector snapshot must be empty: %v", snap)
	}
	c.Reset()
}
