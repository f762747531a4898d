package metrics

import "sync"

// Collector is an explicitly-scoped set of named counters. Components receive
// one at construction instead of bumping process-wide globals; sharing a
// collector across components is the caller's choice, not an ambient fact.
type Collector struct {
	mu       sync.Mutex
	counters map[string]int64
}

func NewCollector() *Collector {
	return &Collector{
		counters: make(map[string]int64),
	}
}

// Inc adds one to the named counter.
func (c *Collector) Inc(name string) {
	c.Add(name, 1)
}

// Add adds delta to the named counter, creating it at zero if absent.
func (c *Collector) Add(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters[name] += delta
	c.mu.Unlock()
}

// Get returns the current value of one counter.
func (c *Collector) Get(name string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[name]
}

// Snapshot returns a copy of all counters.
func (c *Collector) Snapshot() map[string]int64 {
	if c == nil {
		return map[string]int64{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.counters))
	for name, value := range c.counters {
		out[name] = value
	}
	return out
}

// Reset zeroes every counter. Intended for scoped lifecycles such as tests or
// per-run reporting windows.
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.counters = make(map[string]int64)
	c.mu.Unlock()
}
