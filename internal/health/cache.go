package health

import (
	"sync"
	"time"
)

// Status of a service as last observed by a probe.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// Record is the last probe outcome for one service.
type Record struct {
	Status       Status        `json:"status"`
	LastCheck    time.Time     `json:"lastCheck"`
	Error        *string       `json:"error"`
	ResponseTime time.Duration `json:"-"`
	Version      string        `json:"version,omitempty"`
}

// Cache tracks health of multiple services in a thread-safe manner
type Cache struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewCache(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{records: map[string]Record{}, now: now}
}

// Init seeds every name as unknown.
func (c *Cache) Init(names []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, n := range names {
		c.records[n] = Record{Status: StatusUnknown, LastCheck: now}
	}
}

func (c *Cache) MarkHealthy(name string, responseTime time.Duration, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[name] = Record{Status: StatusHealthy, LastCheck: c.now(), ResponseTime: responseTime, Version: version}
}

func (c *Cache) MarkUnhealthy(name string, responseTime time.Duration, errMsg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[name] = Record{Status: StatusUnhealthy, LastCheck: c.now(), ResponseTime: responseTime, Error: &errMsg}
}

// Get retrieves the record for a named service
func (c *Cache) Get(name string) (Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.records[name]
	return r, ok
}

// All returns a copy of all current records
func (c *Cache) All() map[string]Record {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Record, len(c.records))
	for k, v := range c.records {
		out[k] = v
	}
	return out
}
