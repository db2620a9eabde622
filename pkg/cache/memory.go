package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a stored response may be served as a fallback.
	DefaultTTL = 5 * time.Minute

	// DefaultCapacity is the maximum number of stored responses.
	DefaultCapacity = 100
)

// Config holds the memory cache limits.
type Config struct {
	TTL      time.Duration
	Capacity int
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		TTL:      DefaultTTL,
		Capacity: DefaultCapacity,
	}
}

// Option configures a Memory cache.
type Option func(*Memory)

// WithClock replaces time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(m *Memory) {
		m.now = now
	}
}

// Memory is a bounded, TTL-based store of last-known-good responses.
// It is safe for concurrent use; one mutex guards the map and the insertion
// order list.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest insertion
	ttl     time.Duration
	cap     int
	now     func() time.Time
}

// NewMemory creates an empty cache. Non-positive limits fall back to defaults.
func NewMemory(cfg Config, opts ...Option) *Memory {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}

	m := &Memory{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		ttl:     cfg.TTL,
		cap:     cfg.Capacity,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured entry lifetime.
func (m *Memory) TTL() time.Duration {
	return m.ttl
}

// Capacity returns the configured entry ceiling.
func (m *Memory) Capacity() int {
	return m.cap
}

// Get returns a copy of the entry stored under key.
// Expired entries are removed and reported as absent.
func (m *Memory) Get(key string) (*Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		CacheMisses.Inc()
		return nil, false
	}

	entry := elem.Value.(*Entry)
	if entry.Expired(m.now(), m.ttl) {
		m.removeLocked(elem)
		CacheEvictions.WithLabelValues("ttl").Inc()
		CacheMisses.Inc()
		return nil, false
	}

	CacheHits.Inc()
	return entry.clone(), true
}

// Put stores payload under key, replacing any previous entry. When the cache
// grows past its capacity the oldest insertion is evicted.
func (m *Memory) Put(key string, payload []byte, statusCode int) {
	entry := &Entry{
		Key:        key,
		Payload:    append([]byte(nil), payload...),
		StatusCode: statusCode,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry.StoredAt = m.now()

	if elem, ok := m.entries[key]; ok {
		m.order.Remove(elem)
	}
	m.entries[key] = m.order.PushBack(entry)

	for m.order.Len() > m.cap {
		m.removeLocked(m.order.Front())
		CacheEvictions.WithLabelValues("capacity").Inc()
	}
	CacheEntries.Set(float64(m.order.Len()))
}

// Delete removes key if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.removeLocked(elem)
	}
}

// Len returns the number of stored entries, expired ones included until read.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Purge removes every entry.
func (m *Memory) Purge() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*list.Element)
	m.order.Init()
	CacheEntries.Set(0)
}

func (m *Memory) removeLocked(elem *list.Element) {
	entry := m.order.Remove(elem).(*Entry)
	delete(m.entries, entry.Key)
	CacheEntries.Set(float64(m.order.Len()))
}
