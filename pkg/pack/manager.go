package pack

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Faultbox/nifbridge/pkg/encoding"
)

// Manager resolves asset paths across several packs.
// Packs are searched in reverse order (last added = highest priority).
type Manager struct {
	archives []*Archive
	cache    *Cache
	log      *zap.Logger
	mu       sync.RWMutex
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for pack lookups.
func WithLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithCacheEntries bounds the cache to n entries, evicting the oldest
// first. Zero or less keeps every entry.
func WithCacheEntries(n int) ManagerOption {
	return func(m *Manager) {
		m.cache.max = n
	}
}

// NewManager creates a manager with an empty cache.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		cache: NewCache(),
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddPack opens a pack file and appends it to the search list.
func (m *Manager) AddPack(path string) error {
	archive, err := Open(path)
	if err != nil {
		return fmt.Errorf("adding pack %s: %w", path, err)
	}
	m.AddArchive(archive)
	m.log.Debug("pack added", zap.String("path", path), zap.Int("files", archive.Len()))
	return nil
}

// AddArchive appends an already opened archive. The manager takes ownership.
func (m *Manager) AddArchive(archive *Archive) {
	m.mu.Lock()
	m.archives = append(m.archives, archive)
	m.mu.Unlock()
}

// Load reads a file from the highest-priority pack containing it.
func (m *Manager) Load(path string) ([]byte, error) {
	key := encoding.NormalizePath(path)
	if data, ok := m.cache.Get(key); ok {
		return data, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.archives) - 1; i >= 0; i-- {
		if !m.archives[i].Contains(key) {
			continue
		}
		data, err := m.archives[i].Read(key)
		if err != nil {
			return nil, err
		}
		m.cache.Set(key, data)
		return data, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
}

// Contains reports whether any pack holds path.
func (m *Manager) Contains(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, archive := range m.archives {
		if archive.Contains(path) {
			return true
		}
	}
	return false
}

// List returns the union of all pack listings.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []string
	for _, archive := range m.archives {
		for _, name := range archive.List() {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			result = append(result, name)
		}
	}
	return result
}

// Cache returns the manager's cache.
func (m *Manager) Cache() *Cache {
	return m.cache
}

// Close closes all packs and clears the cache.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, archive := range m.archives {
		if err := archive.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	m.archives = nil
	m.cache.Clear()
	return errors.Join(errs...)
}

// Cache is an in-memory cache for loaded pack entries.
type Cache struct {
	data  map[string][]byte
	order []string // insertion order, for eviction
	max   int
	mu    sync.Mutex

	// Stats
	hits   int
	misses int
}

// NewCache creates a new cache.
func NewCache() *Cache {
	return &Cache{
		data: make(map[string][]byte),
	}
}

// Get retrieves an item from cache.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, ok := c.data[key]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return data, ok
}

// Set stores an item in cache.
func (c *Cache) Set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok {
		c.order = append(c.order, key)
	}
	c.data[key] = data

	for c.max > 0 && len(c.order) > c.max {
		delete(c.data, c.order[0])
		c.order = c.order[1:]
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Clear clears the cache and its statistics.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string][]byte)
	c.order = nil
	c.hits = 0
	c.misses = 0
}

// Stats returns cache statistics.
func (c *Cache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
