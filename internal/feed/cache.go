package feed

import "sync/atomic"

// Cache holds the single live feed snapshot. Writers replace the
// snapshot wholesale; readers take a lock-free pointer read. The cache
// starts empty and never reverts to empty once populated — a failed
// rebuild leaves the previous snapshot in place.
type Cache struct {
	current atomic.Pointer[Snapshot]
}

func NewCache() *Cache {
	return &Cache{}
}

// Get returns the live snapshot, or false while the cache has never
// been populated.
func (c *Cache) Get() (*Snapshot, bool) {
	snapshot := c.current.Load()
	if snapshot == nil {
		return nil, false
	}
	return snapshot, true
}

// Set publishes a snapshot, replacing the previous one atomically.
func (c *Cache) Set(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	c.current.Store(snapshot)
}
