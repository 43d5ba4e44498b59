/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
package packagejson

import "sync"

// Cache stores parsed manifests keyed by absolute file path.
// Implementations must be safe for concurrent use by several bundles.
type Cache interface {
	Get(path string) (*PackageJSON, bool)
	Set(path string, pkg *PackageJSON)

	// Invalidate drops a cached entry, typically because the file changed.
	Invalidate(path string)

	// GetOrLoad returns the cached entry or runs loader exactly once per path
	// while concurrent callers wait for its result.
	GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error)
}

type loadCall struct {
	once sync.Once
	pkg  *PackageJSON
	err  error
}

// MemoryCache is a thread-safe in-memory Cache.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*PackageJSON
	calls   map[string]*loadCall
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]*PackageJSON),
		calls:   make(map[string]*loadCall),
	}
}

func (c *MemoryCache) Get(path string) (*PackageJSON, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pkg, ok := c.entries[path]
	return pkg, ok
}

func (c *MemoryCache) Set(path string, pkg *PackageJSON) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[path] = pkg
}

func (c *MemoryCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, path)
	delete(c.calls, path)
}

// Purge empties the cache.
func (c *MemoryCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	clear(c.calls)
}

// Len reports the number of cached manifests.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *MemoryCache) GetOrLoad(path string, loader func() (*PackageJSON, error)) (*PackageJSON, error) {
	c.mu.Lock()
	if pkg, ok := c.entries[path]; ok {
		c.mu.Unlock()
		return pkg, nil
	}
	call, ok := c.calls[path]
	if !ok {
		call = &loadCall{}
		c.calls[path] = call
	}
	c.mu.Unlock()

	call.once.Do(func() {
		call.pkg, call.err = loader()

		c.mu.Lock()
		defer c.mu.Unlock()
		// An Invalidate during the load wins; do not resurrect the entry.
		if c.calls[path] != call {
			return
		}
		delete(c.calls, path)
		if call.err == nil {
			c.entries[path] = call.pkg
		}
	})

	return call.pkg, call.err
}
