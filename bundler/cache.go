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
package bundler

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/fs"
)

// DefaultContentCacheSize bounds the number of cached sources.
const DefaultContentCacheSize = 4096

// ContentCache holds file contents keyed by absolute path, shared by all
// bundles of a session. Concurrent loads of one path read the file once.
// Each entry keeps the fingerprint of its bytes, which may differ from the
// file on disk if it changed after the read.
type ContentCache struct {
	fsys  fs.FileSystem
	cache *lru.Cache[string, content]
	group singleflight.Group
}

type content struct {
	data []byte
	fp   fingerprint.Fingerprint
}

// NewContentCache creates a cache holding at most size entries.
func NewContentCache(fsys fs.FileSystem, size int) (*ContentCache, error) {
	if size <= 0 {
		size = DefaultContentCacheSize
	}
	cache, err := lru.New[string, content](size)
	if err != nil {
		return nil, fmt.Errorf("creating content cache: %w", err)
	}
	return &ContentCache{fsys: fsys, cache: cache}, nil
}

// Load returns the contents of path, reading it on a miss.
// Callers must not modify the returned slice.
func (c *ContentCache) Load(path string) ([]byte, error) {
	data, _, err := c.LoadFingerprint(path)
	return data, err
}

// LoadFingerprint is Load that also returns the fingerprint of the
// returned bytes.
func (c *ContentCache) LoadFingerprint(path string) ([]byte, fingerprint.Fingerprint, error) {
	if entry, ok := c.cache.Get(path); ok {
		return entry.data, entry.fp, nil
	}
	v, err, _ := c.group.Do(path, func() (any, error) {
		info, err := c.fsys.Stat(path)
		if err != nil {
			return content{}, err
		}
		data, err := c.fsys.ReadFile(path)
		if err != nil {
			return content{}, err
		}
		entry := content{data: data, fp: fingerprint.Bytes(info.Mode(), data)}
		c.cache.Add(path, entry)
		return entry, nil
	})
	if err != nil {
		return nil, 0, err
	}
	entry := v.(content)
	return entry.data, entry.fp, nil
}

// Fingerprint returns the fingerprint of the cached bytes of path.
func (c *ContentCache) Fingerprint(path string) (fingerprint.Fingerprint, bool) {
	entry, ok := c.cache.Peek(path)
	return entry.fp, ok
}

// Invalidate drops paths from the cache.
func (c *ContentCache) Invalidate(paths ...string) {
	for _, path := range paths {
		c.group.Forget(path)
		c.cache.Remove(path)
	}
}

// Purge empties the cache.
func (c *ContentCache) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached files.
func (c *ContentCache) Len() int {
	return c.cache.Len()
}

// Contains reports whether path is cached.
func (c *ContentCache) Contains(path string) bool {
	return c.cache.Contains(path)
}
