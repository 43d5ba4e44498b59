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

// Package depindex tracks which source files each bundle depends on and the
// fingerprint each file had when it was last observed.
package depindex

import (
	"context"
	"path/filepath"
	"runtime"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/fs"
)

// Index maps watched files to fingerprints, and bundles to the files they
// depend on. Paths are absolute. It is safe for concurrent use.
type Index struct {
	fsys fs.FileSystem

	mu sync.RWMutex

	// fingerprints maps a watched path to its last observed fingerprint.
	// Zero means the file could not be read when recorded.
	fingerprints map[string]fingerprint.Fingerprint

	// files maps bundle key -> set of paths it depends on
	files map[string]map[string]bool

	// bundles maps path -> set of bundle keys depending on it
	bundles map[string]map[string]bool
}

// New creates an empty index reading files through fsys.
func New(fsys fs.FileSystem) *Index {
	return &Index{
		fsys:         fsys,
		fingerprints: make(map[string]fingerprint.Fingerprint),
		files:        make(map[string]map[string]bool),
		bundles:      make(map[string]map[string]bool),
	}
}

// Record fingerprints path and adds it to bundle's dependencies, replacing
// any earlier fingerprint. An unreadable path is recorded with a zero
// fingerprint so that it reads as stale on the next check.
func (x *Index) Record(bundle, path string) {
	fp, err := fingerprint.Path(x.fsys, path)
	if err != nil {
		fp = 0
	}
	x.RecordFingerprint(bundle, path, fp)
}

// RecordFingerprint adds path to bundle's dependencies with fp, the
// fingerprint of the bytes the build saw. If the file has changed since,
// the next Stale check reports it.
func (x *Index) RecordFingerprint(bundle, path string, fp fingerprint.Fingerprint) {
	path = filepath.Clean(path)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.fingerprints[path] = fp

	if x.files[bundle] == nil {
		x.files[bundle] = make(map[string]bool)
	}
	x.files[bundle][path] = true

	if x.bundles[path] == nil {
		x.bundles[path] = make(map[string]bool)
	}
	x.bundles[path][bundle] = true
}

// Stale reports whether path changed since it was recorded.
// Missing or unreadable files, and paths never recorded, are stale.
func (x *Index) Stale(path string) bool {
	x.mu.RLock()
	want, ok := x.fingerprints[path]
	x.mu.RUnlock()
	if !ok || want == 0 {
		return true
	}

	got, err := fingerprint.Path(x.fsys, path)
	return err != nil || got != want
}

// StalePaths checks every watched path and returns the stale ones, sorted.
func (x *Index) StalePaths(ctx context.Context) ([]string, error) {
	paths := x.Watched()
	stale := make([]bool, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			stale[i] = x.Stale(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []string
	for i, path := range paths {
		if stale[i] {
			out = append(out, path)
		}
	}
	return out, nil
}

// Evict forgets paths entirely: their fingerprints and every bundle edge.
func (x *Index) Evict(paths ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, path := range paths {
		for bundle := range x.bundles[path] {
			delete(x.files[bundle], path)
		}
		delete(x.bundles, path)
		delete(x.fingerprints, path)
	}
}

// BundlesDependingOn returns the bundle keys that depend on path, sorted.
func (x *Index) BundlesDependingOn(path string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.bundles[path])
}

// Dependencies returns the paths bundle depends on, sorted.
func (x *Index) Dependencies(bundle string) []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return sortedKeys(x.files[bundle])
}

// ResetBundle clears bundle's dependencies ahead of a rebuild. Paths no
// other bundle depends on stop being watched; they are returned, sorted.
func (x *Index) ResetBundle(bundle string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()

	var unwatched []string
	for path := range x.files[bundle] {
		delete(x.bundles[path], bundle)
		if len(x.bundles[path]) == 0 {
			delete(x.bundles, path)
			delete(x.fingerprints, path)
			unwatched = append(unwatched, path)
		}
	}
	delete(x.files, bundle)
	slices.Sort(unwatched)
	return unwatched
}

// RemoveBundle drops bundle from the index, returning the paths that
// stopped being watched.
func (x *Index) RemoveBundle(bundle string) []string {
	return x.ResetBundle(bundle)
}

// Watched returns every watched path, sorted.
func (x *Index) Watched() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()

	out := make([]string, 0, len(x.fingerprints))
	for path := range x.fingerprints {
		out = append(out, path)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of watched paths.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.fingerprints)
}

// Fingerprint returns the recorded fingerprint of path.
func (x *Index) Fingerprint(path string) (fingerprint.Fingerprint, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	fp, ok := x.fingerprints[path]
	return fp, ok
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
