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
package engine

import (
	"context"
	"maps"
	"slices"

	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/internal/metrics"
)

// invalidate decides which existing descriptors must be rebuilt, evicts
// stale index entries and drops the invalidated descriptors. It returns the
// invalidated keys with the first reason found for each.
//
// A bundle is invalidated when a file it depends on changed or vanished,
// when its entry points resolve differently (by position), or when its
// output artifact is missing.
func (s *Session) invalidate(ctx context.Context, resolver *bundlespec.Resolver) (map[string]string, error) {
	invalidated := make(map[string]string)
	mark := func(key, reason string) {
		if _, done := invalidated[key]; !done {
			invalidated[key] = reason
		}
	}

	stale, err := s.index.StalePaths(ctx)
	if err != nil {
		return nil, err
	}
	for _, path := range stale {
		for _, key := range s.index.BundlesDependingOn(path) {
			mark(key, metrics.ReasonDependency)
		}
	}
	if len(stale) > 0 {
		s.debugf("%d watched files changed", len(stale))
	}

	s.mu.Lock()
	descriptors := maps.Clone(s.descriptors)
	s.mu.Unlock()

	for _, key := range slices.Sorted(maps.Keys(descriptors)) {
		d := descriptors[key]
		if _, done := invalidated[key]; done {
			continue
		}

		_, abs, err := resolver.EntryPoints(d.Spec, d.Key)
		if err != nil {
			return nil, err
		}
		if !slices.Equal(abs, d.EntryPointsAbsolute) {
			mark(key, metrics.ReasonEntryPoints)
			continue
		}
		if d.entriesChanged(s.fsys) {
			mark(key, metrics.ReasonDependency)
			continue
		}
		if !s.fsys.Exists(d.OutputAbs) {
			mark(key, metrics.ReasonOutputMissing)
		}
	}

	s.index.Evict(stale...)
	s.release(stale)

	for _, key := range slices.Sorted(maps.Keys(invalidated)) {
		reason := invalidated[key]
		metrics.BundleInvalidated.WithLabelValues(reason).Inc()
		s.debugf("invalidated %s (%s)", key, reason)

		d, ok := descriptors[key]
		if !ok {
			continue
		}
		d.setState(StateStale)
		if err := s.forget(d); err != nil {
			s.warnf("closing bundle %s: %v", key, err)
		}
	}

	return invalidated, nil
}
