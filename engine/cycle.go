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
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/internal/metrics"
)

// BuildError is one bundle's build failure.
type BuildError struct {
	Key string
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("bundle %q: %v", e.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// CycleResult reports what one cycle did.
type CycleResult struct {
	DestDir string
	// Outputs maps every live bundle key to its destination-relative output path.
	Outputs map[string]string
	Built   []string
	Skipped []string
	Deleted []string
	// Empty lists bundles that resolved no entry points and were not built.
	Empty       []string
	Invalidated map[string]string
	Failed      map[string]error
	Duration    time.Duration
}

// RunCycle brings the destination directory up to date with sourceRoot.
//
// It resolves the bundle specifications, removes bundles whose entry points
// vanished, invalidates bundles whose inputs changed, then builds every new
// or invalidated bundle concurrently. A failed bundle does not stop the
// others; the first failure is returned as a *BuildError once all builds
// have finished, alongside the full result. Configuration errors abort the
// cycle before any build starts.
func (s *Session) RunCycle(ctx context.Context, sourceRoot string) (*CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	start := time.Now()
	result := &CycleResult{
		DestDir:     s.destDir,
		Outputs:     make(map[string]string),
		Invalidated: make(map[string]string),
		Failed:      make(map[string]error),
	}
	defer func() {
		result.Duration = time.Since(start)
		metrics.CycleDuration.Observe(result.Duration.Seconds())
		metrics.WatchedFiles.Set(float64(s.index.Len()))
	}()

	root, err := filepath.Abs(sourceRoot)
	if err != nil {
		return result, fmt.Errorf("resolving source root: %w", err)
	}

	// Resolution only reads the tree, so a configuration error leaves the
	// session as it was.
	resolver := bundlespec.NewResolver(s.fsys, root, s.opts)
	resolved, err := resolver.Resolve()
	if err != nil {
		return result, err
	}

	previous := s.outputs()
	s.switchRoot(root, result)
	s.cleanup(result)

	invalidated, err := s.invalidate(ctx, resolver)
	if err != nil {
		return result, err
	}
	maps.Copy(result.Invalidated, invalidated)

	var (
		pending  []*Descriptor
		setupErr error
	)
	for _, r := range resolved {
		if d, ok := s.Descriptor(r.Key); ok {
			s.debugf("skipping %s, up to date", r.Key)
			result.Skipped = append(result.Skipped, r.Key)
			result.Outputs[r.Key] = d.OutputPath
			metrics.BundleSkipped.Inc()
			continue
		}

		if len(r.EntryPointsAbsolute) == 0 && !r.Spec.AlwaysBuild {
			s.warnf("bundle %s has no entry points, skipping", r.Key)
			result.Empty = append(result.Empty, r.Key)
			continue
		}

		d := newDescriptor(s.fsys, s.destDir, r)
		s.infof("creating bundle %s (%d entry points)", d.OutputPath, len(d.EntryPointsRelative))

		if err := s.fsys.MkdirAll(filepath.Dir(d.OutputAbs), 0755); err != nil {
			buildErr := &BuildError{Key: r.Key, Err: fmt.Errorf("creating output directory: %w", err)}
			s.warnf("%v", buildErr)
			result.Failed[r.Key] = buildErr
			if setupErr == nil {
				setupErr = buildErr
			}
			continue
		}

		s.mu.Lock()
		s.descriptors[d.Key] = d
		s.mu.Unlock()
		pending = append(pending, d)
	}

	// Invalidated bundles that did not come back lose their stale output.
	for _, key := range slices.Sorted(maps.Keys(result.Invalidated)) {
		if _, ok := s.Descriptor(key); ok {
			continue
		}
		if output, ok := previous[key]; ok {
			s.removeOutput(output)
		}
	}

	firstErr := s.dispatch(ctx, root, pending, result)
	if setupErr != nil {
		firstErr = setupErr
	}

	slices.Sort(result.Built)
	slices.Sort(result.Skipped)
	slices.Sort(result.Deleted)
	slices.Sort(result.Empty)

	s.infof("built %d, skipped %d, deleted %d, failed %d bundles",
		len(result.Built), len(result.Skipped), len(result.Deleted), len(result.Failed))

	return result, firstErr
}

// switchRoot drops every descriptor when the source root moves.
func (s *Session) switchRoot(root string, result *CycleResult) {
	if s.sourceRoot == root {
		return
	}
	previous := s.sourceRoot
	s.sourceRoot = root
	if previous == "" {
		return
	}

	s.mu.Lock()
	descriptors := slices.Collect(maps.Values(s.descriptors))
	s.mu.Unlock()

	for _, d := range descriptors {
		result.Invalidated[d.Key] = metrics.ReasonSourceRoot
		metrics.BundleInvalidated.WithLabelValues(metrics.ReasonSourceRoot).Inc()
		if err := s.forget(d); err != nil {
			s.warnf("closing bundle %s: %v", d.Key, err)
		}
	}
	if len(descriptors) > 0 {
		s.debugf("source root moved from %s to %s, rebuilding everything", previous, root)
	}
}

// cleanup deletes bundles none of whose entry points exist any more.
func (s *Session) cleanup(result *CycleResult) {
	s.mu.Lock()
	descriptors := slices.Collect(maps.Values(s.descriptors))
	s.mu.Unlock()

	for _, d := range descriptors {
		if len(d.EntryPointsAbsolute) == 0 || d.anyEntryExists(s.fsys) {
			continue
		}
		s.infof("deleting bundle %s, its entry points are gone", d.OutputPath)
		s.removeOutput(d.OutputAbs)
		if err := s.forget(d); err != nil {
			s.warnf("closing bundle %s: %v", d.Key, err)
		}
		result.Deleted = append(result.Deleted, d.Key)
		metrics.BundleDeleted.Inc()
	}
}

// dispatch builds every pending descriptor and waits for all of them.
func (s *Session) dispatch(ctx context.Context, root string, pending []*Descriptor, result *CycleResult) error {
	var (
		mu       sync.Mutex
		firstErr error
		g        errgroup.Group
	)
	if s.jobs > 0 {
		g.SetLimit(s.jobs)
	}

	for _, d := range pending {
		d.setState(StateBuilding)
		g.Go(func() error {
			err := s.build(ctx, root, d)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				buildErr := &BuildError{Key: d.Key, Err: err}
				result.Failed[d.Key] = buildErr
				if firstErr == nil {
					firstErr = buildErr
				}
				return nil
			}
			result.Built = append(result.Built, d.Key)
			result.Outputs[d.Key] = d.OutputPath
			return nil
		})
	}
	_ = g.Wait()
	return firstErr
}

// build runs one bundle, feeding its events into the index and writing the
// output. On failure the descriptor is dropped so the next cycle retries.
func (s *Session) build(ctx context.Context, root string, d *Descriptor) (err error) {
	start := time.Now()
	defer func() {
		metrics.BundleBuildDuration.WithLabelValues(d.Key).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.BundleBuildCount.WithLabelValues("failed").Inc()
			metrics.BundleBuildFailed.WithLabelValues(d.Key).Inc()
			s.warnf("bundle %s failed: %v", d.Key, err)
			if closeErr := s.forget(d); closeErr != nil {
				s.warnf("closing bundle %s: %v", d.Key, closeErr)
			}
			return
		}
		metrics.BundleBuildCount.WithLabelValues("success").Inc()
		d.setState(StateFresh)
	}()

	if d.handle == nil {
		handle, err := s.bundler.NewHandle(s.bundlerConfig(root, d))
		if err != nil {
			return err
		}
		d.handle = handle
	}

	s.release(s.index.ResetBundle(d.Key))

	var (
		output   []byte
		buildErr error
		finished bool
		recorded = make(map[string]bool)
	)
	// A fingerprint of the bytes the build read beats one taken now; the
	// file may have changed since.
	record := func(path string, fp fingerprint.Fingerprint) {
		path = s.normalize(root, path)
		if fp == 0 {
			fp, _ = s.contents.Fingerprint(path)
		}
		switch {
		case fp != 0:
			s.index.RecordFingerprint(d.Key, path, fp)
		case !recorded[path]:
			s.index.Record(d.Key, path)
		}
		recorded[path] = true
	}

	for ev := range d.handle.Bundle(ctx) {
		switch ev.Kind {
		case bundler.EventFile:
			record(ev.Path, ev.Fingerprint)
		case bundler.EventPackage:
			record(ev.Path, 0)
		case bundler.EventDep:
			if !ev.External && ev.Path != "" {
				record(ev.Path, 0)
			}
		case bundler.EventDone:
			output, finished = ev.Output, true
		case bundler.EventFailed:
			buildErr, finished = ev.Err, true
		}
		if finished {
			break
		}
	}

	switch {
	case !finished:
		return bundler.ErrNoResult
	case buildErr != nil:
		return buildErr
	}

	if err := s.fsys.WriteFile(d.OutputAbs, output, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", d.OutputPath, err)
	}
	return nil
}

func (s *Session) bundlerConfig(root string, d *Descriptor) bundler.Config {
	loaders := map[string]string{s.opts.BundleExtension: "js"}
	maps.Copy(loaders, s.opts.Loaders)

	return bundler.Config{
		Key:        d.Key,
		BaseDir:    root,
		Entries:    d.EntryPointsRelative,
		Contents:   s.contents,
		Packages:   s.packages,
		Extensions: s.opts.ResolvableExtensions(),
		Loaders:    loaders,
		Externals:  slices.Concat(s.opts.Externals, d.Spec.Externals),
		Transforms: d.Spec.Transforms,
		Require:    d.Spec.Require,
		Add:        d.Spec.Add,
	}
}

// outputs maps each live key to its absolute output path.
func (s *Session) outputs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.descriptors))
	for key, d := range s.descriptors {
		out[key] = d.OutputAbs
	}
	return out
}

func (s *Session) removeOutput(path string) {
	if err := s.fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.warnf("removing %s: %v", path, err)
	}
}

func (s *Session) normalize(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}

func outputAbs(destDir, rel string) string {
	return filepath.Join(destDir, filepath.FromSlash(rel))
}
