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

// Package engine runs incremental multi-bundle build cycles.
//
// A Session owns all state that survives between cycles: one descriptor per
// built bundle, the dependency index, and the content and package caches
// shared by every bundle. Nothing is persisted; a new session starts cold.
package engine

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sync"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/depindex"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/packagejson"
)

// ErrClosed is returned when a closed session is used.
var ErrClosed = errors.New("build session is closed")

// Logger receives progress messages. A nil Logger is silent.
type Logger interface {
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

// Config configures a Session.
type Config struct {
	FS      fs.FileSystem
	Bundler bundler.Bundler
	// DestDir receives every output artifact.
	DestDir string
	Options bundlespec.Options
	Logger  Logger
	// Jobs limits concurrent bundle builds. Zero means unlimited.
	Jobs int
	// ContentCacheSize bounds the shared content cache.
	ContentCacheSize int
}

// Session is a long-lived build engine. Cycles on one session never overlap.
type Session struct {
	fsys    fs.FileSystem
	bundler bundler.Bundler
	destDir string
	opts    bundlespec.Options
	logger  Logger
	jobs    int

	index    *depindex.Index
	contents *bundler.ContentCache
	packages *packagejson.MemoryCache

	// cycleMu serializes RunCycle and Close.
	cycleMu    sync.Mutex
	sourceRoot string
	closed     bool

	mu          sync.Mutex
	descriptors map[string]*Descriptor
}

// NewSession creates a session with empty state.
func NewSession(cfg Config) (*Session, error) {
	if cfg.FS == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if cfg.Bundler == nil {
		return nil, fmt.Errorf("bundler is required")
	}
	if cfg.DestDir == "" {
		return nil, fmt.Errorf("destination directory is required")
	}
	destDir, err := filepath.Abs(cfg.DestDir)
	if err != nil {
		return nil, fmt.Errorf("resolving destination directory: %w", err)
	}

	contents, err := bundler.NewContentCache(cfg.FS, cfg.ContentCacheSize)
	if err != nil {
		return nil, err
	}

	return &Session{
		fsys:        cfg.FS,
		bundler:     cfg.Bundler,
		destDir:     destDir,
		opts:        cfg.Options.Normalize(),
		logger:      cfg.Logger,
		jobs:        cfg.Jobs,
		index:       depindex.New(cfg.FS),
		contents:    contents,
		packages:    packagejson.NewMemoryCache(),
		descriptors: make(map[string]*Descriptor),
	}, nil
}

// DestDir returns the absolute destination directory.
func (s *Session) DestDir() string { return s.destDir }

// Options returns the normalized bundle options.
func (s *Session) Options() bundlespec.Options { return s.opts }

// Index exposes the dependency index for inspection.
func (s *Session) Index() *depindex.Index { return s.index }

// Descriptor returns the live descriptor of key.
func (s *Session) Descriptor(key string) (*Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.descriptors[key]
	return d, ok
}

// Keys returns the keys of all live descriptors, sorted.
func (s *Session) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.descriptors))
}

// Close releases every bundler handle and empties the caches. A cycle in
// progress finishes first.
func (s *Session) Close() error {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.mu.Lock()
	descriptors := s.descriptors
	s.descriptors = make(map[string]*Descriptor)
	s.mu.Unlock()

	var errs []error
	for _, key := range slices.Sorted(maps.Keys(descriptors)) {
		if err := descriptors[key].close(); err != nil {
			errs = append(errs, fmt.Errorf("closing bundle %q: %w", key, err))
		}
		s.index.RemoveBundle(key)
	}
	s.contents.Purge()
	s.packages.Purge()
	return errors.Join(errs...)
}

// forget drops a descriptor and everything only it depended on.
func (s *Session) forget(d *Descriptor) error {
	s.mu.Lock()
	if s.descriptors[d.Key] == d {
		delete(s.descriptors, d.Key)
	}
	s.mu.Unlock()

	s.release(s.index.RemoveBundle(d.Key))
	return d.close()
}

// release drops cached state for paths nobody watches any more.
func (s *Session) release(paths []string) {
	if len(paths) == 0 {
		return
	}
	s.contents.Invalidate(paths...)
	for _, p := range paths {
		s.packages.Invalidate(p)
	}
}

func (s *Session) infof(format string, args ...any) {
	if s.logger != nil {
		s.logger.Info(format, args...)
	}
}

func (s *Session) warnf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warning(format, args...)
	}
}

func (s *Session) debugf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(format, args...)
	}
}
