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
// Package watch turns filesystem notifications under a directory tree into
// debounced batches of changed paths.
package watch

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the tree must stay quiet before a batch is
// delivered.
const DefaultDebounce = 100 * time.Millisecond

// Logger receives watcher diagnostics.
type Logger interface {
	Warning(format string, args ...any)
	Debug(format string, args ...any)
}

// Watcher watches a directory tree recursively. Directories created while
// watching are added as they appear.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	debounce time.Duration
	ignore   []string
	logger   Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Zero or less keeps the default.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore skips paths matching any of patterns, which are slash-separated
// and relative to the root. Absolute paths are made relative first.
func WithIgnore(patterns ...string) Option {
	return func(w *Watcher) { w.ignore = append(w.ignore, patterns...) }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New starts watching root.
func New(root string, opts ...Option) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, root: abs, debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(w)
	}
	for i, p := range w.ignore {
		w.ignore[i] = w.relative(p)
		if !doublestar.ValidatePattern(w.ignore[i]) {
			_ = fsw.Close()
			return nil, fmt.Errorf("invalid ignore pattern %q", p)
		}
	}

	if err := w.addTree(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Ignored reports whether path falls under an ignore pattern.
func (w *Watcher) Ignored(path string) bool {
	rel := w.relative(path)
	for _, pattern := range w.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		// a pattern naming a directory covers everything below it
		if ok, _ := doublestar.Match(pattern+"/**", rel); ok {
			return true
		}
	}
	return false
}

// Run delivers batches of changed paths to onChange until ctx is done or the
// watcher is closed. onChange runs on Run's goroutine, so batches never
// overlap; changes made while it runs form the next batch.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string)) error {
	var (
		pending = make(map[string]bool)
		timer   = time.NewTimer(w.debounce)
	)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.Ignored(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.warnf("watching %s: %v", ev.Name, err)
					}
				}
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.warnf("watch error: %v", err)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			slices.Sort(paths)
			clear(pending)
			w.debugf("%d paths changed", len(paths))
			onChange(ctx, paths)
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			// the directory vanished while walking
			if errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.Ignored(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) relative(p string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(w.root, p); err == nil {
			p = rel
		}
	}
	return filepath.ToSlash(filepath.Clean(p))
}

func (w *Watcher) warnf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Warning(format, args...)
	}
}

func (w *Watcher) debugf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Debug(format, args...)
	}
}
