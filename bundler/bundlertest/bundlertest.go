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

// Package bundlertest provides a scriptable in-memory bundler for tests.
//
// Modules declare dependencies with require('...') calls. Relative
// specifiers resolve against the requiring file with the configured
// extensions; bare specifiers resolve to node_modules/<name>, through the
// package's "main" field or index.js. The output concatenates the Add
// snippets and every module in dependency order, each preceded by a
// "// <path>" banner.
package bundlertest

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/packagejson"
	"bennypowers.dev/fastbundle/transform"
)

var requirePattern = regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`)

// Bundler is a fake bundler.Bundler. The zero value is not usable; use New.
type Bundler struct {
	fsys fs.FileSystem

	mu       sync.Mutex
	fail     map[string]error
	calls    map[string]int
	handles  map[string]int
	closed   map[string]int
	inflight map[string]bool
	overlaps int
}

// New creates a fake bundler reading sources through fsys.
func New(fsys fs.FileSystem) *Bundler {
	return &Bundler{
		fsys:     fsys,
		fail:     make(map[string]error),
		calls:    make(map[string]int),
		handles:  make(map[string]int),
		closed:   make(map[string]int),
		inflight: make(map[string]bool),
	}
}

// Fail makes every build of key fail with err. A nil err clears it.
func (b *Bundler) Fail(key string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.fail, key)
		return
	}
	b.fail[key] = err
}

// Calls returns how many builds of key ran.
func (b *Bundler) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// TotalCalls returns how many builds ran in all.
func (b *Bundler) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// Handles returns how many handles were created for key.
func (b *Bundler) Handles(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[key]
}

// Closed returns how many handles of key were closed.
func (b *Bundler) Closed(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed[key]
}

// Overlaps returns how many builds started while another build of the same
// key was still running.
func (b *Bundler) Overlaps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overlaps
}

// Reset clears all counters.
func (b *Bundler) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.calls)
	clear(b.handles)
	clear(b.closed)
	b.overlaps = 0
}

func (b *Bundler) NewHandle(cfg bundler.Config) (bundler.Handle, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("bundle %q: base directory is required", cfg.Key)
	}
	b.mu.Lock()
	b.handles[cfg.Key]++
	b.mu.Unlock()

	exts := cfg.Extensions
	if len(exts) == 0 {
		exts = []string{".js"}
	}
	return &handle{
		b:         b,
		cfg:       cfg,
		exts:      exts,
		externals: bundler.NewExternalMatcher(cfg.BaseDir, cfg.Externals),
	}, nil
}

func (b *Bundler) begin(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[key]++
	if b.inflight[key] {
		b.overlaps++
	}
	b.inflight[key] = true
	return b.fail[key]
}

func (b *Bundler) end(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, key)
}

type handle struct {
	b         *Bundler
	cfg       bundler.Config
	exts      []string
	externals *bundler.ExternalMatcher
	closed    bool
}

func (h *handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	h.b.mu.Lock()
	h.b.closed[h.cfg.Key]++
	h.b.mu.Unlock()
	return nil
}

func (h *handle) Bundle(ctx context.Context) iter.Seq[bundler.Event] {
	return func(yield func(bundler.Event) bool) {
		if h.closed {
			yield(bundler.Failed(fmt.Errorf("bundle %q: handle is closed", h.cfg.Key)))
			return
		}
		if err := ctx.Err(); err != nil {
			yield(bundler.Failed(err))
			return
		}

		injected := h.b.begin(h.cfg.Key)
		defer h.b.end(h.cfg.Key)

		w := &walker{h: h, seen: make(map[string]bool), packages: make(map[string]bool)}
		var out strings.Builder
		for _, add := range h.cfg.Add {
			out.WriteString(add)
			out.WriteString("\n")
		}

		roots := slices.Concat(h.cfg.Entries, h.cfg.Require)
		var err error
		for _, spec := range roots {
			if err = w.visit(spec, h.cfg.BaseDir, &out); err != nil {
				break
			}
		}
		if err == nil {
			err = injected
		}

		for _, ev := range w.events {
			if !yield(ev) {
				return
			}
		}
		if err != nil {
			yield(bundler.Failed(err))
			return
		}
		yield(bundler.Done([]byte(out.String())))
	}
}

type walker struct {
	h        *handle
	seen     map[string]bool
	packages map[string]bool
	events   []bundler.Event
}

func (w *walker) visit(specifier, fromDir string, out *strings.Builder) error {
	cfg := w.h.cfg
	if w.h.externals.Match(specifier, fromDir) {
		w.events = append(w.events, bundler.Dep(specifier, "", true))
		return nil
	}

	file, err := w.resolve(specifier, fromDir)
	if err != nil {
		return err
	}
	w.events = append(w.events, bundler.Dep(specifier, file, false))
	if w.seen[file] {
		return nil
	}
	w.seen[file] = true

	src, fp, err := w.read(file)
	w.events = append(w.events, bundler.FileRead(file, fp))
	if err != nil {
		return err
	}

	rel, _ := filepath.Rel(cfg.BaseDir, file)
	rel = filepath.ToSlash(rel)
	inNodeModules := slices.Contains(strings.Split(rel, "/"), "node_modules")
	if !inNodeModules {
		if src, err = transform.ApplyAll(cfg.Transforms, rel, src); err != nil {
			return err
		}
	}
	if err := w.reportPackage(file); err != nil {
		return err
	}

	for _, m := range requirePattern.FindAllSubmatch(src, -1) {
		if err := w.visit(string(m[1]), filepath.Dir(file), out); err != nil {
			return err
		}
	}

	fmt.Fprintf(out, "// %s\n%s\n", rel, src)
	return nil
}

func (w *walker) read(file string) ([]byte, fingerprint.Fingerprint, error) {
	if w.h.cfg.Contents != nil {
		return w.h.cfg.Contents.LoadFingerprint(file)
	}
	src, err := w.h.b.fsys.ReadFile(file)
	return src, 0, err
}

func (w *walker) reportPackage(file string) error {
	dir, ok := packagejson.Nearest(w.h.b.fsys, filepath.Dir(file), w.h.cfg.BaseDir)
	if !ok || w.packages[dir] {
		return nil
	}
	w.packages[dir] = true
	manifest := filepath.Join(dir, packagejson.FileName)
	pkg, err := packagejson.Load(w.h.b.fsys, w.h.cfg.Packages, manifest)
	w.events = append(w.events, bundler.Package(dir, manifest, nameOf(pkg)))
	return err
}

func (w *walker) resolve(specifier, fromDir string) (string, error) {
	if strings.HasPrefix(specifier, "./") || strings.HasPrefix(specifier, "../") || filepath.IsAbs(specifier) {
		base := specifier
		if !filepath.IsAbs(base) {
			base = filepath.Join(fromDir, specifier)
		}
		if file, ok := w.resolveFile(base); ok {
			return file, nil
		}
		return "", fmt.Errorf("cannot find module %q from %s", specifier, fromDir)
	}

	name, sub := splitBare(specifier)
	pkgDir := filepath.Join(w.h.cfg.BaseDir, "node_modules", name)
	if sub != "" {
		if file, ok := w.resolveFile(filepath.Join(pkgDir, sub)); ok {
			return file, nil
		}
		return "", fmt.Errorf("cannot find module %q", specifier)
	}
	manifest := filepath.Join(pkgDir, packagejson.FileName)
	if w.h.b.fsys.Exists(manifest) {
		pkg, err := packagejson.Load(w.h.b.fsys, w.h.cfg.Packages, manifest)
		if err != nil {
			return "", err
		}
		if pkg.Main != "" {
			if file, ok := w.resolveFile(filepath.Join(pkgDir, pkg.Main)); ok {
				return file, nil
			}
		}
	}
	if file, ok := w.resolveFile(pkgDir); ok {
		return file, nil
	}
	return "", fmt.Errorf("cannot find module %q", specifier)
}

func (w *walker) resolveFile(base string) (string, bool) {
	fsys := w.h.b.fsys
	if info, err := fsys.Stat(base); err == nil && !info.IsDir() {
		return base, true
	}
	for _, ext := range w.h.exts {
		if info, err := fsys.Stat(base + ext); err == nil && !info.IsDir() {
			return base + ext, true
		}
	}
	for _, ext := range w.h.exts {
		index := filepath.Join(base, "index"+ext)
		if info, err := fsys.Stat(index); err == nil && !info.IsDir() {
			return index, true
		}
	}
	return "", false
}

func splitBare(specifier string) (name, sub string) {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") && len(parts) >= 2 {
		name = parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			sub = parts[2]
		}
		return name, sub
	}
	name, sub, _ = strings.Cut(specifier, "/")
	return name, sub
}

func nameOf(pkg *packagejson.PackageJSON) string {
	if pkg == nil {
		return ""
	}
	return pkg.Name
}
