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

// Package esbuild implements bundler.Bundler on top of esbuild's Go API.
//
// Each handle owns an esbuild build context, so esbuild's own incremental
// caches live exactly as long as the bundle's descriptor. Project sources
// are loaded through the session's content cache and transformed before
// esbuild parses them. Module resolution reads the operating system's
// filesystem directly, so this bundler requires an OS-backed source tree.
package esbuild

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/evanw/esbuild/pkg/api"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/packagejson"
	"bennypowers.dev/fastbundle/transform"
)

const stdinName = "<stdin>"

// Bundler creates esbuild-backed handles.
type Bundler struct {
	fsys     fs.FileSystem
	format   api.Format
	platform api.Platform
	minify   bool
}

// Option configures a Bundler.
type Option func(*Bundler)

// WithFormat sets the output format. The default is an IIFE.
func WithFormat(format api.Format) Option {
	return func(b *Bundler) { b.format = format }
}

// WithPlatform sets the target platform. The default is the browser.
func WithPlatform(platform api.Platform) Option {
	return func(b *Bundler) { b.platform = platform }
}

// WithMinify enables whitespace, identifier and syntax minification.
func WithMinify(minify bool) Option {
	return func(b *Bundler) { b.minify = minify }
}

// ParseFormat maps iife, esm or cjs to an esbuild format.
func ParseFormat(name string) (api.Format, error) {
	switch strings.ToLower(name) {
	case "", "iife":
		return api.FormatIIFE, nil
	case "esm":
		return api.FormatESModule, nil
	case "cjs":
		return api.FormatCommonJS, nil
	default:
		return api.FormatDefault, fmt.Errorf("unknown output format %q: must be iife, esm or cjs", name)
	}
}

// ParsePlatform maps browser, node or neutral to an esbuild platform.
func ParsePlatform(name string) (api.Platform, error) {
	switch strings.ToLower(name) {
	case "", "browser":
		return api.PlatformBrowser, nil
	case "node":
		return api.PlatformNode, nil
	case "neutral":
		return api.PlatformNeutral, nil
	default:
		return api.PlatformDefault, fmt.Errorf("unknown platform %q: must be browser, node or neutral", name)
	}
}

// New creates a Bundler that reports package manifests read through fsys.
func New(fsys fs.FileSystem, opts ...Option) *Bundler {
	b := &Bundler{
		fsys:     fsys,
		format:   api.FormatIIFE,
		platform: api.PlatformBrowser,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bundler) NewHandle(cfg bundler.Config) (bundler.Handle, error) {
	if cfg.BaseDir == "" || !filepath.IsAbs(cfg.BaseDir) {
		return nil, fmt.Errorf("bundle %q: base directory must be absolute, got %q", cfg.Key, cfg.BaseDir)
	}
	if cfg.Contents == nil {
		contents, err := bundler.NewContentCache(b.fsys, 0)
		if err != nil {
			return nil, err
		}
		cfg.Contents = contents
	}

	h := &handle{b: b, cfg: cfg}

	loaders, err := loaderMap(cfg.Loaders)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: %w", cfg.Key, err)
	}
	h.loaders = loaders

	extensions := cfg.Extensions
	if len(extensions) == 0 {
		extensions = []string{".js"}
	}

	stdin, err := entrySource(cfg)
	if err != nil {
		return nil, fmt.Errorf("bundle %q: %w", cfg.Key, err)
	}

	ctx, ctxErr := api.Context(api.BuildOptions{
		Stdin: &api.StdinOptions{
			Contents:   stdin,
			ResolveDir: cfg.BaseDir,
			Sourcefile: stdinName,
			Loader:     api.LoaderJS,
		},
		Bundle:            true,
		Write:             false,
		Metafile:          true,
		Outfile:           filepath.Join(cfg.BaseDir, ".fastbundle", "out.js"),
		Format:            b.format,
		Platform:          b.platform,
		MinifyWhitespace:  b.minify,
		MinifyIdentifiers: b.minify,
		MinifySyntax:      b.minify,
		LogLevel:          api.LogLevelSilent,
		AbsWorkingDir:     cfg.BaseDir,
		ResolveExtensions: extensions,
		Loader:            loaders,
		Plugins: []api.Plugin{
			h.externalsPlugin(),
			h.loadPlugin(),
		},
	})
	if ctxErr != nil {
		return nil, fmt.Errorf("bundle %q: %w", cfg.Key, messagesError(ctxErr.Errors))
	}
	h.ctx = ctx
	return h, nil
}

type handle struct {
	b       *Bundler
	cfg     bundler.Config
	loaders map[string]api.Loader
	ctx     api.BuildContext

	// building serializes Bundle calls and guards the fields below.
	building sync.Mutex
	closed   bool

	// reads maps each file loaded by the current build to the fingerprint
	// of the bytes loaded, zero if the load failed.
	readMu sync.Mutex
	reads  map[string]fingerprint.Fingerprint
}

func (h *handle) Close() error {
	h.building.Lock()
	defer h.building.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.ctx.Dispose()
	return nil
}

func (h *handle) Bundle(ctx context.Context) iter.Seq[bundler.Event] {
	return func(yield func(bundler.Event) bool) {
		h.building.Lock()
		defer h.building.Unlock()

		if h.closed {
			yield(bundler.Failed(fmt.Errorf("bundle %q: handle is closed", h.cfg.Key)))
			return
		}
		if err := ctx.Err(); err != nil {
			yield(bundler.Failed(err))
			return
		}

		h.readMu.Lock()
		h.reads = make(map[string]fingerprint.Fingerprint)
		h.readMu.Unlock()

		stop := context.AfterFunc(ctx, h.ctx.Cancel)
		result := h.ctx.Rebuild()
		stop()

		events, err := h.events(result)
		for _, ev := range events {
			if !yield(ev) {
				return
			}
		}

		switch {
		case ctx.Err() != nil:
			yield(bundler.Failed(ctx.Err()))
		case len(result.Errors) > 0:
			yield(bundler.Failed(messagesError(result.Errors)))
		case err != nil:
			yield(bundler.Failed(err))
		case len(result.OutputFiles) == 0:
			yield(bundler.Failed(bundler.ErrNoResult))
		default:
			yield(bundler.Done(result.OutputFiles[0].Contents))
		}
	}
}

// events derives file, package and dependency events from the files the
// build loaded and from its metafile.
func (h *handle) events(result api.BuildResult) ([]bundler.Event, error) {
	h.readMu.Lock()
	reads := maps.Clone(h.reads)
	h.readMu.Unlock()
	if reads == nil {
		reads = make(map[string]fingerprint.Fingerprint)
	}

	var meta metafile
	if result.Metafile != "" {
		if err := json.Unmarshal([]byte(result.Metafile), &meta); err != nil {
			return nil, fmt.Errorf("parsing metafile: %w", err)
		}
	}

	inputs := make([]string, 0, len(meta.Inputs))
	for input := range meta.Inputs {
		inputs = append(inputs, input)
	}
	slices.Sort(inputs)

	for _, input := range inputs {
		file, ok := h.file(input)
		if !ok {
			continue
		}
		if _, seen := reads[file]; !seen {
			reads[file] = 0
		}
	}
	files := slices.Sorted(maps.Keys(reads))

	var events []bundler.Event
	for _, file := range files {
		events = append(events, bundler.FileRead(file, reads[file]))
	}

	var errs []error
	seenPackages := make(map[string]bool)
	for _, file := range files {
		dir, ok := packagejson.Nearest(h.b.fsys, filepath.Dir(file), h.cfg.BaseDir)
		if !ok || seenPackages[dir] {
			continue
		}
		seenPackages[dir] = true
		manifest := filepath.Join(dir, packagejson.FileName)
		pkg, err := packagejson.Load(h.b.fsys, h.cfg.Packages, manifest)
		name := ""
		if err != nil {
			errs = append(errs, err)
		} else {
			name = pkg.Name
		}
		events = append(events, bundler.Package(dir, manifest, name))
	}

	for _, input := range inputs {
		for _, imp := range meta.Inputs[input].Imports {
			id := imp.Original
			if id == "" {
				id = imp.Path
			}
			if imp.External {
				events = append(events, bundler.Dep(id, "", true))
				continue
			}
			file, _ := h.file(imp.Path)
			events = append(events, bundler.Dep(id, file, false))
		}
	}

	return events, errors.Join(errs...)
}

// file maps a metafile path to an absolute file path. Paths in another
// namespace, such as "(disabled):fs" for a module the browser field maps to
// false, are not files.
func (h *handle) file(p string) (string, bool) {
	if p == stdinName {
		return "", false
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), true
	}
	if ns, _, ok := strings.Cut(p, ":"); ok && !strings.ContainsAny(ns, `/\`) {
		return "", false
	}
	return filepath.Join(h.cfg.BaseDir, filepath.FromSlash(p)), true
}

func (h *handle) recordRead(path string, fp fingerprint.Fingerprint) {
	h.readMu.Lock()
	defer h.readMu.Unlock()
	h.reads[filepath.Clean(path)] = fp
}

func (h *handle) externalsPlugin() api.Plugin {
	matcher := bundler.NewExternalMatcher(h.cfg.BaseDir, h.cfg.Externals)
	return api.Plugin{
		Name: "fastbundle-externals",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `.*`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if matcher.Match(args.Path, args.ResolveDir) {
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					}
					return api.OnResolveResult{}, nil
				})
		},
	}
}

func (h *handle) loadPlugin() api.Plugin {
	return api.Plugin{
		Name: "fastbundle-load",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					h.recordRead(args.Path, 0)

					src, fp, err := h.cfg.Contents.LoadFingerprint(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					h.recordRead(args.Path, fp)

					rel, err := filepath.Rel(h.cfg.BaseDir, args.Path)
					if err != nil {
						rel = args.Path
					}
					rel = filepath.ToSlash(rel)
					if !inNodeModules(rel) && len(h.cfg.Transforms) > 0 {
						if src, err = transform.ApplyAll(h.cfg.Transforms, rel, src); err != nil {
							return api.OnLoadResult{}, err
						}
					}

					contents := string(src)
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     h.loaderFor(args.Path),
					}, nil
				})
		},
	}
}

func (h *handle) loaderFor(path string) api.Loader {
	if loader, ok := h.loaders[strings.ToLower(filepath.Ext(path))]; ok {
		return loader
	}
	if loader, ok := defaultLoaders[strings.ToLower(filepath.Ext(path))]; ok {
		return loader
	}
	return api.LoaderJS
}

func inNodeModules(rel string) bool {
	return slices.Contains(strings.Split(rel, "/"), "node_modules")
}

// entrySource builds the synthetic entry module: Add snippets, then the
// entries, then the Require modules.
func entrySource(cfg bundler.Config) (string, error) {
	var b strings.Builder
	for _, add := range cfg.Add {
		b.WriteString(add)
		b.WriteString("\n")
	}
	for _, spec := range slices.Concat(cfg.Entries, cfg.Require) {
		quoted, err := json.Marshal(spec)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "require(%s);\n", quoted)
	}
	return b.String(), nil
}

func messagesError(msgs []api.Message) error {
	errs := make([]error, 0, len(msgs))
	for _, msg := range msgs {
		text := msg.Text
		if msg.PluginName != "" {
			text = fmt.Sprintf("[%s] %s", msg.PluginName, text)
		}
		if loc := msg.Location; loc != nil {
			text = fmt.Sprintf("%s:%d:%d: %s", loc.File, loc.Line, loc.Column, text)
		}
		errs = append(errs, errors.New(text))
	}
	return errors.Join(errs...)
}
