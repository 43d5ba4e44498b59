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
package bundlespec

import (
	iofs "io/fs"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"bennypowers.dev/fastbundle/fs"
)

// Resolved is one concrete bundle expanded from a Spec.
type Resolved struct {
	Key  string
	Spec *Spec
	// OutputPath is slash-separated and relative to the destination directory.
	OutputPath string
	// EntryPointsRelative are "./"-prefixed and relative to the source root.
	EntryPointsRelative []string
	EntryPointsAbsolute []string
}

// Resolver expands bundle specifications against a source tree.
// It reads the tree on every call and holds no state between calls.
type Resolver struct {
	fsys fs.FileSystem
	root string
	tree iofs.FS
	opts Options
}

// NewResolver creates a resolver for sourceRoot. opts is normalized.
func NewResolver(fsys fs.FileSystem, sourceRoot string, opts Options) *Resolver {
	root := filepath.Clean(sourceRoot)
	return &Resolver{
		fsys: fsys,
		root: root,
		tree: fs.Rooted(fsys, root),
		opts: opts.Normalize(),
	}
}

// SourceRoot returns the absolute source root.
func (r *Resolver) SourceRoot() string { return r.root }

// Options returns the normalized options.
func (r *Resolver) Options() Options { return r.opts }

// Resolve expands every spec, in declaration order. Glob matches are sorted.
// Bundles without entry points are included; callers decide what to do with
// them. Configuration errors abort resolution and wrap ErrConfig.
func (r *Resolver) Resolve() ([]Resolved, error) {
	var resolved []Resolved
	keyOwner := make(map[string]string)
	outputOwner := make(map[string]string)

	for i := range r.opts.Bundles {
		spec := &r.opts.Bundles[i]
		if err := spec.Validate(); err != nil {
			return nil, err
		}

		keys, err := r.keys(spec)
		if err != nil {
			return nil, err
		}

		for _, key := range keys {
			if owner, dup := keyOwner[key]; dup {
				return nil, configErrorf(key, "declared by both %q and %q", owner, spec.Key)
			}
			keyOwner[key] = spec.Key

			output, err := r.OutputPath(spec, key)
			if err != nil {
				return nil, err
			}
			if other, dup := outputOwner[output]; dup {
				return nil, configErrorf(key, "output path %q collides with bundle %q", output, other)
			}
			outputOwner[output] = key

			rel, abs, err := r.EntryPoints(spec, key)
			if err != nil {
				return nil, err
			}

			resolved = append(resolved, Resolved{
				Key:                 key,
				Spec:                spec,
				OutputPath:          output,
				EntryPointsRelative: rel,
				EntryPointsAbsolute: abs,
			})
		}
	}

	return resolved, nil
}

// OutputPath computes the destination-relative output path of key.
func (r *Resolver) OutputPath(spec *Spec, key string) (string, error) {
	out := key
	if spec.Glob {
		out = spec.OutputPath.expand(key, r.opts.BundleExtension)
	}
	if r.opts.OutputDirectory != "" {
		out = path.Join(filepath.ToSlash(r.opts.OutputDirectory), out)
	}
	out = path.Clean(filepath.ToSlash(out))
	if path.IsAbs(out) || out == "." || out == ".." || strings.HasPrefix(out, "../") {
		return "", configErrorf(key, "output path %q is outside the destination directory", out)
	}
	return out, nil
}

// EntryPoints resolves the entry points of one bundle against the current
// tree. Duplicates keep their first position.
func (r *Resolver) EntryPoints(spec *Spec, key string) (relative, absolute []string, err error) {
	kind := spec.EntryPoints.Kind()
	patterns := spec.EntryPoints.patterns(key)
	if kind == EntryUnset && spec.Glob {
		kind = EntryGlob
		patterns = []string{globEscape(key)}
	}

	seen := make(map[string]bool)
	for _, p := range patterns {
		matches, err := r.expand(key, kind, p)
		if err != nil {
			return nil, nil, err
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			seen[m] = true
			relative = append(relative, "./"+m)
			absolute = append(absolute, filepath.Join(r.root, filepath.FromSlash(m)))
		}
	}
	return relative, absolute, nil
}

func (r *Resolver) keys(spec *Spec) ([]string, error) {
	if !spec.Glob {
		return []string{spec.Key}, nil
	}

	pattern, err := r.relativePattern(spec.Key, spec.Key)
	if err != nil {
		return nil, err
	}
	matches, err := doublestar.Glob(r.tree, pattern)
	if err != nil {
		return nil, configErrorf(spec.Key, "invalid glob: %v", err)
	}
	slices.Sort(matches)

	for i, m := range matches {
		if info, err := iofs.Stat(r.tree, m); err == nil && info.IsDir() {
			matches[i] = m + "/"
		}
	}
	return matches, nil
}

func (r *Resolver) expand(key string, kind EntryKind, p string) ([]string, error) {
	p, err := r.relativePattern(key, p)
	if err != nil {
		return nil, err
	}

	if kind == EntryLiteral {
		info, err := iofs.Stat(r.tree, p)
		if err != nil || !info.Mode().IsRegular() {
			return nil, nil
		}
		return []string{p}, nil
	}

	matches, err := doublestar.Glob(r.tree, p, doublestar.WithFilesOnly())
	if err != nil {
		return nil, configErrorf(key, "invalid entry point pattern %q: %v", p, err)
	}
	slices.Sort(matches)
	return matches, nil
}

// relativePattern makes p slash-separated and relative to the source root.
func (r *Resolver) relativePattern(key, p string) (string, error) {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(r.root, p)
		if err != nil {
			return "", configErrorf(key, "entry point %q: %v", p, err)
		}
		p = rel
	}
	p = path.Clean(filepath.ToSlash(p))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", configErrorf(key, "path %q is outside the source root", p)
	}
	if !doublestar.ValidatePattern(p) {
		return "", configErrorf(key, "invalid pattern %q", p)
	}
	return p, nil
}

// globEscape quotes glob metacharacters in a matched key so it can be used
// as its own entry-point pattern.
func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		if strings.ContainsRune(`*?[]{}\`, c) {
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
