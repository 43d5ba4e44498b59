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

// Package bundlespec models declarative bundle specifications and expands
// them against a source tree into concrete bundles.
package bundlespec

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"bennypowers.dev/fastbundle/transform"
)

const (
	DefaultBundleExtension = ".browserify"
	DefaultOutputExtension = ".js"
)

// ErrConfig is wrapped by every configuration error.
var ErrConfig = errors.New("invalid bundle configuration")

// ConfigError describes a malformed bundle specification.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Key == "" {
		return e.Reason
	}
	return fmt.Sprintf("bundle %q: %s", e.Key, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfig }

func configErrorf(key, format string, args ...any) error {
	return &ConfigError{Key: key, Reason: fmt.Sprintf(format, args...)}
}

// EntryKind tags the variant held by EntryPoints.
type EntryKind int

const (
	EntryUnset EntryKind = iota
	// EntryLiteral lists paths relative to the source root.
	EntryLiteral
	// EntryGlob lists glob patterns relative to the source root.
	EntryGlob
	// EntryComputed derives entry points from the bundle key.
	EntryComputed
)

func (k EntryKind) String() string {
	switch k {
	case EntryLiteral:
		return "literal"
	case EntryGlob:
		return "glob"
	case EntryComputed:
		return "computed"
	default:
		return "unset"
	}
}

// EntryPoints declares how a bundle's entry points are found.
// The zero value declares none.
type EntryPoints struct {
	kind    EntryKind
	paths   []string
	compute func(key string) []string
}

// Literal declares fixed entry-point paths.
func Literal(paths ...string) EntryPoints {
	return EntryPoints{kind: EntryLiteral, paths: slices.Clone(paths)}
}

// Glob declares entry points as glob patterns expanded on every cycle.
func Glob(patterns ...string) EntryPoints {
	return EntryPoints{kind: EntryGlob, paths: slices.Clone(patterns)}
}

// Computed declares entry points as a function of the bundle key.
// The returned values may be glob patterns.
func Computed(fn func(key string) []string) EntryPoints {
	return EntryPoints{kind: EntryComputed, compute: fn}
}

// Templated declares entry points as templates of the bundle key.
func Templated(bundleExtension string, templates ...*Template) EntryPoints {
	return Computed(func(key string) []string {
		out := make([]string, len(templates))
		for i, t := range templates {
			out[i] = t.Expand(key, bundleExtension)
		}
		return out
	})
}

// Kind returns the declared variant.
func (e EntryPoints) Kind() EntryKind { return e.kind }

// IsZero reports whether no entry points were declared.
func (e EntryPoints) IsZero() bool { return e.kind == EntryUnset }

// patterns returns the declared paths or patterns for key.
func (e EntryPoints) patterns(key string) []string {
	switch e.kind {
	case EntryLiteral, EntryGlob:
		return e.paths
	case EntryComputed:
		return e.compute(key)
	default:
		return nil
	}
}

// OutputPath derives a glob bundle's output path from its key.
// The zero value is unset.
type OutputPath struct {
	template *Template
	fn       func(key string) string
}

// OutputTemplate parses an output path template.
func OutputTemplate(pattern string) (OutputPath, error) {
	t, err := ParseTemplate(pattern)
	if err != nil {
		return OutputPath{}, err
	}
	return OutputPath{template: t}, nil
}

// OutputFunc wraps a function as an OutputPath.
func OutputFunc(fn func(key string) string) OutputPath {
	return OutputPath{fn: fn}
}

// IsZero reports whether no output path was declared.
func (o OutputPath) IsZero() bool { return o.template == nil && o.fn == nil }

func (o OutputPath) expand(key, bundleExtension string) string {
	if o.template != nil {
		return o.template.Expand(key, bundleExtension)
	}
	return o.fn(key)
}

// Spec declares one bundle, or a family of bundles when Glob is set.
type Spec struct {
	// Key is the output path of an explicit spec, or the pattern matched
	// against the source tree for a glob spec.
	Key         string
	Glob        bool
	EntryPoints EntryPoints
	OutputPath  OutputPath

	Externals  []string
	Transforms []transform.Transform
	// Require lists modules bundled after the entry points even if unreferenced.
	Require []string
	// Add lists raw sources injected before all entry points.
	Add []string
	// AlwaysBuild keeps a bundle with no resolvable entry points.
	AlwaysBuild bool
}

// Validate checks the spec's shape.
func (s *Spec) Validate() error {
	if s.Key == "" {
		return configErrorf("", "bundle key cannot be empty")
	}
	if s.Glob {
		if s.OutputPath.IsZero() {
			return configErrorf(s.Key, "outputPath is required for glob bundle specifications")
		}
		return nil
	}
	if !s.OutputPath.IsZero() {
		return configErrorf(s.Key, "outputPath is only valid for glob bundle specifications; use the bundle key as the output filename")
	}
	if s.EntryPoints.IsZero() && !s.AlwaysBuild {
		return configErrorf(s.Key, "entryPoints must be given as a path, a list of paths or a function")
	}
	return nil
}

// Options is the full bundle configuration of a build session.
type Options struct {
	BundleExtension string
	OutputExtension string
	// OutputDirectory prefixes every output path.
	OutputDirectory string
	// Bundles are resolved in declaration order.
	Bundles []Spec

	// Externals are never bundled, by any bundle.
	Externals []string
	// Extensions are resolvable in addition to .js and the bundle extension.
	Extensions []string
	// Loaders maps extensions to bundler loader names.
	Loaders map[string]string
}

// Normalize fills defaults: extensions gain a leading dot, and when no
// bundles are declared every *<bundleExtension> file becomes its own bundle.
func (o Options) Normalize() Options {
	o.BundleExtension = dotted(o.BundleExtension, DefaultBundleExtension)
	o.OutputExtension = dotted(o.OutputExtension, DefaultOutputExtension)
	o.Extensions = slices.Clone(o.Extensions)
	for i, ext := range o.Extensions {
		o.Extensions[i] = dotted(ext, ext)
	}
	if len(o.Bundles) == 0 {
		o.Bundles = []Spec{DefaultSpec(o.BundleExtension, o.OutputExtension)}
	}
	return o
}

// ResolvableExtensions returns .js, the bundle extension and any extra
// extensions, without duplicates.
func (o Options) ResolvableExtensions() []string {
	exts := []string{".js", o.BundleExtension}
	for _, ext := range o.Extensions {
		if !slices.Contains(exts, ext) {
			exts = append(exts, ext)
		}
	}
	return exts
}

// DefaultSpec is the spec used when none are configured.
func DefaultSpec(bundleExtension, outputExtension string) Spec {
	return Spec{
		Key:  "**/*" + bundleExtension,
		Glob: true,
		OutputPath: OutputFunc(func(key string) string {
			return DefaultOutputPath(key, bundleExtension, outputExtension)
		}),
	}
}

// DefaultOutputPath strips bundleExtension from key and appends
// outputExtension unless the result already ends with it.
func DefaultOutputPath(key, bundleExtension, outputExtension string) string {
	out := strings.TrimSuffix(key, bundleExtension)
	if !strings.HasSuffix(out, outputExtension) {
		out += outputExtension
	}
	return out
}

func dotted(ext, fallback string) string {
	if ext == "" {
		return fallback
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}
