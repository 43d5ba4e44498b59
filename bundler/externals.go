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
	"path/filepath"
	"strings"
)

// ExternalMatcher decides whether an import is left out of the bundle.
//
// Bare names match the specifier itself and any subpath of it. Relative
// and absolute entries are resolved against the base directory and match
// imports that resolve to the same file, with or without an extension.
type ExternalMatcher struct {
	names []string
	files map[string]bool
}

// NewExternalMatcher builds a matcher for externals relative to baseDir.
func NewExternalMatcher(baseDir string, externals []string) *ExternalMatcher {
	m := &ExternalMatcher{files: make(map[string]bool)}
	for _, ext := range externals {
		if isPathSpecifier(ext) {
			abs := ext
			if !filepath.IsAbs(abs) {
				abs = filepath.Join(baseDir, ext)
			}
			abs = filepath.Clean(abs)
			m.files[abs] = true
			m.files[trimExt(abs)] = true
			continue
		}
		m.names = append(m.names, ext)
	}
	return m
}

// Match reports whether specifier, imported from a module in resolveDir,
// is external.
func (m *ExternalMatcher) Match(specifier, resolveDir string) bool {
	if isPathSpecifier(specifier) {
		if len(m.files) == 0 {
			return false
		}
		abs := specifier
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(resolveDir, specifier)
		}
		abs = filepath.Clean(abs)
		return m.files[abs] || m.files[trimExt(abs)]
	}
	for _, name := range m.names {
		if specifier == name || strings.HasPrefix(specifier, name+"/") {
			return true
		}
	}
	return false
}

func isPathSpecifier(s string) bool {
	return s == "." || s == ".." ||
		strings.HasPrefix(s, "./") || strings.HasPrefix(s, "../") ||
		filepath.IsAbs(s)
}

func trimExt(p string) string {
	return strings.TrimSuffix(p, filepath.Ext(p))
}
