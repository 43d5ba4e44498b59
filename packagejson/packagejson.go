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

// Package packagejson reads package manifests encountered while bundling.
package packagejson

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"bennypowers.dev/fastbundle/fs"
)

// FileName is the manifest file name looked up in package directories.
const FileName = "package.json"

// PackageJSON is the subset of package.json the bundler reports on.
type PackageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Main         string            `json:"main,omitempty"`
	Module       string            `json:"module,omitempty"`
	Browser      any               `json:"browser,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// Parse parses package.json data.
func Parse(data []byte) (*PackageJSON, error) {
	var pkg PackageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ParseFile parses a package.json file.
func ParseFile(fsys fs.FileSystem, path string) (*PackageJSON, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pkg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return pkg, nil
}

// Load parses the manifest at path through cache.
// A nil cache parses directly.
func Load(fsys fs.FileSystem, cache Cache, path string) (*PackageJSON, error) {
	if cache == nil {
		return ParseFile(fsys, path)
	}
	return cache.GetOrLoad(path, func() (*PackageJSON, error) {
		return ParseFile(fsys, path)
	})
}

// Nearest returns the directory of the closest package.json at or above dir,
// never climbing past stop. Inside node_modules the search also stops at the
// package root, so a dependency without a manifest is not attributed to the
// project that installed it.
func Nearest(fsys fs.FileSystem, dir, stop string) (string, bool) {
	dir = filepath.Clean(dir)
	stop = filepath.Clean(stop)
	for {
		if fsys.Exists(filepath.Join(dir, FileName)) {
			return dir, true
		}
		if dir == stop || isPackageRoot(dir) {
			return "", false
		}
		parent := filepath.Dir(dir)
		if parent == dir || !within(parent, stop) {
			return "", false
		}
		dir = parent
	}
}

// isPackageRoot reports whether dir is node_modules/<name> or node_modules/@scope/<name>.
func isPackageRoot(dir string) bool {
	parent := filepath.Dir(dir)
	if filepath.Base(parent) == "node_modules" {
		return !strings.HasPrefix(filepath.Base(dir), "@")
	}
	return strings.HasPrefix(filepath.Base(parent), "@") &&
		filepath.Base(filepath.Dir(parent)) == "node_modules"
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
