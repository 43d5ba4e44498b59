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
// Package testutil loads testdata fixture trees for fastbundle tests.
package testutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"bennypowers.dev/fastbundle/internal/mapfs"
)

// FixturePath locates testdata/fixtures/<name>. Go runs tests in the
// package directory, so the parents of the working directory are tried too.
func FixturePath(t *testing.T, name string) string {
	t.Helper()
	for _, dir := range []string{".", "..", filepath.Join("..", "..")} {
		candidate := filepath.Join(dir, "testdata", "fixtures", name)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			abs, err := filepath.Abs(candidate)
			if err != nil {
				t.Fatal(err)
			}
			return abs
		}
	}
	t.Fatalf("fixture %s not found", name)
	return ""
}

// NewFixtureFS loads a fixture into an in-memory filesystem under root.
// Directories are kept, including empty ones.
func NewFixtureFS(t *testing.T, name, root string) *mapfs.MapFileSystem {
	t.Helper()
	src := FixturePath(t, name)
	mfs := mapfs.New()

	err := walk(src, func(rel string, d fs.DirEntry, content []byte) {
		target := filepath.Join(root, rel)
		if d.IsDir() {
			mfs.AddDir(target, 0755)
			return
		}
		mfs.AddFile(target, string(content), 0644)
	})
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return mfs
}

// CopyFixture copies a fixture into a fresh temporary directory and returns
// the copy's path. Tests may modify the copy freely.
func CopyFixture(t *testing.T, name string) string {
	t.Helper()
	src := FixturePath(t, name)
	dst := filepath.Join(t.TempDir(), name)

	err := walk(src, func(rel string, d fs.DirEntry, content []byte) {
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				t.Fatal(err)
			}
			return
		}
		if err := os.WriteFile(target, content, 0644); err != nil {
			t.Fatal(err)
		}
	})
	if err != nil {
		t.Fatalf("copying fixture %s: %v", name, err)
	}
	return dst
}

// WriteFile writes content to dir/rel, creating parents.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func walk(root string, visit func(rel string, d fs.DirEntry, content []byte)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			visit(rel, d, nil)
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		visit(rel, d, content)
		return nil
	})
}
