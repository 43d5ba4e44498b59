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

// Package fs provides filesystem abstractions for fastbundle.
package fs

import (
	iofs "io/fs"
	"os"
	"path"
	"path/filepath"
)

// FileSystem provides an abstraction over filesystem operations.
// Paths are absolute in the host's notation.
type FileSystem interface {
	// File operations
	WriteFile(name string, data []byte, perm iofs.FileMode) error
	ReadFile(name string) ([]byte, error)
	Remove(name string) error

	// Directory operations
	MkdirAll(path string, perm iofs.FileMode) error
	ReadDir(name string) ([]iofs.DirEntry, error)
	RemoveAll(path string) error

	// File system queries
	Stat(name string) (iofs.FileInfo, error)
	Exists(path string) bool

	Open(name string) (iofs.File, error)
}

// OSFileSystem implements FileSystem using the standard os package.
type OSFileSystem struct{}

// NewOSFileSystem creates a new filesystem that uses the standard os package.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{}
}

func (f *OSFileSystem) WriteFile(name string, data []byte, perm iofs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (f *OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (f *OSFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (f *OSFileSystem) MkdirAll(path string, perm iofs.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (f *OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (f *OSFileSystem) Stat(name string) (iofs.FileInfo, error) {
	return os.Stat(name)
}

func (f *OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (f *OSFileSystem) ReadDir(name string) ([]iofs.DirEntry, error) {
	return os.ReadDir(name)
}

func (f *OSFileSystem) Open(name string) (iofs.File, error) {
	return os.Open(name)
}

// Rooted returns a read-only io/fs view of fsys below root, suitable for
// glob matching with slash-separated relative patterns.
func Rooted(fsys FileSystem, root string) iofs.FS {
	return &rootedFS{fsys: fsys, root: root}
}

type rootedFS struct {
	fsys FileSystem
	root string
}

func (r *rootedFS) resolve(op, name string) (string, error) {
	if !iofs.ValidPath(name) {
		return "", &iofs.PathError{Op: op, Path: name, Err: iofs.ErrInvalid}
	}
	if name == "." {
		return r.root, nil
	}
	return filepath.Join(r.root, filepath.FromSlash(path.Clean(name))), nil
}

func (r *rootedFS) Open(name string) (iofs.File, error) {
	full, err := r.resolve("open", name)
	if err != nil {
		return nil, err
	}
	return r.fsys.Open(full)
}

func (r *rootedFS) ReadDir(name string) ([]iofs.DirEntry, error) {
	full, err := r.resolve("readdir", name)
	if err != nil {
		return nil, err
	}
	return r.fsys.ReadDir(full)
}

func (r *rootedFS) Stat(name string) (iofs.FileInfo, error) {
	full, err := r.resolve("stat", name)
	if err != nil {
		return nil, err
	}
	return r.fsys.Stat(full)
}
