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

// Package fingerprint computes content-derived fingerprints for change detection.
//
// A fingerprint covers a file's permission bits, size and bytes, never its
// modification time. Directories are fingerprinted recursively over the names
// and contents of their entries.
package fingerprint

import (
	"encoding/binary"
	"fmt"
	iofs "io/fs"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"bennypowers.dev/fastbundle/fs"
)

// Fingerprint is an opaque content hash. The zero value never matches a real file.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

// Path fingerprints the file or directory at path.
// A missing path is reported as an error wrapping fs.ErrNotExist.
func Path(fsys fs.FileSystem, path string) (Fingerprint, error) {
	d := xxhash.New()
	if err := hashPath(fsys, path, d); err != nil {
		return 0, err
	}
	return sum(d), nil
}

// Bytes fingerprints data as the contents of a file with permission bits
// perm. It equals Path for a file holding exactly data.
func Bytes(perm iofs.FileMode, data []byte) Fingerprint {
	d := xxhash.New()
	writeFile(d, perm, data)
	return sum(d)
}

func sum(d *xxhash.Digest) Fingerprint {
	s := d.Sum64()
	if s == 0 {
		s = 1
	}
	return Fingerprint(s)
}

func hashPath(fsys fs.FileSystem, path string, d *xxhash.Digest) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		data, err := fsys.ReadFile(path)
		if err != nil {
			return err
		}
		writeFile(d, info.Mode(), data)
		return nil
	}

	entries, err := fsys.ReadDir(path)
	if err != nil {
		return err
	}
	writeHeader(d, uint32(info.Mode()), int64(len(entries)))
	// ReadDir returns entries sorted by name
	for _, entry := range entries {
		_, _ = d.WriteString(entry.Name())
		_, _ = d.Write([]byte{0})
		if err := hashPath(fsys, filepath.Join(path, entry.Name()), d); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(d *xxhash.Digest, perm iofs.FileMode, data []byte) {
	writeHeader(d, uint32(perm.Perm()), int64(len(data)))
	_, _ = d.Write(data)
}

func writeHeader(d *xxhash.Digest, mode uint32, size int64) {
	var buf [12]byte
	binary.LittleEndian.PutUint32(buf[:4], mode)
	binary.LittleEndian.PutUint64(buf[4:], uint64(size))
	_, _ = d.Write(buf[:])
}
