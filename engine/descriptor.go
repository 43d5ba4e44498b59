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
package engine

import (
	"slices"
	"sync/atomic"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/fs"
)

// State is a descriptor's position in its lifecycle:
// absent -> building -> fresh -> (stale -> building -> fresh)* -> deleted.
type State int32

const (
	StateAbsent State = iota
	StateBuilding
	StateFresh
	StateStale
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateBuilding:
		return "building"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Descriptor is the engine's record of one bundle. Its fields are fixed at
// creation; an invalidated bundle gets a new descriptor.
type Descriptor struct {
	Key string
	// OutputPath is relative to the destination directory.
	OutputPath string
	OutputAbs  string

	EntryPointsRelative    []string
	EntryPointsAbsolute    []string
	EntryPointFingerprints []fingerprint.Fingerprint

	Spec *bundlespec.Spec

	handle bundler.Handle
	state  atomic.Int32
}

func newDescriptor(fsys fs.FileSystem, destDir string, r bundlespec.Resolved) *Descriptor {
	d := &Descriptor{
		Key:                    r.Key,
		OutputPath:             r.OutputPath,
		OutputAbs:              outputAbs(destDir, r.OutputPath),
		EntryPointsRelative:    slices.Clone(r.EntryPointsRelative),
		EntryPointsAbsolute:    slices.Clone(r.EntryPointsAbsolute),
		EntryPointFingerprints: make([]fingerprint.Fingerprint, len(r.EntryPointsAbsolute)),
		Spec:                   r.Spec,
	}
	for i, p := range d.EntryPointsAbsolute {
		// a failure leaves zero, which never matches
		d.EntryPointFingerprints[i], _ = fingerprint.Path(fsys, p)
	}
	return d
}

// State returns the descriptor's lifecycle state.
func (d *Descriptor) State() State {
	return State(d.state.Load())
}

func (d *Descriptor) setState(s State) {
	d.state.Store(int32(s))
}

// anyEntryExists reports whether at least one entry point is still on disk.
func (d *Descriptor) anyEntryExists(fsys fs.FileSystem) bool {
	return slices.ContainsFunc(d.EntryPointsAbsolute, fsys.Exists)
}

// entriesChanged reports whether any entry point's content differs from
// when the descriptor was created.
func (d *Descriptor) entriesChanged(fsys fs.FileSystem) bool {
	for i, p := range d.EntryPointsAbsolute {
		fp, err := fingerprint.Path(fsys, p)
		if err != nil || fp != d.EntryPointFingerprints[i] {
			return true
		}
	}
	return false
}

func (d *Descriptor) close() error {
	d.setState(StateDeleted)
	if d.handle == nil {
		return nil
	}
	h := d.handle
	d.handle = nil
	return h.Close()
}
