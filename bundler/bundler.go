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

// Package bundler defines the contract between the build engine and a
// module bundler.
//
// A Bundler creates one Handle per bundle. The handle owns whatever
// incremental state the bundler keeps for that bundle and is never shared.
// Each call to Handle.Bundle runs one build, reporting every file, package
// manifest and dependency it touched as a lazy sequence of events that ends
// with exactly one EventDone or EventFailed.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"bennypowers.dev/fastbundle/fingerprint"
	"bennypowers.dev/fastbundle/packagejson"
	"bennypowers.dev/fastbundle/transform"
)

// ErrNoResult is reported when a build sequence ends without a terminal event.
var ErrNoResult = errors.New("bundler finished without a result")

// EventKind identifies a build event.
type EventKind int

const (
	// EventFile reports a source file read by the build.
	EventFile EventKind = iota + 1
	// EventPackage reports a package manifest consulted by the build.
	EventPackage
	// EventDep reports a resolved module dependency.
	EventDep
	// EventDone carries the bundle output.
	EventDone
	// EventFailed carries the build error.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventFile:
		return "file"
	case EventPackage:
		return "package"
	case EventDep:
		return "dep"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one item of a build sequence.
type Event struct {
	Kind EventKind

	// Path is the file read (EventFile), the manifest (EventPackage) or the
	// resolved file (EventDep, empty when External). Relative paths are
	// relative to Config.BaseDir.
	Path string
	// Dir is the package directory of an EventPackage.
	Dir string
	// ID is the module specifier of an EventDep, or the package name of an
	// EventPackage.
	ID       string
	External bool
	// Fingerprint of the bytes an EventFile build actually read. Zero when
	// the bundler does not know it.
	Fingerprint fingerprint.Fingerprint

	Output []byte
	Err    error
}

// Terminal reports whether e ends a build sequence.
func (e Event) Terminal() bool {
	return e.Kind == EventDone || e.Kind == EventFailed
}

// File returns an EventFile.
func File(path string) Event { return Event{Kind: EventFile, Path: path} }

// FileRead returns an EventFile for bytes with fingerprint fp.
func FileRead(path string, fp fingerprint.Fingerprint) Event {
	return Event{Kind: EventFile, Path: path, Fingerprint: fp}
}

// Package returns an EventPackage.
func Package(dir, manifest, name string) Event {
	return Event{Kind: EventPackage, Dir: dir, Path: manifest, ID: name}
}

// Dep returns an EventDep.
func Dep(id, path string, external bool) Event {
	return Event{Kind: EventDep, ID: id, Path: path, External: external}
}

// Done returns a successful terminal event.
func Done(output []byte) Event { return Event{Kind: EventDone, Output: output} }

// Failed returns a failed terminal event.
func Failed(err error) Event { return Event{Kind: EventFailed, Err: err} }

// Config configures one bundle's handle.
type Config struct {
	// Key identifies the bundle.
	Key string
	// BaseDir is the absolute source root entries are relative to.
	BaseDir string
	// Entries are "./"-relative entry modules, bundled in order.
	Entries []string

	// Contents is shared by every bundle of a session. Every file read
	// through it must be reported as an EventFile, with the fingerprint
	// LoadFingerprint returned.
	Contents *ContentCache
	// Packages is shared by every bundle of a session.
	Packages packagejson.Cache

	// Extensions lists resolvable file extensions in priority order.
	Extensions []string
	// Loaders maps an extension to a loader name such as "js" or "ts".
	Loaders map[string]string
	// Externals are module names or paths left out of the bundle.
	Externals []string
	// Transforms run on project sources, outside node_modules.
	Transforms []transform.Transform
	// Require lists modules bundled after the entries.
	Require []string
	// Add lists raw sources placed before the entries.
	Add []string
}

// Bundler creates per-bundle handles.
type Bundler interface {
	NewHandle(cfg Config) (Handle, error)
}

// Handle is one bundle's incremental build state.
type Handle interface {
	// Bundle runs a build when the returned sequence is iterated.
	Bundle(ctx context.Context) iter.Seq[Event]
	Close() error
}
