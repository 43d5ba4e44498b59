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
package esbuild_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/google/go-cmp/cmp"

	"bennypowers.dev/fastbundle/bundler"
	"bennypowers.dev/fastbundle/bundler/esbuild"
	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/engine"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/internal/logging"
	"bennypowers.dev/fastbundle/testutil"
	"bennypowers.dev/fastbundle/transform"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(testutil.CopyFixture(t, name))
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func bundle(t *testing.T, cfg bundler.Config) []bundler.Event {
	t.Helper()
	h, err := esbuild.New(fs.NewOSFileSystem()).NewHandle(cfg)
	if err != nil {
		t.Fatalf("NewHandle: %v", err)
	}
	t.Cleanup(func() { _ = h.Close() })
	return slices.Collect(h.Bundle(context.Background()))
}

func terminal(t *testing.T, events []bundler.Event) bundler.Event {
	t.Helper()
	if len(events) == 0 {
		t.Fatal("no events")
	}
	last := events[len(events)-1]
	if !last.Terminal() {
		t.Fatalf("last event is %s, want a terminal event", last.Kind)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Terminal() {
			t.Fatalf("terminal event %s before the end", ev.Kind)
		}
	}
	return last
}

func output(t *testing.T, events []bundler.Event) string {
	t.Helper()
	last := terminal(t, events)
	if last.Kind != bundler.EventDone {
		t.Fatalf("build failed: %v", last.Err)
	}
	return string(last.Output)
}

func ofKind(events []bundler.Event, kind bundler.EventKind) []bundler.Event {
	var out []bundler.Event
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func TestBundleReportsFilesAndDeps(t *testing.T) {
	dir := fixture(t, "simple")
	events := bundle(t, bundler.Config{
		Key:     "index.js",
		BaseDir: dir,
		Entries: []string{"./index.js.browserify"},
		Loaders: map[string]string{".browserify": "js"},
	})

	if out := output(t, events); !strings.Contains(out, "I am a module") {
		t.Errorf("output does not contain the required module:\n%s", out)
	}

	var files []string
	for _, ev := range ofKind(events, bundler.EventFile) {
		files = append(files, ev.Path)
	}
	want := []string{
		filepath.Join(dir, "index.js.browserify"),
		filepath.Join(dir, "module.js"),
	}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("file events mismatch (-want +got):\n%s", diff)
	}

	var found bool
	for _, ev := range ofKind(events, bundler.EventDep) {
		if ev.ID == "./module" {
			found = true
			if ev.External || ev.Path != filepath.Join(dir, "module.js") {
				t.Errorf("dep ./module = %+v", ev)
			}
		}
	}
	if !found {
		t.Error("no dep event for ./module")
	}
}

func TestBundleAddAndRequire(t *testing.T) {
	dir := fixture(t, "simple")
	out := output(t, bundle(t, bundler.Config{
		Key:     "both.js",
		BaseDir: dir,
		Entries: []string{"./bundle.js.browserify", "./index.js.browserify"},
		Loaders: map[string]string{".browserify": "js"},
		Add:     []string{`console.log("added first");`},
		Require: []string{"./module"},
	}))

	for _, s := range []string{"added first", "this is a required module", "this is another bundle", "I am a module"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestBundleExternals(t *testing.T) {
	dir := fixture(t, "externals")
	events := bundle(t, bundler.Config{
		Key:       "bundle.js",
		BaseDir:   dir,
		Entries:   []string{"./index.js"},
		Externals: []string{"globallyExternal", "bundleExternalNonExistantModule", "./included"},
	})

	out := output(t, events)
	if strings.Contains(out, "marked external in one bundle") {
		t.Errorf("external ./included was bundled:\n%s", out)
	}
	if !strings.Contains(out, "should not include the globally or bundle excluded modules") {
		t.Errorf("entry missing from output:\n%s", out)
	}

	var externals []string
	for _, ev := range ofKind(events, bundler.EventDep) {
		if ev.External {
			if ev.Path != "" {
				t.Errorf("external dep %s has path %s", ev.ID, ev.Path)
			}
			externals = append(externals, ev.ID)
		}
	}
	for _, id := range []string{"globallyExternal", "./included"} {
		if !slices.Contains(externals, id) {
			t.Errorf("no external dep event for %s, got %v", id, externals)
		}
	}
	for _, ev := range ofKind(events, bundler.EventFile) {
		if filepath.Base(ev.Path) == "included.js" {
			t.Errorf("external file was read: %s", ev.Path)
		}
	}
}

func TestBundleIncludesModulesExternalElsewhere(t *testing.T) {
	dir := fixture(t, "externals")
	out := output(t, bundle(t, bundler.Config{
		Key:       "all.js",
		BaseDir:   dir,
		Entries:   []string{"./index.js"},
		Externals: []string{"globallyExternal", "bundleExternalNonExistantModule"},
	}))
	if !strings.Contains(out, "marked external in one bundle") {
		t.Errorf("./included missing from output:\n%s", out)
	}
}

func TestBundleAppliesTransforms(t *testing.T) {
	dir := fixture(t, "transformed")
	replace, err := transform.New("replace", map[string]any{"from": "foo", "to": "bar", "all": true})
	if err != nil {
		t.Fatal(err)
	}
	out := output(t, bundle(t, bundler.Config{
		Key:        "simple/bundle.js",
		BaseDir:    dir,
		Entries:    []string{"./simple/index.js"},
		Transforms: []transform.Transform{replace},
	}))
	if !strings.Contains(out, "Hello, my dear bar") || strings.Contains(out, "dear foo") {
		t.Errorf("transform not applied:\n%s", out)
	}
}

func TestBundleCustomLoader(t *testing.T) {
	dir := fixture(t, "transformed")
	out := output(t, bundle(t, bundler.Config{
		Key:        "babelify/bundle.js",
		BaseDir:    dir,
		Entries:    []string{"./babelify/es2015-modules.babel"},
		Extensions: []string{".js", ".babel"},
		Loaders:    map[string]string{".babel": "js"},
	}))
	if !strings.Contains(out, "I am an es2015 module") {
		t.Errorf("imported module missing from output:\n%s", out)
	}
}

func TestBundleReportsPackages(t *testing.T) {
	dir := fixture(t, "packages")
	events := bundle(t, bundler.Config{
		Key:     "app.js",
		BaseDir: dir,
		Entries: []string{"./app.browserify"},
		Loaders: map[string]string{".browserify": "js"},
	})
	if out := output(t, events); !strings.Contains(out, "hello from greeter") {
		t.Errorf("package main missing from output:\n%s", out)
	}

	pkgs := ofKind(events, bundler.EventPackage)
	want := []bundler.Event{bundler.Package(
		filepath.Join(dir, "node_modules", "greeter"),
		filepath.Join(dir, "node_modules", "greeter", "package.json"),
		"greeter",
	)}
	if diff := cmp.Diff(want, pkgs); diff != "" {
		t.Errorf("package events mismatch (-want +got):\n%s", diff)
	}
}

func TestBundleSyntaxErrorFails(t *testing.T) {
	dir := fixture(t, "broken")
	last := terminal(t, bundle(t, bundler.Config{
		Key:     "bad.js",
		BaseDir: dir,
		Entries: []string{"./bad.browserify"},
		Loaders: map[string]string{".browserify": "js"},
	}))
	if last.Kind != bundler.EventFailed || last.Err == nil {
		t.Fatalf("terminal event = %+v, want a failure", last)
	}
	if !strings.Contains(last.Err.Error(), "bad.browserify") {
		t.Errorf("error does not name the file: %v", last.Err)
	}
}

func TestRebuildSeesInvalidatedContent(t *testing.T) {
	dir := fixture(t, "simple")
	osfs := fs.NewOSFileSystem()
	contents, err := bundler.NewContentCache(osfs, 0)
	if err != nil {
		t.Fatal(err)
	}
	h, err := esbuild.New(osfs).NewHandle(bundler.Config{
		Key:      "index.js",
		BaseDir:  dir,
		Entries:  []string{"./index.js.browserify"},
		Loaders:  map[string]string{".browserify": "js"},
		Contents: contents,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	first := output(t, slices.Collect(h.Bundle(context.Background())))
	if !strings.Contains(first, "I am a module") {
		t.Fatalf("first build:\n%s", first)
	}

	module := filepath.Join(dir, "module.js")
	testutil.WriteFile(t, dir, "module.js", `module.exports = "I changed";`)
	contents.Invalidate(module)

	second := output(t, slices.Collect(h.Bundle(context.Background())))
	if !strings.Contains(second, "I changed") || strings.Contains(second, "I am a module") {
		t.Errorf("rebuild used stale content:\n%s", second)
	}
}

func TestClosedHandleFails(t *testing.T) {
	dir := fixture(t, "simple")
	h, err := esbuild.New(fs.NewOSFileSystem()).NewHandle(bundler.Config{
		Key:     "index.js",
		BaseDir: dir,
		Entries: []string{"./index.js.browserify"},
		Loaders: map[string]string{".browserify": "js"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	last := terminal(t, slices.Collect(h.Bundle(context.Background())))
	if last.Kind != bundler.EventFailed {
		t.Errorf("terminal event = %s, want failed", last.Kind)
	}
}

func TestNewHandleValidation(t *testing.T) {
	b := esbuild.New(fs.NewOSFileSystem())
	if _, err := b.NewHandle(bundler.Config{Key: "x", BaseDir: "relative"}); err == nil {
		t.Error("expected an error for a relative base directory")
	}
	if _, err := b.NewHandle(bundler.Config{
		Key:     "x",
		BaseDir: t.TempDir(),
		Loaders: map[string]string{".foo": "nonsense"},
	}); err == nil {
		t.Error("expected an error for an unknown loader")
	}
}

func TestSessionWithEsbuild(t *testing.T) {
	dir := fixture(t, "simple")
	dest := t.TempDir()
	osfs := fs.NewOSFileSystem()

	var log bytes.Buffer
	session, err := engine.NewSession(engine.Config{
		FS:      osfs,
		Bundler: esbuild.New(osfs),
		DestDir: dest,
		Options: bundlespec.Options{},
		Logger:  logging.New(&log, false),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	result, err := session.RunCycle(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if diff := cmp.Diff([]string{"bundle.js.browserify", "index.js.browserify"}, result.Built); diff != "" {
		t.Errorf("built mismatch (-want +got):\n%s", diff)
	}

	testutil.WriteFile(t, dir, "module.js", `module.exports = "I changed";`)
	result, err = session.RunCycle(context.Background(), dir)
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if diff := cmp.Diff([]string{"index.js.browserify"}, result.Built); diff != "" {
		t.Errorf("rebuilt mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"bundle.js.browserify"}, result.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}

	got, err := os.ReadFile(filepath.Join(dest, "index.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "I changed") {
		t.Errorf("index.js was not rebuilt:\n%s", got)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		want    api.Format
		wantErr bool
	}{
		{"", api.FormatIIFE, false},
		{"iife", api.FormatIIFE, false},
		{"ESM", api.FormatESModule, false},
		{"cjs", api.FormatCommonJS, false},
		{"umd", api.FormatDefault, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := esbuild.ParseFormat(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		name    string
		want    api.Platform
		wantErr bool
	}{
		{"", api.PlatformBrowser, false},
		{"browser", api.PlatformBrowser, false},
		{"node", api.PlatformNode, false},
		{"neutral", api.PlatformNeutral, false},
		{"deno", api.PlatformDefault, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := esbuild.ParsePlatform(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePlatform(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePlatform(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestDisabledModulesAreNotWatched(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	testutil.WriteFile(t, dir, "package.json", `{"name": "app", "browser": {"fs": false}}`)
	testutil.WriteFile(t, dir, "app.browserify", "var fs = require('fs');\nconsole.log('browser app', typeof fs);\n")

	dest := t.TempDir()
	osfs := fs.NewOSFileSystem()
	var log bytes.Buffer
	session, err := engine.NewSession(engine.Config{
		FS:      osfs,
		Bundler: esbuild.New(osfs),
		DestDir: dest,
		Logger:  logging.New(&log, false),
	})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	for i := range 3 {
		result, err := session.RunCycle(context.Background(), dir)
		if err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
		if i == 0 {
			if diff := cmp.Diff([]string{"app.browserify"}, result.Built); diff != "" {
				t.Errorf("cycle 1 built mismatch (-want +got):\n%s", diff)
			}
			continue
		}
		if len(result.Built) != 0 || len(result.Invalidated) != 0 {
			t.Errorf("cycle %d rebuilt %v (invalidated %v) with no changes", i+1, result.Built, result.Invalidated)
		}
	}

	for _, path := range session.Index().Watched() {
		if strings.Contains(path, "(disabled)") || !strings.HasPrefix(path, dir) {
			t.Errorf("watching %s, which is not a source file", path)
		}
	}
	if !slices.Contains(session.Index().Watched(), filepath.Join(dir, "package.json")) {
		t.Errorf("package.json not watched: %v", session.Index().Watched())
	}
}

func TestFileEventsCarryLoadedFingerprints(t *testing.T) {
	dir := fixture(t, "simple")
	osfs := fs.NewOSFileSystem()
	contents, err := bundler.NewContentCache(osfs, 0)
	if err != nil {
		t.Fatal(err)
	}
	events := bundle(t, bundler.Config{
		Key:      "index.js",
		BaseDir:  dir,
		Entries:  []string{"./index.js.browserify"},
		Loaders:  map[string]string{".browserify": "js"},
		Contents: contents,
	})
	output(t, events)

	files := ofKind(events, bundler.EventFile)
	if len(files) == 0 {
		t.Fatal("no file events")
	}
	for _, ev := range files {
		want, ok := contents.Fingerprint(ev.Path)
		if !ok {
			t.Errorf("%s was not loaded through the content cache", ev.Path)
			continue
		}
		if ev.Fingerprint != want {
			t.Errorf("%s fingerprint = %s, want %s", ev.Path, ev.Fingerprint, want)
		}
	}
}
