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
package config_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/bundlespec"
	"bennypowers.dev/fastbundle/internal/config"
	"bennypowers.dev/fastbundle/internal/mapfs"
)

const sample = `
outputDirectory: dist
externals: [jquery]
extensions: [babel]
loaders:
  babel: js
bundles:
  "packages/*":
    glob: true
    entryPoints: "{key}index.js"
    outputPath: "{key}bundle.js"
  all.js:
    entryPoints: ["packages/*/index.js"]
    externals: ./included
    transform:
      - name: replace
        options: {from: foo, to: bar}
      - {name: append, options: {text: "// end"}}
    require: [./polyfill.js]
    add: "window.BUILD = 1;"
  vendor.js:
    alwaysBuild: true
`

func TestParse(t *testing.T) {
	f, err := config.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.OutputDirectory != "dist" {
		t.Errorf("OutputDirectory = %q", f.OutputDirectory)
	}
	var keys []string
	for _, b := range f.Bundles {
		keys = append(keys, b.Key)
	}
	if diff := cmp.Diff([]string{"packages/*", "all.js", "vendor.js"}, keys); diff != "" {
		t.Errorf("bundle order mismatch (-want +got):\n%s", diff)
	}

	all := f.Bundles[1]
	if diff := cmp.Diff(config.StringList{"./included"}, all.Externals); diff != "" {
		t.Errorf("Externals mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(config.StringList{"window.BUILD = 1;"}, all.Add); diff != "" {
		t.Errorf("Add mismatch (-want +got):\n%s", diff)
	}
	wantTransforms := config.TransformList{
		{Name: "replace", Options: map[string]any{"from": "foo", "to": "bar"}},
		{Name: "append", Options: map[string]any{"text": "// end"}},
	}
	if diff := cmp.Diff(wantTransforms, all.Transform); diff != "" {
		t.Errorf("Transform mismatch (-want +got):\n%s", diff)
	}
	if !f.Bundles[2].AlwaysBuild {
		t.Error("vendor.js lost alwaysBuild")
	}
}

func TestParseKeepsDeclarationOrder(t *testing.T) {
	f, err := config.Parse([]byte("bundles:\n  z.js: {entryPoints: z.js}\n  a.js: {entryPoints: a.js}\n  m.js: {entryPoints: m.js}\n"))
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, b := range f.Bundles {
		keys = append(keys, b.Key)
	}
	if diff := cmp.Diff([]string{"z.js", "a.js", "m.js"}, keys); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTransformShorthand(t *testing.T) {
	f, err := config.Parse([]byte("bundles:\n  a.js:\n    entryPoints: a.js\n    transform: replace\n"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(config.TransformList{{Name: "replace"}}, f.Bundles[0].Transform); diff != "" {
		t.Errorf("Transform mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown top-level field", "bundleExt: .b\n"},
		{"unknown bundle field", "bundles:\n  a.js:\n    entrypoints: a.js\n"},
		{"bundles as a list", "bundles:\n  - a.js\n"},
		{"entry points as a mapping", "bundles:\n  a.js:\n    entryPoints: {a: b}\n"},
		{"transform without a name", "bundles:\n  a.js:\n    transform: [{options: {}}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := config.Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestOptionsResolve(t *testing.T) {
	f, err := config.Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := f.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}

	if diff := cmp.Diff(map[string]string{".babel": "js"}, opts.Loaders); diff != "" {
		t.Errorf("Loaders mismatch (-want +got):\n%s", diff)
	}
	if got := opts.Bundles[0].EntryPoints.Kind(); got != bundlespec.EntryComputed {
		t.Errorf("templated entry kind = %v, want computed", got)
	}
	if got := opts.Bundles[1].EntryPoints.Kind(); got != bundlespec.EntryGlob {
		t.Errorf("glob entry kind = %v, want glob", got)
	}
	if got := len(opts.Bundles[1].Transforms); got != 2 {
		t.Errorf("got %d transforms, want 2", got)
	}

	mfs := mapfs.New()
	mfs.AddFile("/src/packages/one/index.js", "one()", 0644)
	mfs.AddFile("/src/packages/two/index.js", "two()", 0644)
	mfs.AddFile("/src/packages/three/other.js", "three()", 0644)

	resolved, err := bundlespec.NewResolver(mfs, "/src", opts).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	got := make(map[string][]string)
	outputs := make(map[string]string)
	for _, r := range resolved {
		got[r.Key] = r.EntryPointsRelative
		outputs[r.Key] = r.OutputPath
	}
	wantEntries := map[string][]string{
		"packages/one/":   {"./packages/one/index.js"},
		"packages/three/": nil,
		"packages/two/":   {"./packages/two/index.js"},
		"all.js":          {"./packages/one/index.js", "./packages/two/index.js"},
		"vendor.js":       nil,
	}
	if diff := cmp.Diff(wantEntries, got); diff != "" {
		t.Errorf("entry points mismatch (-want +got):\n%s", diff)
	}
	wantOutputs := map[string]string{
		"packages/one/":   "dist/packages/one/bundle.js",
		"packages/three/": "dist/packages/three/bundle.js",
		"packages/two/":   "dist/packages/two/bundle.js",
		"all.js":          "dist/all.js",
		"vendor.js":       "dist/vendor.js",
	}
	if diff := cmp.Diff(wantOutputs, outputs); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestOptionsLiteralEntries(t *testing.T) {
	f, err := config.Parse([]byte("bundles:\n  bundle.js:\n    entryPoints: [index.js, lib/extra.js]\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts, err := f.Options()
	if err != nil {
		t.Fatal(err)
	}
	if got := opts.Bundles[0].EntryPoints.Kind(); got != bundlespec.EntryLiteral {
		t.Errorf("entry kind = %v, want literal", got)
	}
}

func TestOptionsConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown template variable", "bundles:\n  \"*.b\":\n    glob: true\n    outputPath: \"{nope}.js\"\n"},
		{"unknown transform", "bundles:\n  a.js:\n    entryPoints: a.js\n    transform: uglify\n"},
		{"bad transform options", "bundles:\n  a.js:\n    entryPoints: a.js\n    transform: [{name: replace}]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := config.Parse([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			_, err = f.Options()
			if !errors.Is(err, bundlespec.ErrConfig) {
				t.Errorf("Options error = %v, want a configuration error", err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	mfs := mapfs.New()
	mfs.AddFile("/src/fastbundle.yaml", "outputExtension: .out.js\n", 0644)

	f, err := config.Load(mfs, "/src/fastbundle.yaml", true)
	if err != nil {
		t.Fatal(err)
	}
	if f.OutputExtension != ".out.js" {
		t.Errorf("OutputExtension = %q", f.OutputExtension)
	}

	f, err = config.Load(mfs, "/src/missing.yaml", false)
	if err != nil {
		t.Fatalf("optional missing file: %v", err)
	}
	if len(f.Bundles) != 0 {
		t.Errorf("optional missing file produced bundles: %v", f.Bundles)
	}

	if _, err := config.Load(mfs, "/src/missing.yaml", true); err == nil {
		t.Error("required missing file did not fail")
	}

	mfs.AddFile("/src/broken.yaml", "bundles: [", 0644)
	_, err = config.Load(mfs, "/src/broken.yaml", true)
	if err == nil || !strings.Contains(err.Error(), "/src/broken.yaml") {
		t.Errorf("broken file error = %v, want it to name the file", err)
	}
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	v.Set("bundle-extension", "bundle")
	v.Set("output-dir", "public")
	v.Set("external", []string{"react"})

	f := &config.File{OutputDirectory: "dist", Externals: []string{"jquery"}}
	f.Apply(config.OverridesFrom(v))

	if f.BundleExtension != "bundle" || f.OutputDirectory != "public" {
		t.Errorf("overrides not applied: %+v", f)
	}
	if diff := cmp.Diff([]string{"jquery", "react"}, f.Externals); diff != "" {
		t.Errorf("Externals mismatch (-want +got):\n%s", diff)
	}

	opts, err := f.Options()
	if err != nil {
		t.Fatal(err)
	}
	if got := opts.Normalize().BundleExtension; got != ".bundle" {
		t.Errorf("normalized bundle extension = %q", got)
	}
}

func TestBindEnv(t *testing.T) {
	t.Setenv("FASTBUNDLE_OUTPUT_DIR", "from-env")

	v := viper.New()
	config.BindEnv(v)
	if got := config.OverridesFrom(v).OutputDirectory; got != "from-env" {
		t.Errorf("OutputDirectory = %q, want from-env", got)
	}
}
