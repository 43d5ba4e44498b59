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
package main

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"bennypowers.dev/fastbundle/testutil"
)

func TestMain(m *testing.M) {
	// Build the binary before running tests
	wd := mustGetwd()
	cmd := exec.Command("go", "build", "-o", "fastbundle_test", ".")
	cmd.Dir = wd
	if out, err := cmd.CombinedOutput(); err != nil {
		panic("failed to build test binary: " + err.Error() + "\n" + string(out))
	}
	code := m.Run()
	_ = os.Remove(filepath.Join(wd, "fastbundle_test"))
	os.Exit(code)
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	return wd
}

func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	binary := filepath.Join(mustGetwd(), "fastbundle_test")
	cmd := exec.Command(binary, args...)
	cmd.Env = slices.DeleteFunc(os.Environ(), func(kv string) bool {
		return strings.HasPrefix(kv, "FASTBUNDLE_")
	})

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err := cmd.Run()
	stdout = stdoutBuf.String()
	stderr = stderrBuf.String()

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			t.Fatalf("Failed to run CLI: %v", err)
		}
	}

	return stdout, stderr, exitCode
}

// buildFixture copies a fixture, builds it, and returns the output directory.
func buildFixture(t *testing.T, fixture string, args ...string) (out, stdout string) {
	t.Helper()
	src := testutil.CopyFixture(t, fixture)
	out = t.TempDir()
	args = append([]string{"build", "--source", src, "--out", out}, args...)
	stdout, stderr, code := runCLI(t, args...)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	return out, stdout
}

func readOutput(t *testing.T, dir, rel string) string {
	t.Helper()
	content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("Expected output %s: %v", rel, err)
	}
	return string(content)
}

func assertContains(t *testing.T, content string, want ...string) {
	t.Helper()
	for _, s := range want {
		if !strings.Contains(content, s) {
			t.Errorf("Expected output to contain %q, got:\n%s", s, content)
		}
	}
}

func TestBuildSimple(t *testing.T) {
	out, stdout := buildFixture(t, "simple")

	assertContains(t, readOutput(t, out, "index.js"), "I am a module")
	assertContains(t, readOutput(t, out, "bundle.js"),
		"this is a required module",
		"this is another bundle",
	)
	assertContains(t, stdout, "index.js.browserify", "bundle.js.browserify", "built")
}

func TestBuildCustomExtensions(t *testing.T) {
	out, _ := buildFixture(t, "simple-with-customization")

	assertContains(t, readOutput(t, out, "simple-with-customization/index.js.my-custom-extension"), "I am a module")
	assertContains(t, readOutput(t, out, "simple-with-customization/bundle.my-custom-extension"), "this is another bundle")
}

func TestBuildDirectoryGlobBundles(t *testing.T) {
	out, _ := buildFixture(t, "directory-glob-bundles")

	assertContains(t, readOutput(t, out, "directory-glob-bundles/packages/package1/bundle.js"),
		"this is the bundle file in package1",
		"this is required by package1",
	)
	assertContains(t, readOutput(t, out, "directory-glob-bundles/packages/package2/bundle.js"), "this is package2")
	assertContains(t, readOutput(t, out, "directory-glob-bundles/packages/package3/bundle.js"), "this is package3")
	assertContains(t, readOutput(t, out, "directory-glob-bundles/all.js"),
		"this is the bundle file in package1",
		"this is package2",
		"this is package3",
	)

	if _, err := os.Stat(filepath.Join(out, "directory-glob-bundles", "packages", "empty", "bundle.js")); !os.IsNotExist(err) {
		t.Errorf("Expected no bundle for a package without entry points, got err %v", err)
	}
}

func TestBuildExternals(t *testing.T) {
	out, _ := buildFixture(t, "externals")

	bundle := readOutput(t, out, "externals/bundle.js")
	if strings.Contains(bundle, "marked external in one bundle") {
		t.Errorf("Expected ./included to be external in bundle.js:\n%s", bundle)
	}
	assertContains(t, readOutput(t, out, "externals/all.js"), "marked external in one bundle")
}

func TestBuildExternalFlag(t *testing.T) {
	out, _ := buildFixture(t, "simple", "--external", "./module")

	index := readOutput(t, out, "index.js")
	if strings.Contains(index, "I am a module") {
		t.Errorf("Expected ./module to be external:\n%s", index)
	}
}

func TestBuildTransformed(t *testing.T) {
	out, _ := buildFixture(t, "transformed")

	simple := readOutput(t, out, "simple/bundle.js")
	assertContains(t, simple, "Hello, my dear bar")
	if strings.Contains(simple, "dear foo") {
		t.Errorf("Expected replace transform to run:\n%s", simple)
	}
	assertContains(t, readOutput(t, out, "babelify/bundle.js"), "I am an es2015 module")
}

func TestBuildPackages(t *testing.T) {
	out, _ := buildFixture(t, "packages")
	assertContains(t, readOutput(t, out, "app.js"), "hello from greeter")
}

func TestBuildMinify(t *testing.T) {
	out, _ := buildFixture(t, "simple", "--minify", "--module-format", "esm")
	index := readOutput(t, out, "index.js")
	assertContains(t, index, "I am a module")
	if strings.Count(strings.TrimSpace(index), "\n") > 2 {
		t.Errorf("Expected minified output:\n%s", index)
	}
}

func TestBuildFailureKeepsOtherBundles(t *testing.T) {
	src := testutil.CopyFixture(t, "broken")
	out := t.TempDir()

	stdout, stderr, code := runCLI(t, "build", "--source", src, "--out", out)
	if code == 0 {
		t.Fatalf("Expected non-zero exit code\nstdout: %s", stdout)
	}
	assertContains(t, stderr, "bad.browserify")
	assertContains(t, stdout, "failed")
	assertContains(t, readOutput(t, out, "good.js"), "this one builds")

	if _, err := os.Stat(filepath.Join(out, "bad.js")); !os.IsNotExist(err) {
		t.Errorf("Expected no output for the failed bundle, got err %v", err)
	}
}

func TestBuildJSONReport(t *testing.T) {
	out, stdout := buildFixture(t, "simple", "--format", "json")

	var report struct {
		DestDir string `json:"destDir"`
		Bundles []struct {
			Bundle string `json:"bundle"`
			Status string `json:"status"`
			Output string `json:"output"`
		} `json:"bundles"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("Failed to parse JSON report: %v\nOutput: %s", err, stdout)
	}
	if report.DestDir != out {
		t.Errorf("Expected destDir %s, got %s", out, report.DestDir)
	}
	if len(report.Bundles) != 2 {
		t.Fatalf("Expected 2 bundles, got %d", len(report.Bundles))
	}
	for _, b := range report.Bundles {
		if b.Status != "built" {
			t.Errorf("Expected %s to be built, got %s", b.Bundle, b.Status)
		}
	}
	if report.Bundles[0].Bundle != "bundle.js.browserify" || report.Bundles[0].Output != "bundle.js" {
		t.Errorf("Unexpected first row: %+v", report.Bundles[0])
	}
}

func TestBuildConfigFlag(t *testing.T) {
	src := testutil.CopyFixture(t, "simple")
	out := t.TempDir()
	cfg := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(cfg, []byte("bundles:\n  only.js:\n    entryPoints: [module.js]\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, stderr, code := runCLI(t, "build", "--source", src, "--out", out, "--config", cfg)
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	assertContains(t, readOutput(t, out, "only.js"), "I am a module")
	if _, err := os.Stat(filepath.Join(out, "index.js")); !os.IsNotExist(err) {
		t.Errorf("Expected only the configured bundle, got err %v", err)
	}
}

func TestBuildErrors(t *testing.T) {
	src := testutil.CopyFixture(t, "simple")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing out", []string{"build", "--source", src}, "output directory is required"},
		{"missing config", []string{"build", "--source", src, "--out", t.TempDir(), "--config", filepath.Join(src, "nope.yaml")}, "nope.yaml"},
		{"bad format", []string{"build", "--source", src, "--out", t.TempDir(), "--format", "xml"}, "invalid format"},
		{"bad module format", []string{"build", "--source", src, "--out", t.TempDir(), "--module-format", "amd"}, "unknown output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runCLI(t, tt.args...)
			if code == 0 {
				t.Fatal("Expected non-zero exit code")
			}
			assertContains(t, stderr, tt.wantErr)
		})
	}
}

func TestVersion(t *testing.T) {
	stdout, stderr, code := runCLI(t, "version")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	assertContains(t, stdout, "fastbundle ")
}

func TestVersionJSON(t *testing.T) {
	stdout, stderr, code := runCLI(t, "version", "--format", "json")
	if code != 0 {
		t.Fatalf("Expected exit code 0, got %d\nstderr: %s", code, stderr)
	}
	var info map[string]any
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		t.Fatalf("Failed to parse JSON: %v\nOutput: %s", err, stdout)
	}
	for _, key := range []string{"version", "goVersion"} {
		if _, ok := info[key]; !ok {
			t.Errorf("Expected key %q in %v", key, info)
		}
	}
}
