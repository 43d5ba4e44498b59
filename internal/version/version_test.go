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
package version_test

import (
	"runtime"
	"testing"

	"bennypowers.dev/fastbundle/internal/version"
)

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info version.Info
		want string
	}{
		{"bare", version.Info{Version: "v1.2.0"}, "v1.2.0"},
		{"commit", version.Info{Version: "v1.2.0", GitCommit: "0123456789abcdef"}, "v1.2.0 (0123456)"},
		{"short commit", version.Info{Version: "dev", GitCommit: "abc"}, "dev (abc)"},
		{"dirty", version.Info{Version: "dev", GitCommit: "0123456789", Modified: true}, "dev (0123456, dirty)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.info.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPrefersLdflags(t *testing.T) {
	saved := version.Version
	t.Cleanup(func() { version.Version = saved })

	version.Version = "v9.9.9"
	info := version.Get()
	if info.Version != "v9.9.9" {
		t.Errorf("Version = %q, want v9.9.9", info.Version)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}
