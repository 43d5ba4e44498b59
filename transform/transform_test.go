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
package transform_test

import (
	"errors"
	"testing"

	"bennypowers.dev/fastbundle/transform"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		tname   string
		options map[string]any
		path    string
		src     string
		want    string
		wantErr bool
	}{
		{
			name:    "replace first occurrence",
			tname:   "replace",
			options: map[string]any{"from": "foo", "to": "bar"},
			src:     "foo foo",
			want:    "bar foo",
		},
		{
			name:    "replace all",
			tname:   "replace",
			options: map[string]any{"from": "foo", "to": "bar", "all": true},
			src:     "foo foo",
			want:    "bar bar",
		},
		{
			name:    "replace requires from",
			tname:   "replace",
			options: map[string]any{"to": "bar"},
			wantErr: true,
		},
		{
			name:    "prepend",
			tname:   "prepend",
			options: map[string]any{"text": "'use strict';\n"},
			src:     "x();",
			want:    "'use strict';\nx();",
		},
		{
			name:    "append",
			tname:   "append",
			options: map[string]any{"text": "\n//# end"},
			src:     "x();",
			want:    "x();\n//# end",
		},
		{
			name:    "include matches",
			tname:   "replace",
			options: map[string]any{"from": "a", "to": "b", "include": []any{"./lib/**/*.js"}},
			path:    "lib/deep/x.js",
			src:     "a",
			want:    "b",
		},
		{
			name:    "include skips",
			tname:   "replace",
			options: map[string]any{"from": "a", "to": "b", "include": "lib/**"},
			path:    "other/x.js",
			src:     "a",
			want:    "a",
		},
		{
			name:    "wrong option type",
			tname:   "prepend",
			options: map[string]any{"text": 3},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := transform.New(tt.tname, tt.options)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if tr.Name() != tt.tname {
				t.Errorf("Name() = %q, want %q", tr.Name(), tt.tname)
			}
			got, err := tr.Apply(tt.path, []byte(tt.src))
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Apply() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := transform.New("babelify", nil)
	if !errors.Is(err, transform.ErrUnknown) {
		t.Errorf("expected ErrUnknown, got %v", err)
	}
}

func TestApplyAllOrderAndErrors(t *testing.T) {
	upper := transform.Func("upper", func(_ string, src []byte) ([]byte, error) {
		return append(src, '!'), nil
	})
	chain := []transform.Transform{
		transform.Replace{From: "foo", To: "bar"},
		upper,
	}
	got, err := transform.ApplyAll(chain, "x.js", []byte("foo"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "bar!" {
		t.Errorf("ApplyAll() = %q, want %q", got, "bar!")
	}

	boom := errors.New("boom")
	failing := transform.Func("failing", func(string, []byte) ([]byte, error) { return nil, boom })
	_, err = transform.ApplyAll([]transform.Transform{failing}, "x.js", nil)
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped transform error, got %v", err)
	}
}
