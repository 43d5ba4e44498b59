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

// Package transform provides source transforms applied to project modules
// before they are handed to the bundler.
package transform

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ErrUnknown is returned by New for unregistered transform names.
var ErrUnknown = errors.New("unknown transform")

// Transform rewrites the source of one module.
// path is slash-separated and relative to the bundle's base directory.
type Transform interface {
	Name() string
	Apply(path string, src []byte) ([]byte, error)
}

// Replace substitutes From with To, once unless All is set.
type Replace struct {
	From string
	To   string
	All  bool
}

func (r Replace) Name() string { return "replace" }

func (r Replace) Apply(_ string, src []byte) ([]byte, error) {
	n := 1
	if r.All {
		n = -1
	}
	return bytes.Replace(src, []byte(r.From), []byte(r.To), n), nil
}

// Prepend inserts Text before the module source.
type Prepend struct{ Text string }

func (p Prepend) Name() string { return "prepend" }

func (p Prepend) Apply(_ string, src []byte) ([]byte, error) {
	return append([]byte(p.Text), src...), nil
}

// Append adds Text after the module source.
type Append struct{ Text string }

func (a Append) Name() string { return "append" }

func (a Append) Apply(_ string, src []byte) ([]byte, error) {
	return append(slices.Clip(src), a.Text...), nil
}

// Filtered applies Inner only to paths matching one of the Include patterns.
type Filtered struct {
	Include []string
	Inner   Transform
}

func (f Filtered) Name() string { return f.Inner.Name() }

func (f Filtered) Apply(path string, src []byte) ([]byte, error) {
	for _, pattern := range f.Include {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return f.Inner.Apply(path, src)
		}
	}
	return src, nil
}

// Func adapts a function to Transform.
func Func(name string, fn func(path string, src []byte) ([]byte, error)) Transform {
	return funcTransform{name: name, fn: fn}
}

type funcTransform struct {
	name string
	fn   func(string, []byte) ([]byte, error)
}

func (f funcTransform) Name() string { return f.name }

func (f funcTransform) Apply(path string, src []byte) ([]byte, error) { return f.fn(path, src) }

// ApplyAll runs transforms in order.
func ApplyAll(transforms []Transform, path string, src []byte) ([]byte, error) {
	var err error
	for _, t := range transforms {
		src, err = t.Apply(path, src)
		if err != nil {
			return nil, fmt.Errorf("transform %s on %s: %w", t.Name(), path, err)
		}
	}
	return src, nil
}

// New builds a registered transform from declarative options.
//
// Registered names:
//   - replace: from, to, all
//   - prepend: text
//   - append: text
//
// Any transform accepts include, a pattern or list of patterns restricting it
// to matching module paths.
func New(name string, options map[string]any) (Transform, error) {
	var t Transform
	switch name {
	case "replace":
		from, err := stringOption(options, "from", true)
		if err != nil {
			return nil, err
		}
		to, err := stringOption(options, "to", false)
		if err != nil {
			return nil, err
		}
		all, _ := options["all"].(bool)
		t = Replace{From: from, To: to, All: all}
	case "prepend":
		text, err := stringOption(options, "text", true)
		if err != nil {
			return nil, err
		}
		t = Prepend{Text: text}
	case "append":
		text, err := stringOption(options, "text", true)
		if err != nil {
			return nil, err
		}
		t = Append{Text: text}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknown, name)
	}

	include, err := listOption(options, "include")
	if err != nil {
		return nil, err
	}
	if len(include) == 0 {
		return t, nil
	}
	for _, pattern := range include {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("transform %s: invalid include pattern %q", name, pattern)
		}
	}
	return Filtered{Include: include, Inner: t}, nil
}

func stringOption(options map[string]any, key string, required bool) (string, error) {
	v, ok := options[key]
	if !ok {
		if required {
			return "", fmt.Errorf("missing option %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("option %q must be a string, got %T", key, v)
	}
	return s, nil
}

func listOption(options map[string]any, key string) ([]string, error) {
	var out []string
	switch v := options[key].(type) {
	case nil:
		return nil, nil
	case string:
		out = []string{v}
	case []string:
		out = slices.Clone(v)
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("option %q must list strings, got %T", key, item)
			}
			out = append(out, s)
		}
	default:
		return nil, fmt.Errorf("option %q must be a string or list, got %T", key, v)
	}
	for i, s := range out {
		out[i] = strings.TrimPrefix(s, "./")
	}
	return out, nil
}
