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
// Package config loads bundle configuration files.
//
// A configuration file is YAML. Bundles are declared as an ordered mapping
// from bundle key to bundle options; declaration order is kept because it
// decides which spec owns a key when two specs match it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/bundlespec"
	fbfs "bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/transform"
)

// DefaultFileName is looked up in the source directory when no
// configuration file is named.
const DefaultFileName = "fastbundle.yaml"

// EnvPrefix prefixes environment variables that override flags.
const EnvPrefix = "FASTBUNDLE"

// File is a decoded configuration file.
type File struct {
	BundleExtension string            `yaml:"bundleExtension"`
	OutputExtension string            `yaml:"outputExtension"`
	OutputDirectory string            `yaml:"outputDirectory"`
	Externals       []string          `yaml:"externals"`
	Extensions      []string          `yaml:"extensions"`
	Loaders         map[string]string `yaml:"loaders"`
	Bundles         Bundles           `yaml:"bundles"`
}

// Bundle is one entry of the bundles mapping.
type Bundle struct {
	Key         string        `yaml:"-"`
	Glob        bool          `yaml:"glob"`
	EntryPoints StringList    `yaml:"entryPoints"`
	OutputPath  string        `yaml:"outputPath"`
	Externals   StringList    `yaml:"externals"`
	Transform   TransformList `yaml:"transform"`
	Require     StringList    `yaml:"require"`
	Add         StringList    `yaml:"add"`
	AlwaysBuild bool          `yaml:"alwaysBuild"`
}

// Bundles keeps bundles in declaration order.
type Bundles []Bundle

// UnmarshalYAML decodes the bundles mapping without losing its order.
func (b *Bundles) UnmarshalYAML(bs []byte) error {
	var raw any
	if err := yaml.UnmarshalWithOptions(bs, &raw, yaml.UseOrderedMap()); err != nil {
		return err
	}
	if raw == nil {
		*b = nil
		return nil
	}
	items, ok := raw.(yaml.MapSlice)
	if !ok {
		return fmt.Errorf("bundles must be a mapping of bundle key to options, got %T", raw)
	}

	out := make(Bundles, 0, len(items))
	for _, item := range items {
		key, ok := item.Key.(string)
		if !ok {
			return fmt.Errorf("bundle key %v is not a string", item.Key)
		}

		var bundle Bundle
		if item.Value != nil {
			raw, err := yaml.Marshal(item.Value)
			if err != nil {
				return fmt.Errorf("bundle %q: %w", key, err)
			}
			if err := yaml.UnmarshalWithOptions(raw, &bundle, yaml.Strict()); err != nil {
				return fmt.Errorf("bundle %q: %w", key, err)
			}
		}
		bundle.Key = key
		out = append(out, bundle)
	}
	*b = out
	return nil
}

// StringList accepts a single string or a list of strings.
type StringList []string

func (l *StringList) UnmarshalYAML(bs []byte) error {
	var raw any
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*l = nil
	case string:
		*l = StringList{v}
	case []any:
		out := make(StringList, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected a string, got %T", item)
			}
			out = append(out, s)
		}
		*l = out
	default:
		return fmt.Errorf("expected a string or a list of strings, got %T", raw)
	}
	return nil
}

// Transform names a registered transform and its options.
type Transform struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// TransformList accepts a transform name, a single transform, or a list
// mixing both.
type TransformList []Transform

func (l *TransformList) UnmarshalYAML(bs []byte) error {
	var raw any
	if err := yaml.Unmarshal(bs, &raw); err != nil {
		return err
	}
	items, ok := raw.([]any)
	if !ok {
		items = []any{raw}
	}

	out := make(TransformList, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case nil:
		case string:
			out = append(out, Transform{Name: v})
		case map[string]any:
			var t Transform
			t.Name, _ = v["name"].(string)
			if t.Name == "" {
				return fmt.Errorf("transform is missing a name")
			}
			if options, ok := v["options"]; ok && options != nil {
				if t.Options, ok = options.(map[string]any); !ok {
					return fmt.Errorf("transform %q: options must be a mapping", t.Name)
				}
			}
			out = append(out, t)
		default:
			return fmt.Errorf("invalid transform of type %T", item)
		}
	}
	*l = out
	return nil
}

// Parse decodes a configuration file.
func Parse(bs []byte) (*File, error) {
	var f File
	if err := yaml.UnmarshalWithOptions(bs, &f, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &f, nil
}

// Load reads and decodes path. When the file does not exist and it was not
// explicitly requested, an empty configuration is returned.
func Load(fsys fbfs.FileSystem, path string, required bool) (*File, error) {
	bs, err := fsys.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	f, err := Parse(bs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Overrides are command-line or environment settings that take precedence
// over the file.
type Overrides struct {
	BundleExtension string
	OutputExtension string
	OutputDirectory string
	Externals       []string
	Extensions      []string
}

// OverridesFrom reads overrides from v, which should have the command's
// flags bound and the environment enabled.
func OverridesFrom(v *viper.Viper) Overrides {
	return Overrides{
		BundleExtension: v.GetString("bundle-extension"),
		OutputExtension: v.GetString("output-extension"),
		OutputDirectory: v.GetString("output-dir"),
		Externals:       v.GetStringSlice("external"),
		Extensions:      v.GetStringSlice("extension"),
	}
}

// BindEnv makes v read FASTBUNDLE_* environment variables, with dashes in
// keys mapped to underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
}

// Apply merges overrides into the file. Set strings replace the file's
// values; lists are appended.
func (f *File) Apply(o Overrides) {
	if o.BundleExtension != "" {
		f.BundleExtension = o.BundleExtension
	}
	if o.OutputExtension != "" {
		f.OutputExtension = o.OutputExtension
	}
	if o.OutputDirectory != "" {
		f.OutputDirectory = o.OutputDirectory
	}
	f.Externals = append(f.Externals, o.Externals...)
	f.Extensions = append(f.Extensions, o.Extensions...)
}

// Options converts the file into bundle options.
func (f *File) Options() (bundlespec.Options, error) {
	opts := bundlespec.Options{
		BundleExtension: f.BundleExtension,
		OutputExtension: f.OutputExtension,
		OutputDirectory: f.OutputDirectory,
		Externals:       f.Externals,
		Extensions:      f.Extensions,
		Loaders:         normalizeLoaders(f.Loaders),
	}
	bundleExt := opts.Normalize().BundleExtension

	for _, b := range f.Bundles {
		spec, err := b.spec(bundleExt)
		if err != nil {
			return bundlespec.Options{}, err
		}
		opts.Bundles = append(opts.Bundles, spec)
	}
	return opts, nil
}

func (b Bundle) spec(bundleExt string) (bundlespec.Spec, error) {
	spec := bundlespec.Spec{
		Key:         b.Key,
		Glob:        b.Glob,
		Externals:   b.Externals,
		Require:     b.Require,
		Add:         b.Add,
		AlwaysBuild: b.AlwaysBuild,
	}

	entries, err := entryPoints(bundleExt, b.EntryPoints)
	if err != nil {
		return spec, &bundlespec.ConfigError{Key: b.Key, Reason: err.Error()}
	}
	spec.EntryPoints = entries

	if b.OutputPath != "" {
		out, err := bundlespec.OutputTemplate(b.OutputPath)
		if err != nil {
			return spec, &bundlespec.ConfigError{Key: b.Key, Reason: err.Error()}
		}
		spec.OutputPath = out
	}

	for _, t := range b.Transform {
		tr, err := transform.New(t.Name, t.Options)
		if err != nil {
			return spec, &bundlespec.ConfigError{Key: b.Key, Reason: err.Error()}
		}
		spec.Transforms = append(spec.Transforms, tr)
	}
	return spec, nil
}

// entryPoints picks the entry-point variant: any template variable makes
// the list computed per key, any glob metacharacter makes it a glob list,
// and plain paths stay literal.
func entryPoints(bundleExt string, entries []string) (bundlespec.EntryPoints, error) {
	if len(entries) == 0 {
		return bundlespec.EntryPoints{}, nil
	}

	templated := false
	glob := false
	for _, e := range entries {
		templated = templated || bundlespec.IsTemplate(e)
		glob = glob || strings.ContainsAny(e, "*?[{")
	}

	switch {
	case templated:
		templates := make([]*bundlespec.Template, len(entries))
		for i, e := range entries {
			t, err := bundlespec.ParseTemplate(e)
			if err != nil {
				return bundlespec.EntryPoints{}, err
			}
			templates[i] = t
		}
		return bundlespec.Templated(bundleExt, templates...), nil
	case glob:
		return bundlespec.Glob(entries...), nil
	default:
		return bundlespec.Literal(entries...), nil
	}
}

func normalizeLoaders(loaders map[string]string) map[string]string {
	if len(loaders) == 0 {
		return nil
	}
	out := make(map[string]string, len(loaders))
	for ext, loader := range loaders {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = loader
	}
	return out
}
