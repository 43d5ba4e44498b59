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
// Package project assembles a build session from command-line settings.
package project

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/bundler/esbuild"
	"bennypowers.dev/fastbundle/engine"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/internal/config"
	"bennypowers.dev/fastbundle/internal/logging"
)

// Project is an opened source tree ready for build cycles.
type Project struct {
	SourceDir  string
	DestDir    string
	ConfigFile string
	Session    *engine.Session
	Logger     *logging.Logger
}

// Open reads settings from v: source, out, config, jobs, module-format,
// platform, minify and the config overrides. The output directory may sit
// inside the source tree but not the other way round.
func Open(fsys fs.FileSystem, v *viper.Viper, logger *logging.Logger) (*Project, error) {
	source, err := filepath.Abs(v.GetString("source"))
	if err != nil {
		return nil, fmt.Errorf("invalid source directory: %w", err)
	}
	if info, err := fsys.Stat(source); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("source directory %s does not exist", source)
	}

	out := v.GetString("out")
	if out == "" {
		return nil, fmt.Errorf("an output directory is required (--out)")
	}
	dest, err := filepath.Abs(out)
	if err != nil {
		return nil, fmt.Errorf("invalid output directory: %w", err)
	}
	if Within(source, dest) {
		return nil, fmt.Errorf("source %s must not be inside the output directory %s", source, dest)
	}

	configFile := v.GetString("config")
	required := configFile != ""
	if !required {
		configFile = filepath.Join(source, config.DefaultFileName)
	}
	file, err := config.Load(fsys, configFile, required)
	if err != nil {
		return nil, err
	}
	file.Apply(config.OverridesFrom(v))
	opts, err := file.Options()
	if err != nil {
		return nil, err
	}

	format, err := esbuild.ParseFormat(v.GetString("module-format"))
	if err != nil {
		return nil, err
	}
	platform, err := esbuild.ParsePlatform(v.GetString("platform"))
	if err != nil {
		return nil, err
	}
	b := esbuild.New(fsys,
		esbuild.WithFormat(format),
		esbuild.WithPlatform(platform),
		esbuild.WithMinify(v.GetBool("minify")),
	)

	session, err := engine.NewSession(engine.Config{
		FS:      fsys,
		Bundler: b,
		DestDir: dest,
		Options: opts,
		Logger:  logger,
		Jobs:    v.GetInt("jobs"),
	})
	if err != nil {
		return nil, err
	}

	logger.Debug("source %s, output %s, config %s", source, dest, configFile)
	return &Project{
		SourceDir:  source,
		DestDir:    dest,
		ConfigFile: configFile,
		Session:    session,
		Logger:     logger,
	}, nil
}

// Close releases the session.
func (p *Project) Close() error {
	return p.Session.Close()
}

// Within reports whether path is root or below it.
func Within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
