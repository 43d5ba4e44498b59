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
// Package build provides the build command for fastbundle.
package build

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/internal/logging"
	"bennypowers.dev/fastbundle/internal/output"
	"bennypowers.dev/fastbundle/internal/project"
)

// Cmd is the build command, which runs one build cycle.
var Cmd = &cobra.Command{
	Use:   "build",
	Short: "Build every bundle once",
	Long: `Build every bundle declared by the configuration file once and
write the outputs to the output directory.

Without a configuration file, every *.browserify file in the source tree
becomes its own bundle.`,
	Example: `  # Build bundles from ./src into ./dist
  fastbundle build --source src --out dist

  # Use a configuration file and print a JSON report
  fastbundle build --config fastbundle.yaml --out dist --format json

  # Minified ES modules, four builds at a time
  fastbundle build --out dist --module-format esm --minify -j 4`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	AddBuildFlags(Cmd)
	Cmd.Flags().StringP("format", "f", "table", "Report format (table, json)")
}

// AddBuildFlags registers the flags shared by build and watch.
func AddBuildFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("jobs", "j", 0, "Maximum concurrent bundle builds (0 = unlimited)")
	cmd.Flags().String("module-format", "iife", "Bundle format (iife, esm, cjs)")
	cmd.Flags().String("platform", "browser", "Target platform (browser, node, neutral)")
	cmd.Flags().Bool("minify", false, "Minify bundles")
	cmd.Flags().String("bundle-extension", "", "Extension marking bundle entry files (default .browserify)")
	cmd.Flags().String("output-extension", "", "Extension of output files (default .js)")
	cmd.Flags().String("output-dir", "", "Directory inside the output directory to write bundles to")
	cmd.Flags().StringArray("external", nil, "Module never bundled (can be repeated)")
	cmd.Flags().StringArray("extension", nil, "Additional resolvable extension (can be repeated)")
}

// BindBuildFlags binds the shared flags of cmd into viper. Commands call it
// when they run, so the last command's flags win.
func BindBuildFlags(cmd *cobra.Command) {
	for _, name := range []string{
		"jobs", "module-format", "platform", "minify",
		"bundle-extension", "output-extension", "output-dir", "external", "extension",
	} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
}

func run(cmd *cobra.Command, args []string) error {
	BindBuildFlags(cmd)
	_ = viper.BindPFlag("format", cmd.Flags().Lookup("format"))

	format, err := output.ParseFormat(viper.GetString("format"))
	if err != nil {
		return err
	}

	logger := logging.NewStderr(viper.GetBool("verbose"))
	p, err := project.Open(fs.NewOSFileSystem(), viper.GetViper(), logger)
	if err != nil {
		return err
	}

	result, cycleErr := p.Session.RunCycle(context.Background(), p.SourceDir)
	closeErr := p.Close()

	if result != nil {
		if err := output.Write(cmd.OutOrStdout(), result, format); err != nil {
			return err
		}
	}
	if cycleErr != nil {
		return fmt.Errorf("build failed: %w", cycleErr)
	}
	return closeErr
}
