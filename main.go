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

// Command fastbundle builds JavaScript bundles incrementally.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/cmd/build"
	"bennypowers.dev/fastbundle/cmd/version"
	"bennypowers.dev/fastbundle/cmd/watch"
	"bennypowers.dev/fastbundle/internal/config"
)

var (
	cpuprofile     string
	cpuprofileFile *os.File
	rootCmd        = &cobra.Command{
		Use:   "fastbundle",
		Short: "Build JavaScript bundles incrementally",
		Long: `fastbundle builds many JavaScript bundles from one source tree and
rebuilds only the bundles whose inputs changed.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofile == "" {
				return nil
			}
			f, err := os.Create(cpuprofile)
			if err != nil {
				return fmt.Errorf("could not create CPU profile: %w", err)
			}
			cpuprofileFile = f
			if err := pprof.StartCPUProfile(f); err != nil {
				return errors.Join(
					fmt.Errorf("could not start CPU profile: %w", err),
					f.Close(),
				)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cpuprofileFile == nil {
				return nil
			}
			pprof.StopCPUProfile()
			if err := cpuprofileFile.Close(); err != nil {
				return fmt.Errorf("closing CPU profile: %w", err)
			}
			return nil
		},
	}
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("source", "s", ".", "Source directory")
	flags.StringP("out", "o", "", "Output directory")
	flags.StringP("config", "c", "", "Configuration file (default: <source>/"+config.DefaultFileName+" if present)")
	flags.BoolP("verbose", "v", false, "Log debug messages")
	flags.StringVar(&cpuprofile, "cpuprofile", "", "Write CPU profile to file")

	for _, name := range []string{"source", "out", "config", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
	config.BindEnv(viper.GetViper())

	rootCmd.AddCommand(build.Cmd)
	rootCmd.AddCommand(watch.Cmd)
	rootCmd.AddCommand(version.Cmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
