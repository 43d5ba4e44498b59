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
// Package watch provides the watch command for fastbundle.
package watch

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bennypowers.dev/fastbundle/cmd/build"
	"bennypowers.dev/fastbundle/engine"
	"bennypowers.dev/fastbundle/fs"
	"bennypowers.dev/fastbundle/internal/logging"
	"bennypowers.dev/fastbundle/internal/project"
	"bennypowers.dev/fastbundle/internal/watch"
)

// Cmd is the watch command, which rebuilds bundles as sources change.
var Cmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild bundles whenever sources change",
	Long: `Build every bundle, then watch the source tree and run a new build
cycle after each burst of changes. Only bundles affected by a change are
rebuilt.`,
	Example: `  # Watch ./src and write bundles to ./dist
  fastbundle watch --source src --out dist

  # Serve Prometheus metrics while watching
  fastbundle watch --out dist --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: run,
}

func init() {
	build.AddBuildFlags(Cmd)
	Cmd.Flags().Duration("debounce", watch.DefaultDebounce, "Quiet period before a rebuild")
	Cmd.Flags().StringArray("ignore", []string{".git", "node_modules/.cache"}, "Glob of paths to ignore, relative to the source (can be repeated)")
	Cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
}

func run(cmd *cobra.Command, args []string) error {
	build.BindBuildFlags(cmd)
	for _, name := range []string{"debounce", "ignore", "metrics-addr"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}

	logger := logging.NewStderr(viper.GetBool("verbose"))
	p, err := project.Open(fs.NewOSFileSystem(), viper.GetViper(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logger.Warning("closing session: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := serveMetrics(addr, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ignore := viper.GetStringSlice("ignore")
	if project.Within(p.DestDir, p.SourceDir) {
		ignore = append(ignore, p.DestDir)
	}
	w, err := watch.New(p.SourceDir,
		watch.WithDebounce(viper.GetDuration("debounce")),
		watch.WithIgnore(ignore...),
		watch.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	cycle(ctx, p)
	logger.Info("watching %s", p.SourceDir)

	return w.Run(ctx, func(ctx context.Context, paths []string) {
		for _, path := range paths {
			if rel, err := filepath.Rel(p.SourceDir, path); err == nil {
				logger.Debug("changed: %s", rel)
			}
		}
		cycle(ctx, p)
	})
}

// cycle runs one build cycle and logs its outcome. Failures are reported
// and the watch goes on; the failed bundles are retried next time.
func cycle(ctx context.Context, p *project.Project) {
	result, err := p.Session.RunCycle(ctx, p.SourceDir)
	if err != nil {
		var buildErr *engine.BuildError
		if errors.As(err, &buildErr) && result != nil {
			p.Logger.Warning("%d of %d bundles failed", len(result.Failed), len(result.Failed)+len(result.Built))
			return
		}
		p.Logger.Warning("build cycle failed: %v", err)
		return
	}
	p.Logger.Debug("cycle took %s", result.Duration.Round(time.Millisecond))
}

func serveMetrics(addr string, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warning("metrics server: %v", err)
		}
	}()
	logger.Info("serving metrics on %s/metrics", addr)
	return srv
}
